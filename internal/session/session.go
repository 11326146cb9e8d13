// Package session ties the pieces of the archive virtual filesystem together
// for one loaded datapack. Callers address entries by the paths they see,
// which differ from archive paths while a root rename is active.
package session

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"dpack/internal/archive"
	"dpack/internal/errors"
	"dpack/internal/export"
	"dpack/internal/metrics"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"
	"dpack/internal/progress"
	"dpack/internal/rename"
	"dpack/internal/resolver"

	"go.uber.org/zap"
)

// ImageFolderSuffixes are the folders whose images open as a gallery.
var ImageFolderSuffixes = []string{"adboards", "club_logos", "competition_logos"}

// ImageFormats are the formats accepted by AddImage.
var ImageFormats = []string{"png", "webp"}

// OverlayFactory creates the overlay store for a freshly loaded archive.
type OverlayFactory func(a *archive.Archive) (overlay.Store, error)

// MemoryOverlay is the default OverlayFactory.
func MemoryOverlay(*archive.Archive) (overlay.Store, error) {
	return overlay.NewMemory(), nil
}

type Options struct {
	Resolver       resolver.Options
	Export         export.Options
	OverlayFactory OverlayFactory
	Logger         *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Resolver:       resolver.DefaultOptions(),
		Export:         export.DefaultOptions(),
		OverlayFactory: MemoryOverlay,
	}
}

type Session struct {
	mu     sync.RWMutex
	opts   Options
	logger *zap.Logger

	archive     *archive.Archive
	overlay     overlay.Store
	roots       []*pathtree.Node
	displayName string
	rewriter    *rename.Rewriter
	resolver    *resolver.Resolver
}

func New(opts Options) *Session {
	if opts.OverlayFactory == nil {
		opts.OverlayFactory = MemoryOverlay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		opts:     opts,
		logger:   logger,
		rewriter: &rename.Rewriter{},
	}
}

// Load parses data and replaces the session's archive, overlay and tree.
// fileName supplies the datapack name. On failure the previous state is kept.
func (s *Session) Load(data []byte, fileName string) error {
	a, err := archive.Open(data)
	if err != nil {
		metrics.RecordArchiveLoad(false)
		return err
	}
	a.SetName(archive.NameFromFile(fileName))
	return s.LoadArchive(a)
}

// LoadArchive switches the session to an already parsed archive.
func (s *Session) LoadArchive(a *archive.Archive) error {
	store, err := s.opts.OverlayFactory(a)
	if err != nil {
		metrics.RecordArchiveLoad(false)
		return errors.Internal("opening overlay", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlay != nil {
		closeStore(s.overlay, s.logger)
	}

	s.archive = a
	s.overlay = store
	s.displayName = ""
	s.rebuildLocked()

	metrics.RecordArchiveLoad(true)
	s.logger.Info("archive loaded",
		zap.String("name", a.Name()),
		zap.String("fingerprint", a.Fingerprint()),
		zap.Int("entries", len(a.Entries())),
		zap.Int("pending_edits", len(store.Paths())))
	return nil
}

// rebuildLocked recomputes the tree, rewriter and resolver. mu must be held.
func (s *Session) rebuildLocked() {
	entries := s.archive.PathEntries()
	for _, p := range s.overlay.Paths() {
		if !s.archive.Has(p) {
			entries = append(entries, pathtree.Entry{Path: p})
		}
	}
	s.roots = pathtree.Build(entries)
	s.rewriter = rename.Detect(s.roots, s.displayName)

	a := s.archive
	files := func() []string {
		var out []string
		for _, e := range a.Entries() {
			if !e.IsDir {
				out = append(out, e.Path)
			}
		}
		return out
	}
	s.resolver = resolver.New(s.overlay, a, files, s.opts.Resolver, s.logger)
}

func (s *Session) loaded() error {
	if s.archive == nil {
		return errors.ValidationError("no archive loaded", nil)
	}
	return nil
}

func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.archive != nil
}

// Name is the datapack name taken from the uploaded file.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.archive == nil {
		return ""
	}
	return s.archive.Name()
}

func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.archive == nil {
		return ""
	}
	return s.archive.Fingerprint()
}

// Tree returns the tree as displayed, with any root rename applied. The
// returned nodes are a copy.
func (s *Session) Tree() []*pathtree.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewriter.DisplayTree(s.roots)
}

// ExpandedRoots lists the displayed paths of top-level directories, which
// start out expanded.
func (s *Session) ExpandedRoots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, n := range s.roots {
		if n.IsDir {
			out = append(out, s.rewriter.ToDisplay(n.Path))
		}
	}
	return out
}

// SetDisplayName sets the name the single root folder is shown and exported
// under. An empty name clears the rename.
func (s *Session) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name != "" && !rename.ValidName(name) {
		return errors.ValidationError("invalid display name", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded(); err != nil {
		return err
	}

	s.displayName = name
	s.rewriter = rename.Detect(s.roots, name)
	return nil
}

func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// Rename returns the active root rename, if any.
func (s *Session) Rename() (rename.RootRename, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewriter.Rename()
}

// OriginalPath maps a displayed path to its path in the archive.
func (s *Session) OriginalPath(displayPath string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewriter.ToOriginal(pathtree.Normalize(displayPath))
}

// Resolve returns the content shown at displayPath.
func (s *Session) Resolve(ctx context.Context, displayPath string) (overlay.Content, error) {
	s.mu.RLock()
	if err := s.loaded(); err != nil {
		s.mu.RUnlock()
		return overlay.Content{}, err
	}
	r, rw := s.resolver, s.rewriter
	s.mu.RUnlock()

	return r.Resolve(ctx, rw.ToOriginal(pathtree.Normalize(displayPath)))
}

// ResolveImages resolves the images under a displayed directory. Paths in
// the result are display paths. A directory missing from the tree, or a file,
// is NotFound.
func (s *Session) ResolveImages(ctx context.Context, displayDir string) (*resolver.DirectoryResult, error) {
	s.mu.RLock()
	if err := s.loaded(); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	r, rw := s.resolver, s.rewriter
	dir := rw.ToOriginal(pathtree.Normalize(displayDir))
	if dir != "" {
		if n := pathtree.Find(s.roots, dir); n == nil || !n.IsDir {
			s.mu.RUnlock()
			return nil, errors.NotFound(fmt.Sprintf("folder %s not found", pathtree.Normalize(displayDir)))
		}
	}
	s.mu.RUnlock()

	res, err := r.ResolveImages(ctx, dir)
	if res == nil {
		return nil, err
	}
	if len(res.Failed) > 0 {
		metrics.RecordResolveFailures(len(res.Failed))
	}

	display := &resolver.DirectoryResult{
		Dir:      rw.ToDisplay(res.Dir),
		Contents: make(map[string]overlay.Content, len(res.Contents)),
	}
	for p, c := range res.Contents {
		display.Contents[rw.ToDisplay(p)] = c
	}
	for _, p := range res.Failed {
		display.Failed = append(display.Failed, rw.ToDisplay(p))
	}
	if errors.IsType(err, errors.ErrorTypePartialDirectory) {
		err = errors.PartialDirectory(display.Dir, display.Failed)
	}
	return display, err
}

// Write records an edit for the entry shown at displayPath.
func (s *Session) Write(displayPath string, c overlay.Content) error {
	p := pathtree.Normalize(displayPath)
	if p == "" {
		return errors.ValidationError("path is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded(); err != nil {
		return err
	}

	original := s.rewriter.ToOriginal(p)
	if n := pathtree.Find(s.roots, original); n != nil && n.IsDir {
		return errors.ValidationError(fmt.Sprintf("%s is a directory", displayPath), nil)
	}
	if a := s.fileAncestorLocked(original); a != "" {
		return errors.ValidationError(fmt.Sprintf("%s is a file", s.rewriter.ToDisplay(a)), nil)
	}

	isNew := !s.overlay.Has(original) && !s.archive.Has(original)
	if err := s.overlay.Write(original, c); err != nil {
		return errors.Internal("writing overlay", err)
	}
	metrics.RecordOverlayWrite(c.Kind.String())

	if isNew {
		// a new path can change the tree shape, and with it the rename
		s.rebuildLocked()
	}
	s.logger.Debug("overlay write",
		zap.String("path", original),
		zap.String("kind", c.Kind.String()),
		zap.Int("size", c.Len()))
	return nil
}

// fileAncestorLocked returns the nearest ancestor of p that is a file, or "".
// mu must be held.
func (s *Session) fileAncestorLocked(p string) string {
	for a := pathtree.ParentPath(p); a != ""; a = pathtree.ParentPath(a) {
		if s.overlay.Has(a) {
			return a
		}
		if s.archive.Has(a) && !s.archive.IsDir(a) {
			return a
		}
		if n := pathtree.Find(s.roots, a); n != nil && !n.IsDir {
			return a
		}
	}
	return ""
}

// AddImage stores a new image under displayDir as id.format and returns its
// display path. The id is decided by the caller.
func (s *Session) AddImage(displayDir, id, format string, data []byte) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", errors.ValidationError("invalid image id", id)
	}
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if !validFormat(format) {
		return "", errors.ValidationError("unsupported image format", format)
	}

	dir := pathtree.Normalize(displayDir)
	name := id + "." + format
	p := name
	if dir != "" {
		p = dir + "/" + name
	}

	if err := s.Write(p, overlay.Binary(data)); err != nil {
		return "", err
	}
	return p, nil
}

func validFormat(format string) bool {
	for _, f := range ImageFormats {
		if f == format {
			return true
		}
	}
	return false
}

// OverlayPaths lists pending edits by display path.
func (s *Session) OverlayPaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.overlay == nil {
		return nil
	}
	paths := s.overlay.Paths()
	for i, p := range paths {
		paths[i] = s.rewriter.ToDisplay(p)
	}
	return paths
}

// Plan returns the entries an export would write.
func (s *Session) Plan() (export.Plan, error) {
	p, err := s.pipeline()
	if err != nil {
		return export.Plan{}, err
	}
	return p.Plan(), nil
}

// Export writes the merged archive. The session stays usable whether or not
// the export succeeds.
func (s *Session) Export(ctx context.Context, onProgress progress.Func) ([]byte, error) {
	p, err := s.pipeline()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := p.Export(ctx, onProgress)
	metrics.RecordExport(len(data), time.Since(start), err == nil)
	return data, err
}

func (s *Session) pipeline() (*export.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.loaded(); err != nil {
		return nil, err
	}
	return export.New(s.archive, s.overlay, s.rewriter, s.opts.Export, s.logger), nil
}

// ExportFileName is the file name offered for the exported archive.
func (s *Session) ExportFileName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := s.displayName
	if name == "" && s.archive != nil {
		name = s.archive.Name()
	}
	if name == "" {
		name = "datapack"
	}
	return name + ".zip"
}

// IsImageFolder reports whether p is a folder whose images open as a gallery.
func IsImageFolder(p string) bool {
	base := path.Base(pathtree.Normalize(p))
	for _, suffix := range ImageFolderSuffixes {
		if base == suffix {
			return true
		}
	}
	return false
}

// Close releases the overlay store if it holds resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return nil
	}
	err := closeStore(s.overlay, s.logger)
	s.overlay = nil
	s.archive = nil
	s.roots = nil
	return err
}

func closeStore(store overlay.Store, logger *zap.Logger) error {
	c, ok := store.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		logger.Warn("failed to close overlay", zap.Error(err))
		return err
	}
	return nil
}
