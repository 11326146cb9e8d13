// Package resolver answers content reads for a session: pending edits first,
// then the original archive.
package resolver

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"dpack/internal/errors"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is the original, read-only side of the chain.
type Source interface {
	Has(path string) bool
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

type Options struct {
	// Concurrency bounds simultaneous child reads in ResolveImages.
	Concurrency     int
	ImageExtensions []string
}

func DefaultOptions() Options {
	return Options{
		Concurrency:     8,
		ImageExtensions: []string{".png", ".jpg", ".jpeg", ".webp"},
	}
}

// DirectoryResult holds the images resolved under one directory.
type DirectoryResult struct {
	Dir      string
	Contents map[string]overlay.Content
	// Failed lists children that could not be read, sorted.
	Failed []string
}

// Paths returns the resolved paths, sorted.
func (r *DirectoryResult) Paths() []string {
	paths := make([]string, 0, len(r.Contents))
	for p := range r.Contents {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type Resolver struct {
	overlay overlay.Store
	source  Source
	files   func() []string
	opts    Options
	images  map[string]bool
	logger  *zap.Logger
}

// New builds a resolver. files lists every file path of the original archive
// and is consulted by ResolveImages.
func New(store overlay.Store, source Source, files func() []string, opts Options, logger *zap.Logger) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if len(opts.ImageExtensions) == 0 {
		opts.ImageExtensions = DefaultOptions().ImageExtensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	images := make(map[string]bool, len(opts.ImageExtensions))
	for _, ext := range opts.ImageExtensions {
		images[strings.ToLower(ext)] = true
	}

	return &Resolver{
		overlay: store,
		source:  source,
		files:   files,
		opts:    opts,
		images:  images,
		logger:  logger,
	}
}

// Resolve returns the content at p. An overlay hit never touches the archive.
func (r *Resolver) Resolve(ctx context.Context, p string) (overlay.Content, error) {
	p = pathtree.Normalize(p)
	if c, ok := r.overlay.Read(p); ok {
		return c, nil
	}

	if !r.source.Has(p) {
		return overlay.Content{}, errors.NotFound(p + " not found")
	}

	data, err := r.source.ReadFile(ctx, p)
	if err != nil {
		return overlay.Content{}, err
	}
	return overlay.Binary(data), nil
}

// IsImage reports whether p carries a recognized image extension.
func (r *Resolver) IsImage(p string) bool {
	return r.images[strings.ToLower(path.Ext(p))]
}

// ResolveImages resolves every image file under dir concurrently. Children
// that fail are logged and left out; if any failed, the partial result is
// returned along with a PartialDirectoryResolution error.
func (r *Resolver) ResolveImages(ctx context.Context, dir string) (*DirectoryResult, error) {
	dir = pathtree.Normalize(dir)
	targets := r.imagesUnder(dir)

	result := &DirectoryResult{
		Dir:      dir,
		Contents: make(map[string]overlay.Content, len(targets)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, p := range targets {
		g.Go(func() error {
			c, err := r.Resolve(gctx, p)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("failed to resolve image",
					zap.String("path", p),
					zap.Error(err))
				result.Failed = append(result.Failed, p)
				return nil
			}
			result.Contents[p] = c
			return nil
		})
	}

	// children never return errors, so Wait only reports nil
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(result.Failed) > 0 {
		sort.Strings(result.Failed)
		return result, errors.PartialDirectory(dir, result.Failed)
	}
	return result, nil
}

// imagesUnder lists image paths below dir from the archive and the overlay.
func (r *Resolver) imagesUnder(dir string) []string {
	prefix := dir + "/"
	if dir == "" {
		prefix = ""
	}

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = pathtree.Normalize(p)
		if seen[p] || !strings.HasPrefix(p, prefix) || !r.IsImage(p) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	if r.files != nil {
		for _, p := range r.files() {
			add(p)
		}
	}
	for _, p := range r.overlay.Paths() {
		add(p)
	}

	sort.Strings(out)
	return out
}
