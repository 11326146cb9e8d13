// Package watch mirrors a working directory into a session's pending edits.
// Files created or modified under the directory become overlay writes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"dpack/internal/overlay"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Writer receives mirrored files keyed by display path.
type Writer interface {
	Write(path string, c overlay.Content) error
}

// Mirror watches root and writes every changed file to target under prefix.
type Mirror struct {
	root       string
	prefix     string
	target     Writer
	watcher    *fsnotify.Watcher
	ignoreDirs map[string]bool
	logger     *zap.Logger
}

func NewMirror(root, prefix string, target Writer, logger *zap.Logger) (*Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	m := &Mirror{
		root:    root,
		prefix:  strings.Trim(prefix, "/"),
		target:  target,
		watcher: watcher,
		ignoreDirs: map[string]bool{
			".git":     true,
			".dpack":   true,
			"__MACOSX": true,
		},
		logger: logger,
	}

	if err := m.addDirs(root); err != nil {
		watcher.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != m.root && m.ignoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := m.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Sync writes every file currently under root. It returns the number of
// files mirrored.
func (m *Mirror) Sync() (int, error) {
	return m.syncDir(m.root)
}

func (m *Mirror) syncDir(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != m.root && m.ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if m.ShouldIgnore(p) {
			return nil
		}
		if err := m.mirrorFile(p); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("syncing %s: %w", dir, err)
	}
	return count, nil
}

// Target maps a local file to its display path.
func (m *Mirror) Target(local string) (string, error) {
	rel, err := filepath.Rel(m.root, local)
	if err != nil {
		return "", fmt.Errorf("getting relative path: %w", err)
	}
	rel = filepath.ToSlash(rel)
	if m.prefix == "" {
		return rel, nil
	}
	return path.Join(m.prefix, rel), nil
}

func (m *Mirror) mirrorFile(local string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("reading %s: %w", local, err)
	}

	target, err := m.Target(local)
	if err != nil {
		return err
	}

	if err := m.target.Write(target, contentFor(target, data)); err != nil {
		return fmt.Errorf("mirroring %s: %w", target, err)
	}
	m.logger.Debug("mirrored file", zap.String("path", target), zap.Int("size", len(data)))
	return nil
}

// contentFor keeps text files as text and everything else as bytes.
func contentFor(name string, data []byte) overlay.Content {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif":
		return overlay.Binary(data)
	}
	if utf8.Valid(data) {
		return overlay.Text(string(data))
	}
	return overlay.Binary(data)
}

// Run processes filesystem events until ctx is done or the watcher closes.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			m.handleFSEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (m *Mirror) handleFSEvent(event fsnotify.Event) {
	if m.ShouldIgnore(event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := m.addDirs(event.Name); err != nil {
				m.logger.Error("adding new directory to watcher", zap.Error(err))
			}
			if _, err := m.syncDir(event.Name); err != nil {
				m.logger.Error("syncing new directory", zap.Error(err))
			}
			return
		}
		m.mirror(event.Name)

	case event.Op&fsnotify.Write == fsnotify.Write:
		m.mirror(event.Name)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// pending edits are never dropped implicitly
		m.logger.Debug("ignoring removal", zap.String("path", event.Name))
	}
}

func (m *Mirror) mirror(local string) {
	if err := m.mirrorFile(local); err != nil {
		m.logger.Warn("failed to mirror file", zap.String("path", local), zap.Error(err))
	}
}

// ShouldIgnore reports whether a local path is skipped.
func (m *Mirror) ShouldIgnore(local string) bool {
	rel, err := filepath.Rel(m.root, local)
	if err != nil || rel == "." || rel == "" {
		return true
	}

	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if m.ignoreDirs[part] {
			return true
		}
	}

	base := filepath.Base(rel)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

func (m *Mirror) Close() error {
	return m.watcher.Close()
}
