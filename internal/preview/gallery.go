package preview

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Gallery owns the handles shown for one opened image folder.
type Gallery struct {
	reg     *Registry
	mu      sync.Mutex
	handles []Handle
}

func (r *Registry) NewGallery() *Gallery {
	return &Gallery{reg: r}
}

// Replace releases the gallery's current handles, then acquires one per
// image in images (path -> bytes), in path order. Paths that cannot be
// previewed are returned in failed.
func (g *Gallery) Replace(images map[string][]byte) (previews []*Preview, failed []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.releaseLocked()

	paths := make([]string, 0, len(images))
	for p := range images {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		pv, err := g.reg.Acquire(p, images[p])
		if err != nil {
			g.reg.logger.Warn("failed to build preview", zap.String("path", p), zap.Error(err))
			failed = append(failed, p)
			continue
		}
		g.handles = append(g.handles, pv.Handle)
		previews = append(previews, pv)
	}
	return previews, failed
}

// Handles returns the live handles owned by the gallery.
func (g *Gallery) Handles() []Handle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Handle, len(g.handles))
	copy(out, g.handles)
	return out
}

// Close releases every handle the gallery owns.
func (g *Gallery) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

func (g *Gallery) releaseLocked() {
	for _, h := range g.handles {
		g.reg.Release(h)
	}
	g.handles = nil
}
