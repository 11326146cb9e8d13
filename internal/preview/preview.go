// Package preview hands out display handles for resolved images. Every handle
// stays live until the caller releases it.
package preview

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"dpack/internal/errors"
	"dpack/internal/metrics"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

const DefaultThumbSize = 120

type Handle string

// Preview is a decoded image and its thumbnail.
type Preview struct {
	Handle    Handle `json:"handle"`
	Path      string `json:"path"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Thumbnail []byte `json:"-"`
}

type Options struct {
	// ThumbSize bounds both thumbnail dimensions.
	ThumbSize int
	// MaxHandles caps live handles, 0 for no limit.
	MaxHandles int
}

type Registry struct {
	mu     sync.Mutex
	items  map[Handle]*Preview
	opts   Options
	logger *zap.Logger
}

func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	if opts.ThumbSize <= 0 {
		opts.ThumbSize = DefaultThumbSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		items:  make(map[Handle]*Preview),
		opts:   opts,
		logger: logger,
	}
}

// Acquire decodes data, renders a thumbnail and returns a new live handle.
func (r *Registry) Acquire(path string, data []byte) (*Preview, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("%s is not a decodable image", path), err.Error())
	}

	thumb := imaging.Fit(img, r.opts.ThumbSize, r.opts.ThumbSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}

	bounds := img.Bounds()
	p := &Preview{
		Handle:    Handle(uuid.New().String()),
		Path:      path,
		Format:    format,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Thumbnail: buf.Bytes(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.MaxHandles > 0 && len(r.items) >= r.opts.MaxHandles {
		return nil, errors.ValidationError("too many live preview handles", r.opts.MaxHandles)
	}
	r.items[p.Handle] = p
	metrics.SetPreviewHandlesActive(len(r.items))
	return p, nil
}

func (r *Registry) Get(h Handle) (*Preview, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[h]
	return p, ok
}

// Release frees h. It reports whether h was live.
func (r *Registry) Release(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[h]; !ok {
		return false
	}
	delete(r.items, h)
	metrics.SetPreviewHandlesActive(len(r.items))
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Close releases every live handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.items); n > 0 {
		r.logger.Debug("releasing preview handles", zap.Int("count", n))
	}
	r.items = make(map[Handle]*Preview)
	metrics.SetPreviewHandlesActive(0)
}
