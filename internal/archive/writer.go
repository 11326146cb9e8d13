package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// WriterOptions controls how a Builder serializes entries.
type WriterOptions struct {
	// Deflate level, flate.BestSpeed..flate.BestCompression. Zero selects the default.
	Level int
	// Extensions (with dot, lower case) stored without compression.
	StoreExtensions []string
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Level:           flate.DefaultCompression,
		StoreExtensions: []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".zip", ".ogg", ".mp3"},
	}
}

// EntryFunc receives compression progress: the number of entries written so
// far, the total, and the name of the entry just written.
type EntryFunc func(done, total int, name string)

type staged struct {
	name string
	dir  bool
	data []byte
}

// Builder stages entries in memory and serializes them to a zip on Bytes.
type Builder struct {
	opts     WriterOptions
	store    map[string]bool
	modified time.Time
	entries  []staged
}

func NewBuilder(opts WriterOptions) *Builder {
	if opts.Level == 0 {
		opts.Level = flate.DefaultCompression
	}
	store := make(map[string]bool, len(opts.StoreExtensions))
	for _, ext := range opts.StoreExtensions {
		store[strings.ToLower(ext)] = true
	}
	return &Builder{
		opts:     opts,
		store:    store,
		modified: time.Now(),
	}
}

// AddDir stages an empty directory entry.
func (b *Builder) AddDir(name string) {
	if !strings.HasSuffix(name, "/") {
		name += "/"
	}
	b.entries = append(b.entries, staged{name: name, dir: true})
}

// AddFile stages a file entry. data is retained, not copied.
func (b *Builder) AddFile(name string, data []byte) {
	b.entries = append(b.entries, staged{name: name, data: data})
}

// Len is the number of staged entries.
func (b *Builder) Len() int { return len(b.entries) }

func (b *Builder) method(name string) uint16 {
	if b.store[strings.ToLower(path.Ext(name))] {
		return zip.Store
	}
	return zip.Deflate
}

// Bytes serializes all staged entries. On error no partial output is returned.
func (b *Builder) Bytes(ctx context.Context, onEntry EntryFunc) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	level := b.opts.Level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	total := len(b.entries)
	for i, e := range b.entries {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return nil, err
		}

		header := &zip.FileHeader{
			Name:     e.name,
			Method:   b.method(e.name),
			Modified: b.modified,
		}
		if e.dir {
			header.Method = zip.Store
		}

		w, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("creating entry %s: %w", e.name, err)
		}
		if !e.dir {
			if _, err := w.Write(e.data); err != nil {
				zw.Close()
				return nil, fmt.Errorf("writing entry %s: %w", e.name, err)
			}
		}

		if onEntry != nil {
			onEntry(i+1, total, e.name)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
