// Package archive reads the original datapack zip that a session is opened on.
// An Archive is immutable after Open and safe for concurrent reads.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dpack/internal/errors"
	"dpack/internal/pathtree"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zip"
)

// maxPrealloc caps the buffer reserved from a header's declared size.
const maxPrealloc = 64 << 20

// Entry describes one entry of the original archive.
type Entry struct {
	Path           string    `json:"path"`
	IsDir          bool      `json:"is_dir"`
	Size           uint64    `json:"size"`
	CompressedSize uint64    `json:"compressed_size"`
	Modified       time.Time `json:"modified"`
	Method         uint16    `json:"method"`
}

type Archive struct {
	name        string
	size        int64
	fingerprint string
	entries     []Entry
	files       map[string]*zip.File
}

// Open parses data as a zip archive. Any parse failure is reported as a
// MalformedArchive error.
func Open(data []byte) (*Archive, error) {
	if len(data) == 0 {
		return nil, errors.MalformedArchive(fmt.Errorf("empty input"))
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.MalformedArchive(err)
	}

	a := &Archive{
		size:        int64(len(data)),
		fingerprint: fmt.Sprintf("%016x", xxhash.Sum64(data)),
		entries:     make([]Entry, 0, len(r.File)),
		files:       make(map[string]*zip.File, len(r.File)),
	}

	for _, f := range r.File {
		isDir := strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
		a.entries = append(a.entries, Entry{
			Path:           f.Name,
			IsDir:          isDir,
			Size:           f.UncompressedSize64,
			CompressedSize: f.CompressedSize64,
			Modified:       f.Modified,
			Method:         f.Method,
		})

		key := pathtree.Normalize(f.Name)
		if key == "" {
			continue
		}
		// the first entry for a path wins
		if _, ok := a.files[key]; !ok {
			a.files[key] = f
		}
	}

	return a, nil
}

// OpenFile reads and parses the archive at path. The archive name is the file
// name without its .zip extension.
func OpenFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	a, err := Open(data)
	if err != nil {
		return nil, err
	}
	a.name = NameFromFile(path)
	return a, nil
}

// NameFromFile derives a datapack name from an uploaded file name.
func NameFromFile(fileName string) string {
	base := filepath.Base(fileName)
	if strings.EqualFold(filepath.Ext(base), ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	return base
}

// Name is the datapack name, empty unless opened from a file or set by the caller.
func (a *Archive) Name() string { return a.name }

func (a *Archive) SetName(name string) { a.name = name }

// Fingerprint is a stable hex digest of the archive bytes.
func (a *Archive) Fingerprint() string { return a.fingerprint }

// Size is the length of the archive in bytes.
func (a *Archive) Size() int64 { return a.size }

// Entries returns the entries in archive order.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// PathEntries returns the entry listing in the form the tree builder takes.
func (a *Archive) PathEntries() []pathtree.Entry {
	out := make([]pathtree.Entry, len(a.entries))
	for i, e := range a.entries {
		out[i] = pathtree.Entry{Path: e.Path, IsDir: e.IsDir}
	}
	return out
}

// Has reports whether the archive holds an entry at path. Trailing slashes
// are ignored.
func (a *Archive) Has(path string) bool {
	_, ok := a.files[pathtree.Normalize(path)]
	return ok
}

// IsDir reports whether path names an explicit directory entry.
func (a *Archive) IsDir(path string) bool {
	f, ok := a.files[pathtree.Normalize(path)]
	return ok && (strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir())
}

// ReadFile decompresses the entry at path.
func (a *Archive) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, ok := a.files[pathtree.Normalize(path)]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("%s not found in archive", path))
	}
	if strings.HasSuffix(f.Name, "/") {
		return nil, errors.ValidationError(fmt.Sprintf("%s is a directory", path), nil)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer rc.Close()

	hint := f.UncompressedSize64
	if hint > maxPrealloc {
		hint = maxPrealloc
	}
	buf := bytes.NewBuffer(make([]byte, 0, int(hint)))
	if _, err := io.Copy(buf, rc); err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// Checksum returns the xxhash of the decompressed entry at path.
func (a *Archive) Checksum(ctx context.Context, path string) (uint64, error) {
	data, err := a.ReadFile(ctx, path)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
