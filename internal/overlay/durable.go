package overlay

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"dpack/internal/safe"
	"dpack/internal/storage"

	"github.com/dgraph-io/badger/v4"
)

const indexPrefix = "overlay"

// record is the persisted index entry for one overlay path.
type record struct {
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Hash      string    `json:"hash"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Durable is a Store whose entries survive process restarts. Content lives in
// a deduplicating blob store, the path index lives in badger, and an in-memory
// copy serves reads.
type Durable struct {
	mu     sync.Mutex
	mem    *Memory
	index  *storage.BadgerStore
	blobs  *safe.Safe
	hashes map[string]string

	db     *badger.DB
	ownsDB bool
}

// OpenDurable opens (or creates) the durable overlay rooted at dir.
func OpenDurable(dir string) (*Durable, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "index"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening overlay index: %w", err)
	}

	d, err := NewDurable(db, filepath.Join(dir, "blobs"))
	if err != nil {
		db.Close()
		return nil, err
	}
	d.ownsDB = true
	return d, nil
}

// NewDurable builds a durable overlay on an existing database and loads every
// persisted entry. The caller keeps ownership of db.
func NewDurable(db *badger.DB, blobRoot string) (*Durable, error) {
	blobs, err := safe.New(db, safe.Options{Root: blobRoot})
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	d := &Durable{
		mem:    NewMemory(),
		index:  storage.NewBadgerStore(db, indexPrefix),
		blobs:  blobs,
		hashes: make(map[string]string),
		db:     db,
	}

	if err := d.load(); err != nil {
		blobs.Close()
		return nil, err
	}
	return d, nil
}

func (d *Durable) load() error {
	return d.index.Each(func(id string, raw []byte) error {
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decoding overlay record %s: %w", id, err)
		}

		kind, err := ParseKind(rec.Kind)
		if err != nil {
			return fmt.Errorf("overlay record %s: %w", id, err)
		}

		data, err := d.blobs.Get(rec.Hash)
		if err != nil {
			return fmt.Errorf("loading overlay content for %s: %w", id, err)
		}

		c := Binary(data)
		if kind == KindText {
			c = Text(string(data))
		}
		d.mem.Write(id, c)
		d.hashes[id] = rec.Hash
		return nil
	})
}

// Write persists c under path, then makes it visible to readers.
func (d *Durable) Write(path string, c Content) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash, err := d.blobs.Put(path, c.Bytes())
	if err != nil {
		return fmt.Errorf("storing overlay content: %w", err)
	}

	rec := record{
		Path:      path,
		Kind:      c.Kind.String(),
		Hash:      hash,
		Size:      c.Len(),
		UpdatedAt: time.Now(),
	}
	if err := d.index.Put(path, rec); err != nil {
		d.blobs.Release(hash)
		return fmt.Errorf("indexing overlay entry: %w", err)
	}

	if old, ok := d.hashes[path]; ok {
		if err := d.blobs.Release(old); err != nil {
			return fmt.Errorf("releasing previous content: %w", err)
		}
	}
	d.hashes[path] = hash

	return d.mem.Write(path, c)
}

func (d *Durable) Read(path string) (Content, bool) {
	return d.mem.Read(path)
}

func (d *Durable) Has(path string) bool {
	return d.mem.Has(path)
}

func (d *Durable) Paths() []string {
	return d.mem.Paths()
}

func (d *Durable) Len() int {
	return d.mem.Len()
}

// Close releases the blob store and, when opened with OpenDurable, the index.
func (d *Durable) Close() error {
	d.blobs.Close()
	if d.ownsDB {
		return d.db.Close()
	}
	return nil
}
