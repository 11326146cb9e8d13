package safe

import (
	"bytes"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSafe(t *testing.T) *Safe {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, Options{Root: t.TempDir(), CacheSize: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSafe(t *testing.T) {
	s := setupSafe(t)

	t.Run("PutGet", func(t *testing.T) {
		hash, err := s.Put("Pack/teams.csv", []byte("1,Alpha"))
		require.NoError(t, err)

		got, err := s.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, []byte("1,Alpha"), got)
	})

	t.Run("CompressesLargeText", func(t *testing.T) {
		content := bytes.Repeat([]byte("10,Alpha,Beta,Gamma\n"), 500)
		hash, err := s.Put("Pack/players.csv", content)
		require.NoError(t, err)

		meta, err := s.Meta(hash)
		require.NoError(t, err)
		assert.True(t, meta.Compressed)
		assert.Less(t, meta.StoredSize, meta.Size)

		// bypass the cache to exercise decompression
		s.cache.Purge()
		got, err := s.Get(hash)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("SkipsImages", func(t *testing.T) {
		content := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 1000)
		hash, err := s.Put("Pack/club_logos/1.png", content)
		require.NoError(t, err)

		meta, err := s.Meta(hash)
		require.NoError(t, err)
		assert.False(t, meta.Compressed)
	})

	t.Run("RefCounting", func(t *testing.T) {
		h1, err := s.Put("a.txt", []byte("shared"))
		require.NoError(t, err)
		h2, err := s.Put("b.txt", []byte("shared"))
		require.NoError(t, err)
		assert.Equal(t, h1, h2)

		require.NoError(t, s.Release(h1))
		ok, err := s.Exists(h1)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Release(h1))
		ok, err = s.Exists(h1)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = os.Stat(s.contentPath(h1))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("InvalidHash", func(t *testing.T) {
		_, err := s.Get("nope")
		assert.ErrorIs(t, err, ErrInvalidHash)

		_, err = s.Get(hashContent([]byte("never stored")))
		assert.ErrorIs(t, err, ErrContentNotFound)
	})
}
