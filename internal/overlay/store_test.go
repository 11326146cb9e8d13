package overlay

import (
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent(t *testing.T) {
	text := Text("1,Alpha")
	assert.Equal(t, KindText, text.Kind)
	assert.Equal(t, []byte("1,Alpha"), text.Bytes())
	assert.Equal(t, 7, text.Len())

	bin := Binary([]byte{0x89, 'P'})
	assert.Equal(t, KindBinary, bin.Kind)
	assert.Equal(t, "\x89P", bin.String())

	k, err := ParseKind("binary")
	require.NoError(t, err)
	assert.Equal(t, KindBinary, k)

	_, err = ParseKind("blob")
	assert.Error(t, err)
}

// storeContract runs the behavior every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()

	assert.False(t, s.Has("Pack/teams.csv"))
	_, ok := s.Read("Pack/teams.csv")
	assert.False(t, ok)

	require.NoError(t, s.Write("Pack/teams.csv", Text("1,Alpha")))
	require.NoError(t, s.Write("Pack/club_logos/7.png", Binary([]byte{1, 2, 3})))
	require.NoError(t, s.Write("Pack/teams.csv", Text("1,Alpha Rebranded")))

	got, ok := s.Read("Pack/teams.csv")
	require.True(t, ok)
	assert.Equal(t, KindText, got.Kind)
	assert.Equal(t, "1,Alpha Rebranded", got.String())

	got, ok = s.Read("Pack/club_logos/7.png")
	require.True(t, ok)
	assert.Equal(t, KindBinary, got.Kind)

	assert.Equal(t, []string{"Pack/club_logos/7.png", "Pack/teams.csv"}, s.Paths())
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	storeContract(t, m)
	assert.Equal(t, 2, m.Len())
}

func TestDurable(t *testing.T) {
	t.Run("InMemoryIndex", func(t *testing.T) {
		opts := badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
		db, err := badger.Open(opts)
		require.NoError(t, err)
		defer db.Close()

		d, err := NewDurable(db, t.TempDir())
		require.NoError(t, err)
		defer d.Close()

		storeContract(t, d)
	})

	t.Run("SurvivesReopen", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "session")

		d, err := OpenDurable(dir)
		require.NoError(t, err)
		require.NoError(t, d.Write("Pack/teams.csv", Text("v1")))
		require.NoError(t, d.Write("Pack/teams.csv", Text("v2")))
		require.NoError(t, d.Write("Pack/adboards/1.webp", Binary([]byte("RIFF"))))
		require.NoError(t, d.Close())

		d, err = OpenDurable(dir)
		require.NoError(t, err)
		defer d.Close()

		assert.Equal(t, 2, d.Len())
		got, ok := d.Read("Pack/teams.csv")
		require.True(t, ok)
		assert.Equal(t, KindText, got.Kind)
		assert.Equal(t, "v2", got.String())

		got, ok = d.Read("Pack/adboards/1.webp")
		require.True(t, ok)
		assert.Equal(t, KindBinary, got.Kind)
		assert.Equal(t, []byte("RIFF"), got.Bytes())
	})

	t.Run("ReleasesReplacedBlobs", func(t *testing.T) {
		opts := badger.DefaultOptions("").WithInMemory(true)
		opts.Logger = nil
		db, err := badger.Open(opts)
		require.NoError(t, err)
		defer db.Close()

		d, err := NewDurable(db, t.TempDir())
		require.NoError(t, err)
		defer d.Close()

		require.NoError(t, d.Write("a.csv", Text("old")))
		oldHash := d.hashes["a.csv"]
		require.NoError(t, d.Write("a.csv", Text("new")))

		ok, err := d.blobs.Exists(oldHash)
		require.NoError(t, err)
		assert.False(t, ok)

		// same content written twice keeps exactly one live reference
		require.NoError(t, d.Write("a.csv", Text("new")))
		meta, err := d.blobs.Meta(d.hashes["a.csv"])
		require.NoError(t, err)
		assert.Equal(t, uint32(1), meta.RefCount)
	})
}
