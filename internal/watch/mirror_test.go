package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dpack/internal/overlay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestMirror_Sync(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "teams.csv"), "1,Alpha")
	writeFile(t, filepath.Join(root, "club_logos", "1.png"), "\x89PNG")
	writeFile(t, filepath.Join(root, ".hidden"), "x")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref")

	store := overlay.NewMemory()
	m, err := NewMirror(root, "Pack/", store, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	n, err := m.Sync()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Pack/club_logos/1.png", "Pack/teams.csv"}, store.Paths())

	c, _ := store.Read("Pack/teams.csv")
	assert.Equal(t, overlay.KindText, c.Kind)
	c, _ = store.Read("Pack/club_logos/1.png")
	assert.Equal(t, overlay.KindBinary, c.Kind)
}

func TestMirror_Run(t *testing.T) {
	root := t.TempDir()
	store := overlay.NewMemory()

	m, err := NewMirror(root, "", store, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	writeFile(t, filepath.Join(root, "teams.csv"), "2,Beta")
	require.Eventually(t, func() bool {
		c, ok := store.Read("teams.csv")
		return ok && c.String() == "2,Beta"
	}, 5*time.Second, 20*time.Millisecond)

	// files in directories created after start are picked up too
	require.NoError(t, os.Mkdir(filepath.Join(root, "adboards"), 0755))
	writeFile(t, filepath.Join(root, "adboards", "3.png"), "img")
	require.Eventually(t, func() bool {
		return store.Has("adboards/3.png")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMirror_ShouldIgnore(t *testing.T) {
	root := t.TempDir()
	m, err := NewMirror(root, "", overlay.NewMemory(), nil)
	require.NoError(t, err)
	defer m.Close()

	assert.True(t, m.ShouldIgnore(root))
	assert.True(t, m.ShouldIgnore(filepath.Join(root, ".git", "config")))
	assert.True(t, m.ShouldIgnore(filepath.Join(root, "teams.csv~")))
	assert.False(t, m.ShouldIgnore(filepath.Join(root, "data", "teams.csv")))
}
