package preview

import (
	"bytes"
	"image"
	"testing"

	"dpack/internal/errors"
	"dpack/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(Options{}, nil)

	p, err := reg.Acquire("Pack/club_logos/1.png", testutil.PNG(t, 480, 240))
	require.NoError(t, err)
	assert.Equal(t, "png", p.Format)
	assert.Equal(t, 480, p.Width)
	assert.NotEmpty(t, p.Handle)

	thumb, _, err := image.Decode(bytes.NewReader(p.Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, 120, thumb.Bounds().Dx())
	assert.Equal(t, 60, thumb.Bounds().Dy())

	got, ok := reg.Get(p.Handle)
	require.True(t, ok)
	assert.Same(t, p, got)

	assert.True(t, reg.Release(p.Handle))
	assert.False(t, reg.Release(p.Handle))
	_, ok = reg.Get(p.Handle)
	assert.False(t, ok)
}

func TestRegistry_RejectsNonImages(t *testing.T) {
	reg := NewRegistry(Options{}, nil)
	_, err := reg.Acquire("Pack/teams.csv", []byte("1,Alpha"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Zero(t, reg.Len())
}

func TestRegistry_MaxHandles(t *testing.T) {
	reg := NewRegistry(Options{MaxHandles: 1}, nil)
	img := testutil.PNG(t, 8, 8)

	_, err := reg.Acquire("a.png", img)
	require.NoError(t, err)
	_, err = reg.Acquire("b.png", img)
	assert.Error(t, err)

	reg.Close()
	assert.Zero(t, reg.Len())
	_, err = reg.Acquire("b.png", img)
	assert.NoError(t, err)
}

func TestGallery_Replace(t *testing.T) {
	reg := NewRegistry(Options{ThumbSize: 16}, nil)
	g := reg.NewGallery()
	img := testutil.PNG(t, 32, 32)

	first, failed := g.Replace(map[string][]byte{
		"Pack/adboards/2.png": img,
		"Pack/adboards/1.png": img,
		"Pack/adboards/x.png": []byte("broken"),
	})
	require.Len(t, first, 2)
	assert.Equal(t, "Pack/adboards/1.png", first[0].Path)
	assert.Equal(t, []string{"Pack/adboards/x.png"}, failed)
	assert.Equal(t, 2, reg.Len())

	second, _ := g.Replace(map[string][]byte{"Pack/adboards/3.png": img})
	require.Len(t, second, 1)
	assert.Equal(t, 1, reg.Len())
	for _, p := range first {
		_, ok := reg.Get(p.Handle)
		assert.False(t, ok, "superseded handle %s still live", p.Handle)
	}

	g.Close()
	assert.Zero(t, reg.Len())
	assert.Empty(t, g.Handles())
}
