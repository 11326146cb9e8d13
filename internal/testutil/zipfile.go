// Package testutil builds datapack fixtures for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// File is one fixture entry. A name ending in "/" is a directory.
type File struct {
	Name string
	Body string
}

// Zip builds an archive from files in the given order.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		header := &zip.FileHeader{Name: f.Name, Method: zip.Deflate}
		if strings.HasSuffix(f.Name, "/") {
			header.Method = zip.Store
		}
		w, err := zw.CreateHeader(header)
		require.NoError(t, err)
		if f.Body != "" {
			_, err = w.Write([]byte(f.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// Datapack is the small pack most tests start from.
func Datapack(t testing.TB) []byte {
	return Zip(t,
		File{Name: "Pack/"},
		File{Name: "Pack/teams.csv", Body: "1,Alpha"},
		File{Name: "Pack/logos/"},
	)
}

// PNG encodes a solid w x h image.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Entries reads back every entry of an archive as name -> body.
func Entries(t testing.TB, data []byte) (names []string, bodies map[string]string) {
	t.Helper()

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	bodies = make(map[string]string, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		var b bytes.Buffer
		_, err = b.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		bodies[f.Name] = b.String()
	}
	return names, bodies
}
