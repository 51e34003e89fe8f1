package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPrepareDownscales(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.png")
	writePNG(t, path, 800, 400)

	p := NewProcessor(200)
	got, err := p.Prepare(path)
	require.NoError(t, err)
	require.Equal(t, 200, got.Width)
	require.Equal(t, 100, got.Height)
	require.Equal(t, "image/jpeg", got.MimeType)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(got.Data))
	require.NoError(t, err)
	require.Equal(t, 200, cfg.Width)
	require.True(t, strings.HasPrefix(got.DataURL(), "data:image/jpeg;base64,"))
}

func TestPrepareKeepsSmallImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.png")
	writePNG(t, path, 64, 32)
	got, err := NewProcessor(0).Prepare(path)
	require.NoError(t, err)
	require.Equal(t, 64, got.Width)
	require.Equal(t, 32, got.Height)
}

func TestPrepareRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	_, err := NewProcessor(0).Prepare(path)
	require.Error(t, err)
}

func TestCleanerRemovesOnlyOldImages(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-time.Hour)
	for _, name := range []string{"old.jpg", "old.JPEG", "old.txt", "fresh.jpg"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		if strings.HasPrefix(name, "old") {
			require.NoError(t, os.Chtimes(p, old, old))
		}
	}

	c := NewCleaner(dir, 10*time.Minute, nil)
	require.Equal(t, 2, c.Clean(now))

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"old.txt", "fresh.jpg"}, names)

	require.Zero(t, NewCleaner(filepath.Join(dir, "missing"), time.Minute, nil).Clean(now))
}
