package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/images"
)

func TestParseFrame(t *testing.T) {
	assert.Equal(t, 42, parseFrame("frame-0042.jpg"))
	assert.Equal(t, 7, parseFrame("cam1_7.png"))
	assert.Equal(t, -1, parseFrame("snapshot.webp"))
}

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600))
	}
	write("frame-10.jpg", "ten")
	write("frame-2.JPEG", "two")
	write("still.png", "still")
	write("frame-1.webp", "one")
	write("notes.txt", "skip")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-0.jpg"), 0o700))

	files, err := LoadDirectoryImageFiles(context.Background(), dir, 2)
	require.NoError(t, err)
	require.Len(t, files, 4)

	var frames []int
	for _, f := range files {
		frames = append(frames, f.Frame)
	}
	assert.Equal(t, []int{1, 2, 10, -1}, frames)
	assert.Equal(t, images.FormatWebP, files[0].Image.Format)
	assert.Equal(t, images.FormatJPEG, files[1].Image.Format)
	assert.Equal(t, []byte("ten"), files[2].Image.Data)
	assert.Equal(t, images.FormatPNG, files[3].Image.Format)
	assert.Equal(t, filepath.Join(dir, "still.png"), files[3].Path)
}

func TestLoadDirectoryErrors(t *testing.T) {
	_, err := LoadDirectoryImageFiles(context.Background(), filepath.Join(t.TempDir(), "missing"), 1)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("a"), 0o600))
	_, err = LoadDirectoryImageFiles(ctx, dir, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
