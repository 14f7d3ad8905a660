package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/inference/engines/host"
)

func manifest(t *testing.T) string {
	t.Helper()
	data, err := host.Manifest{
		Name:    "cli",
		Inputs:  []host.TensorSpec{{Name: "images", Shape: []int{1, 3, 16, 16}, Type: "float32"}},
		Outputs: []host.TensorSpec{{Name: "logits", Shape: []int{1, 5}, Type: "float32"}},
	}.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cli.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", "-b", "host", "-m", manifest(t), "--log", "development")
	require.NoError(t, err)
	assert.Contains(t, out, "images")
	assert.Contains(t, out, "{1,3,16,16}")
	assert.Contains(t, out, "architecture: classifier")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-1.png", "frame-2.png"} {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 24, 12))))
		require.NoError(t, f.Close())
	}

	_, err := execute(t, "run", dir, "-b", "host", "-m", manifest(t), "--threshold", "0.2", "--repeat", "2")
	assert.NoError(t, err)
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", t.TempDir(), "-b", "host", "-m", manifest(t))
	assert.ErrorContains(t, err, "no images")

	_, err = execute(t, "inspect", "-b", "npu", "-m", manifest(t))
	assert.Error(t, err)

	_, err = execute(t, "inspect", "-b", "host")
	assert.ErrorContains(t, err, "no model")

	_, err = execute(t, "inspect", "-b", "host", "-m", manifest(t), "-a", "yolov5")
	assert.NoError(t, err)
}
