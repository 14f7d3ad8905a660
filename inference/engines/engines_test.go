package engines

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/engines/host"
)

func TestOpenHost(t *testing.T) {
	data, err := host.Manifest{
		Name:    "probe",
		Inputs:  []host.TensorSpec{{Name: "images", Shape: []int{1, 3, 8, 8}, Type: "float32"}},
		Outputs: []host.TensorSpec{{Name: "scores", Shape: []int{1, 4}, Type: "float32"}},
	}.Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "probe.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	e, err := Open(Settings{Type: inference.EngineHost, ArenaSize: 1 << 12}, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ins, outs := inference.Describe(e)
	assert.Equal(t, []inference.Shape{inference.NewShape(1, 3, 8, 8)}, ins)
	assert.Equal(t, []inference.Shape{inference.NewShape(1, 4)}, outs)
	assert.NoError(t, e.Run())
}

func TestOpenErrors(t *testing.T) {
	_, err := New(Settings{Type: "npu"})
	assert.ErrorIs(t, err, inference.ErrUnsupported)

	_, err = Open(Settings{Type: inference.EngineHost}, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, inference.ErrInvalidArgument)
}

func TestNew(t *testing.T) {
	for _, typ := range inference.Engines {
		e, err := New(Settings{Type: typ})
		require.NoError(t, err, typ)
		assert.NotNil(t, e)
	}
}
