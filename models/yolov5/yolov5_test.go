package yolov5

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/engines/host"
	"github.com/nvr-ai/edge-vision/models/model"
)

const (
	side    = 32
	classes = 2
	rows    = AnchorsPerCell * (16 + 4 + 1)
	cols    = 5 + classes
)

func open(t *testing.T, typ string, scale float32, zp int32, values any) *host.Engine {
	t.Helper()
	e, err := host.Open(host.Manifest{
		Name:    "yolov5",
		Inputs:  []host.TensorSpec{{Name: "images", Shape: []int{1, side, side, 3}, Type: "uint8", Scale: 1}},
		Outputs: []host.TensorSpec{{Name: "output", Shape: []int{1, rows, cols}, Type: typ, Scale: scale, ZeroPoint: zp}},
	}, host.WithForward(host.Replay(values)))
	require.NoError(t, err)
	return e
}

func frame() *images.Image {
	return &images.Image{Width: side, Height: side, Format: images.FormatRGB888, Data: make([]byte, side*side*3)}
}

func table() []float32 {
	v := make([]float32, rows*cols)
	set := func(row int, vals ...float32) { copy(v[row*cols:], vals) }
	set(0, 0.5, 0.5, 0.2, 0.2, 0.9, 0.1, 0.9)   // 0.81, label 1
	set(7, 0.52, 0.5, 0.2, 0.2, 0.8, 0.1, 0.95) // 0.76, overlaps row 0
	set(30, 0.2, 0.2, 0.1, 0.1, 0.6, 0.9, 0.2)  // 0.54, label 0
	set(40, 0.8, 0.8, 0.1, 0.1, 0.9, 0.3, 0.4)  // 0.36, below threshold
	set(50, 0.8, 0.2, 0.1, 0.1, 0.4, 1.0, 0.0)  // objectness alone fails
	return v
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(open(t, "float32", 1, 0, nil)))

	e, err := host.Open(host.Manifest{
		Inputs:  []host.TensorSpec{{Name: "images", Shape: []int{1, side, side, 3}, Type: "uint8", Scale: 1}},
		Outputs: []host.TensorSpec{{Shape: []int{1, rows - 1, cols}, Type: "float32"}},
	})
	require.NoError(t, err)
	assert.False(t, IsValid(e))

	half := open(t, "float16", 1, 0, nil)
	assert.False(t, IsValid(half))
	_, err = New(half)
	assert.True(t, errors.Is(err, inference.ErrUnsupported))
}

func TestDecode(t *testing.T) {
	m, err := New(open(t, "float32", 1, 0, table()))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), frame()))

	boxes := m.Boxes()
	require.Len(t, boxes, 2)
	assert.Equal(t, 1, boxes[0].Label)
	assert.InDelta(t, 0.81, boxes[0].Score, 1e-6)
	assert.InDelta(t, 0.5, boxes[0].X, 1e-6)
	assert.InDelta(t, 0.2, boxes[0].W, 1e-6)
	assert.Equal(t, 0, boxes[1].Label)
	assert.InDelta(t, 0.54, boxes[1].Score, 1e-6)

	// Lowering the threshold only adds boxes: rows 40 (0.36) and 50 (0.4).
	require.NoError(t, m.SetConfig(model.Threshold(0.3)))
	require.NoError(t, m.Run(context.Background(), frame()))
	assert.Len(t, m.Boxes(), 4)
}

func TestDecodeUint8(t *testing.T) {
	// Quantized with scale 1/250 and zero point 0: raw 225 is 0.9.
	f := table()
	q := make([]uint8, len(f))
	for i, v := range f {
		q[i] = uint8(v*250 + 0.5)
	}
	m, err := New(open(t, "uint8", 1.0/250, 0, q), model.WithTopK(1))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), frame()))

	require.Len(t, m.Boxes(), 1)
	assert.Equal(t, 1, m.Boxes()[0].Label)
	assert.InDelta(t, 0.81, m.Boxes()[0].Score, 1e-4)
}
