package yolov8pose

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
	"github.com/nvr-ai/edge-vision/models/postprocess"
	"github.com/nvr-ai/edge-vision/models/yolov8"
)

const (
	side      = 64
	keypoints = 2
)

type branch int

const (
	boxes branch = iota
	scores
	points
)

type output struct {
	stride int
	kind   branch
}

func (o output) shape() []int {
	n := (side / o.stride) * (side / o.stride)
	switch o.kind {
	case boxes:
		return []int{1, n, yolov8.BoxWidth}
	case scores:
		return []int{1, n, 1}
	}
	return []int{1, n, 3 * keypoints}
}

var layout = []output{
	{8, points}, {8, boxes}, {8, scores},
	{16, scores}, {16, points}, {16, boxes},
	{32, boxes}, {32, scores}, {32, points},
}

func manifest(typ string) host.Manifest {
	m := host.Manifest{
		Name:   "yolov8-pose",
		Inputs: []host.TensorSpec{{Name: "images", Shape: []int{1, side, side, 3}, Type: "uint8", Scale: 1}},
	}
	for _, o := range layout {
		m.Outputs = append(m.Outputs, host.TensorSpec{Shape: o.shape(), Type: typ, Scale: 1})
	}
	return m
}

// values places one person at anchor 18 of stride 8, centered at (20, 20).
func values() []any {
	out := make([]any, len(layout))
	for i, o := range layout {
		s := o.shape()
		v := make([]float32, s[1]*s[2])
		switch {
		case o.kind == scores:
			for k := range v {
				v[k] = -10
			}
			if o.stride == 8 {
				v[18] = 2
			}
		case o.kind == boxes && o.stride == 8:
			for edge := 0; edge < 4; edge++ {
				v[18*yolov8.BoxWidth+edge*postprocess.DFLBins+2] = 20
			}
		case o.kind == points && o.stride == 8:
			copy(v[18*3*keypoints:], []float32{0.5, -0.5, 3, 0, 0, -3})
		}
		out[i] = v
	}
	return out
}

func TestIsValid(t *testing.T) {
	e, err := host.Open(manifest("float32"))
	require.NoError(t, err)
	assert.True(t, IsValid(e))
	assert.False(t, yolov8.IsValid(e), "a pose head is not a detection head")

	m := manifest("float32")
	m.Outputs[0].Shape[2] = 50
	bad, err := host.Open(m)
	require.NoError(t, err)
	assert.False(t, IsValid(bad))

	half, err := host.Open(manifest("float16"))
	require.NoError(t, err)
	assert.False(t, IsValid(half))
	_, err = New(half)
	assert.True(t, errors.Is(err, inference.ErrUnsupported))
}

func TestDecode(t *testing.T) {
	e, err := host.Open(manifest("float32"), host.WithForward(host.Replay(values()...)))
	require.NoError(t, err)
	m, err := New(e, model.WithThreshold(0.5))
	require.NoError(t, err)
	assert.Equal(t, keypoints, m.KeypointCount())

	img := &images.Image{Width: side, Height: side, Format: images.FormatGray8, Data: make([]byte, side*side)}
	require.NoError(t, m.Run(context.Background(), img))

	poses := m.Keypoints()
	require.Len(t, poses, 1)
	p := poses[0]
	assert.InDelta(t, postprocess.Sigmoid(2), p.Box.Score, 1e-6)
	assert.Equal(t, 0, p.Box.Label)
	assert.InDelta(t, 20.0/side, p.Box.X, 1e-5)

	require.Len(t, p.Points, keypoints)
	// Grid cell (2, 2): x = (0.5*2 + 2) * 8, y = (-0.5*2 + 2) * 8.
	assert.InDelta(t, 24.0/side, p.Points[0].X, 1e-6)
	assert.InDelta(t, 8.0/side, p.Points[0].Y, 1e-6)
	assert.InDelta(t, postprocess.Sigmoid(3), p.Points[0].Score, 1e-6)
	assert.InDelta(t, 16.0/side, p.Points[1].X, 1e-6)
	assert.InDelta(t, 16.0/side, p.Points[1].Y, 1e-6)
	assert.Less(t, p.Points[1].Score, float32(0.5))

	require.NoError(t, m.SetConfig(model.Threshold(0.95)))
	require.NoError(t, m.Run(context.Background(), img))
	assert.Empty(t, m.Keypoints())
}
