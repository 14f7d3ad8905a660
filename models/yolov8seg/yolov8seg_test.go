package yolov8seg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference/engines/host"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
	"github.com/nvr-ai/edge-vision/models/yolov8"
)

const (
	side   = 64
	protoH = 16
	protoW = 16
	coeffs = 4
)

type branch int

const (
	boxes branch = iota
	scores
	coefficients
	prototypes
)

type output struct {
	stride int
	kind   branch
}

func shape(o output, classes int) []int {
	n := 0
	if o.stride > 0 {
		n = (side / o.stride) * (side / o.stride)
	}
	switch o.kind {
	case boxes:
		return []int{1, n, yolov8.BoxWidth}
	case scores:
		return []int{1, n, classes}
	case coefficients:
		return []int{1, n, coeffs}
	}
	return []int{1, protoH, protoW, coeffs}
}

var layout = []output{
	{0, prototypes},
	{8, coefficients}, {8, boxes}, {8, scores},
	{16, scores}, {16, coefficients}, {16, boxes},
	{32, boxes}, {32, coefficients}, {32, scores},
}

func manifest(classes int) host.Manifest {
	m := host.Manifest{
		Name:   "yolov8-seg",
		Inputs: []host.TensorSpec{{Name: "images", Shape: []int{1, 3, side, side}, Type: "float32"}},
	}
	for _, o := range layout {
		m.Outputs = append(m.Outputs, host.TensorSpec{Shape: shape(o, classes), Type: "float32"})
	}
	return m
}

// values places one instance of class 1 at anchor 18 of stride 8, box (4, 4)-(36, 36). Its
// coefficients select prototype 0, which is positive in the left five prototype columns.
func values(classes int) []any {
	out := make([]any, len(layout))
	for i, o := range layout {
		s := shape(o, classes)
		n := 1
		for _, d := range s {
			n *= d
		}
		v := make([]float32, n)
		switch {
		case o.kind == prototypes:
			for y := 0; y < protoH; y++ {
				for x := 0; x < protoW; x++ {
					v[(y*protoW+x)*coeffs] = -1
					if x < 5 {
						v[(y*protoW+x)*coeffs] = 1
					}
				}
			}
		case o.kind == scores:
			for k := range v {
				v[k] = -10
			}
			if o.stride == 8 {
				v[18*classes+1] = 2
			}
		case o.kind == boxes && o.stride == 8:
			for edge := 0; edge < 4; edge++ {
				v[18*yolov8.BoxWidth+edge*postprocess.DFLBins+2] = 20
			}
		case o.kind == coefficients && o.stride == 8:
			v[18*coeffs] = 1
		}
		out[i] = v
	}
	return out
}

func TestIsValid(t *testing.T) {
	e, err := host.Open(manifest(2))
	require.NoError(t, err)
	assert.True(t, IsValid(e))

	m := manifest(2)
	m.Outputs = m.Outputs[1:]
	noProto, err := host.Open(m)
	require.NoError(t, err)
	assert.False(t, IsValid(noProto))

	m = manifest(2)
	m.Outputs[5].Shape[2] = coeffs + 1
	badCoeffs, err := host.Open(m)
	require.NoError(t, err)
	assert.False(t, IsValid(badCoeffs))
}

func TestEqualWidths(t *testing.T) {
	// With as many classes as coefficients, the lower output index of a stride is the score
	// branch.
	e, err := host.Open(manifest(coeffs))
	require.NoError(t, err)
	h, err := yolov8.ParseHead(e, yolov8.HeadSegment)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Proto)
	assert.Equal(t, coeffs, h.Classes)
	assert.Equal(t, yolov8.Level{Stride: 8, Anchors: 64, Boxes: 2, Scores: 1, Extra: 3}, h.Levels[0])
	assert.Equal(t, yolov8.Level{Stride: 16, Anchors: 16, Boxes: 6, Scores: 4, Extra: 5}, h.Levels[1])
}

func TestDecode(t *testing.T) {
	e, err := host.Open(manifest(2), host.WithForward(host.Replay(values(2)...)))
	require.NoError(t, err)
	m, err := New(e)
	require.NoError(t, err)
	w, h := m.MaskSize()
	assert.Equal(t, protoW, w)
	assert.Equal(t, protoH, h)

	img := &images.Image{Width: side, Height: side, Format: images.FormatRGB888, Data: make([]byte, side*side*3)}
	require.NoError(t, m.Run(context.Background(), img))

	segs := m.Segments()
	require.Len(t, segs, 1)
	s := segs[0]
	assert.Equal(t, 1, s.Box.Label)
	assert.InDelta(t, 0.5, s.Box.W, 1e-5)

	// The box covers prototype cells 1..8; the prototype is positive in columns 0..4.
	assert.Equal(t, protoW, s.Mask.Width)
	assert.Equal(t, 4*8, s.Mask.Count())
	assert.True(t, s.Mask.At(1, 1))
	assert.True(t, s.Mask.At(4, 8))
	assert.False(t, s.Mask.At(0, 0), "outside the box")
	assert.False(t, s.Mask.At(5, 5), "negative prototype")
	assert.False(t, s.Mask.At(4, 9), "below the box")
}

func TestDecodeLetterboxed(t *testing.T) {
	e, err := host.Open(manifest(2), host.WithForward(host.Replay(values(2)...)))
	require.NoError(t, err)
	m, err := New(e, model.WithLetterbox(true))
	require.NoError(t, err)

	// A 128x64 frame lands in input rows 16..48, so the input box (4, 4)-(36, 36) covers frame
	// rows 0..0.625.
	img := &images.Image{Width: 128, Height: 64, Format: images.FormatRGB888, Data: make([]byte, 128*64*3)}
	require.NoError(t, m.Run(context.Background(), img))

	segs := m.Segments()
	require.Len(t, segs, 1)
	s := segs[0]
	x1, y1, x2, y2 := s.Box.Extents()
	assert.InDelta(t, 0.0625, x1, 1e-5)
	assert.InDelta(t, 0, y1, 1e-5)
	assert.InDelta(t, 0.5625, x2, 1e-5)
	assert.InDelta(t, 0.625, y2, 1e-5)

	// The mask covers the frame at prototype resolution: 16 columns, and the 8 prototype rows
	// under the content region.
	require.Equal(t, protoW, s.Mask.Width)
	require.Equal(t, protoH/2, s.Mask.Height)

	// Every set cell lies inside the frame box, and the mask reaches its top and bottom rows.
	for y := 0; y < s.Mask.Height; y++ {
		for x := 0; x < s.Mask.Width; x++ {
			if !s.Mask.At(x, y) {
				continue
			}
			cx := (float32(x) + 0.5) / float32(s.Mask.Width)
			cy := (float32(y) + 0.5) / float32(s.Mask.Height)
			assert.True(t, cx >= x1 && cx <= x2 && cy >= y1 && cy <= y2, "cell (%d, %d) outside the box", x, y)
		}
	}
	assert.Equal(t, 4*5, s.Mask.Count(), "columns 1..4, frame rows 0..4")
	assert.True(t, s.Mask.At(1, 0))
	assert.True(t, s.Mask.At(4, 4))
	assert.False(t, s.Mask.At(4, 5), "below the box")
	assert.False(t, s.Mask.At(5, 2), "negative prototype")
	assert.False(t, s.Mask.At(0, 2), "left of the box")
}
