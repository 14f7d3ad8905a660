// Package fomo - FOMO centroid detector.
//
// FOMO scores every cell of a 1/8 resolution grid. Class 0 is background; a cell whose best
// object class is above the threshold is reported as a point at the cell center.
package fomo

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// Stride is the input pixels per grid cell.
const Stride = 8

// Grid is the shape of a FOMO output.
type Grid struct {
	Width   int
	Height  int
	Classes int
	Type    inference.ElementType
}

// Parse matches e against a FOMO export: a square input and one {1, H/8, W/8, C} output with
// C >= 2.
func Parse(e inference.Engine) (*Grid, error) {
	if e.InputCount() != 1 || e.OutputCount() != 1 {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "%d inputs, %d outputs", e.InputCount(), e.OutputCount())
	}
	spec, err := model.ParseInput(e, 0)
	if err != nil {
		return nil, err
	}
	if spec.Width != spec.Height {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "input %s is not square", spec)
	}
	t, err := e.Output(0)
	if err != nil {
		return nil, err
	}
	g := &Grid{Width: spec.Width / Stride, Height: spec.Height / Stride, Type: t.Type}
	if !t.Shape.Is(1, g.Height, g.Width, t.Shape.Dim(3)) || t.Shape.Dim(3) < 2 || g.Width == 0 {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "output shape %s for a %dx%d grid", t.Shape, g.Width, g.Height)
	}
	g.Classes = t.Shape.Dim(3)
	return g, nil
}

// IsValid reports whether e is a decodable FOMO model.
func IsValid(e inference.Engine) bool {
	g, err := Parse(e)
	return err == nil && model.CheckDecodable(g.Type) == nil
}

// Model is a FOMO detector.
type Model struct {
	*model.Base
	grid   *Grid
	points []postprocess.Point
}

var _ model.PointDetector = (*Model)(nil)

// New binds a FOMO detector to e.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	g, err := Parse(e)
	if err != nil {
		return nil, errors.Wrap(err, "fomo")
	}
	if err := model.CheckDecodable(g.Type); err != nil {
		return nil, errors.Wrap(err, "fomo")
	}
	m := &Model{grid: g}
	if m.Base, err = model.NewBase(model.TypeFOMO, e, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Points returns the object centers of the last frame. Labels count object classes from 0;
// the background class is not reported.
func (m *Model) Points() []postprocess.Point {
	return m.points
}

// Reset implements model.Decoder.
func (m *Model) Reset() {
	m.points = m.points[:0]
}

// Postprocess implements model.Decoder.
func (m *Model) Postprocess() error {
	t, err := m.Engine().Output(0)
	if err != nil {
		return err
	}
	opts := m.Options()
	switch t.Type {
	case inference.Int8:
		err = decode[int8](m, t, opts.Threshold)
	case inference.Uint8:
		err = decode[uint8](m, t, opts.Threshold)
	case inference.Float32:
		err = decode[float32](m, t, opts.Threshold)
	default:
		err = model.CheckDecodable(t.Type)
	}
	if err != nil {
		return err
	}

	sort.SliceStable(m.points, func(i, j int) bool {
		return m.points[i].Score > m.points[j].Score
	})
	m.points = model.TopK(m.points, opts.TopK)
	return nil
}

func decode[T model.Raw](m *Model, t inference.Tensor, threshold float32) error {
	data, err := inference.View[T](t)
	if err != nil {
		return err
	}
	g := m.grid
	if len(data) < g.Width*g.Height*g.Classes {
		return errors.Wrapf(inference.ErrInvalidArgument, "output holds %d elements", len(data))
	}

	cut := postprocess.ScoreThreshold(threshold, t.Quant, t.Type.Quantized())
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			cell := data[(y*g.Width+x)*g.Classes : (y*g.Width+x+1)*g.Classes]
			label, raw := postprocess.ArgMax(cell[1:])
			if !(float32(raw) > cut) {
				continue
			}
			score := postprocess.Dequantize(raw, t.Quant)
			if !(score > threshold) {
				continue
			}
			px, py := m.MapPoint((float32(x)+0.5)/float32(g.Width), (float32(y)+0.5)/float32(g.Height))
			m.points = append(m.points, postprocess.Point{
				X:     min(max(px, 0), 1),
				Y:     min(max(py, 0), 1),
				Score: score,
				Label: label,
			})
		}
	}
	return nil
}
