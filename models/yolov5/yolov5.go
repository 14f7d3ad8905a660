// Package yolov5 - postprocess YOLOv5 model outputs.
package yolov5

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// AnchorsPerCell is the number of anchor boxes each grid cell predicts.
const AnchorsPerCell = 3

// Layout is the shape of a YOLOv5 output.
type Layout struct {
	Size    int
	Rows    int
	Classes int
	Type    inference.ElementType
}

// Parse matches e against the YOLOv5 export: a square three channel input and one
// {1, N, 5+C} output with N = 3 * sum((size/stride)^2) rows of (cx, cy, w, h, objectness,
// class scores...), all normalized to [0, 1].
func Parse(e inference.Engine) (*Layout, error) {
	if e.InputCount() != 1 || e.OutputCount() != 1 {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "%d inputs, %d outputs", e.InputCount(), e.OutputCount())
	}
	spec, err := model.ParseInput(e, 0)
	if err != nil {
		return nil, err
	}
	size, err := spec.Square()
	if err != nil {
		return nil, err
	}
	t, err := e.Output(0)
	if err != nil {
		return nil, err
	}
	rows := AnchorsPerCell * postprocess.AnchorCount(size, size, postprocess.DefaultStrides)
	s := t.Shape
	if s.Rank() != 3 || s.Dim(0) != 1 || s.Dim(1) != rows || s.Dim(2) <= 5 {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "output shape %s, want {1,%d,5+C}", s, rows)
	}
	return &Layout{Size: size, Rows: rows, Classes: s.Dim(2) - 5, Type: t.Type}, nil
}

// IsValid reports whether e is a decodable YOLOv5 detector.
func IsValid(e inference.Engine) bool {
	l, err := Parse(e)
	return err == nil && model.CheckDecodable(l.Type) == nil
}

// Model is a YOLOv5 detector.
type Model struct {
	*model.Base
	layout *Layout
	boxes  []postprocess.BoundingBox
}

var _ model.Detector = (*Model)(nil)

// New binds a YOLOv5 detector to e.
//
// Arguments:
//   - e: A loaded engine.
//   - opts: Model options.
//
// Returns:
//   - *Model: The detector.
//   - error: An error if e is not a YOLOv5 export.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	l, err := Parse(e)
	if err != nil {
		return nil, errors.Wrap(err, "yolov5")
	}
	if err := model.CheckDecodable(l.Type); err != nil {
		return nil, errors.Wrap(err, "yolov5")
	}
	m := &Model{layout: l}
	if m.Base, err = model.NewBase(model.TypeYOLOv5, e, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Boxes returns the detections of the last frame.
func (m *Model) Boxes() []postprocess.BoundingBox {
	return m.boxes
}

// Reset implements model.Decoder.
func (m *Model) Reset() {
	clear(m.boxes)
	m.boxes = m.boxes[:0]
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

	m.boxes = postprocess.NMS(m.boxes, opts.NMSConfig())
	m.boxes = model.TopK(m.boxes, opts.TopK)
	for i := range m.boxes {
		m.boxes[i] = m.MapBox(m.boxes[i])
	}
	return nil
}

// decode keeps rows whose objectness times best class score is above threshold. Objectness
// alone is compared first, in the raw domain, since the product can never exceed it.
func decode[T model.Raw](m *Model, t inference.Tensor, threshold float32) error {
	data, err := inference.View[T](t)
	if err != nil {
		return err
	}
	cols := 5 + m.layout.Classes
	if len(data) < m.layout.Rows*cols {
		return errors.Wrapf(inference.ErrInvalidArgument, "output holds %d elements", len(data))
	}

	q := t.Quant
	cut := postprocess.ScoreThreshold(threshold, q, t.Type.Quantized())
	for i := 0; i < m.layout.Rows; i++ {
		row := data[i*cols : (i+1)*cols]
		if !(float32(row[4]) > cut) {
			continue
		}
		label, best := postprocess.ArgMax(row[5:])
		score := postprocess.Dequantize(row[4], q) * postprocess.Dequantize(best, q)
		if !(score > threshold) {
			continue
		}

		cx := postprocess.Dequantize(row[0], q)
		cy := postprocess.Dequantize(row[1], q)
		w := postprocess.Dequantize(row[2], q)
		h := postprocess.Dequantize(row[3], q)
		m.boxes = append(m.boxes, postprocess.BoxFromExtents(cx-w/2, cy-h/2, cx+w/2, cy+h/2, score, label))
	}
	return nil
}
