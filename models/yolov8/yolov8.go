// Package yolov8 - Anchor free YOLOv8 detector, fused or split head.
//
// The fused head is the usual single output export: {1, 4+C, N} (or its transpose), boxes in
// input pixels, class scores already passed through the sigmoid. The split head keeps the
// per stride branches of the network: DFL box logits and class logits, which is the layout
// quantized accelerator exports produce.
package yolov8

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// Fused is the layout of a single output head.
type Fused struct {
	Size    int
	Classes int
	Anchors int
	// Transposed is true for {1, N, 4+C} outputs.
	Transposed bool
	Type       inference.ElementType
}

// ParseFused matches the engine against a fused head.
func ParseFused(e inference.Engine) (*Fused, error) {
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

	s := t.Shape
	n := postprocess.AnchorCount(size, size, postprocess.DefaultStrides)
	f := &Fused{Size: size, Anchors: n, Type: t.Type}
	switch {
	case s.Rank() != 3 || s.Dim(0) != 1:
	case s.Dim(2) == n && s.Dim(1) > 4:
		f.Classes = s.Dim(1) - 4
		return f, nil
	case s.Dim(1) == n && s.Dim(2) > 4:
		f.Classes = s.Dim(2) - 4
		f.Transposed = true
		return f, nil
	}
	return nil, errors.Wrapf(inference.ErrInvalidArgument, "output shape %s for %d anchors", s, n)
}

// IsValidSplit reports whether e carries a decodable split detection head.
func IsValidSplit(e inference.Engine) bool {
	h, err := ParseHead(e, HeadDetect)
	return err == nil && model.CheckDecodable(h.Type) == nil
}

// IsValidFused reports whether e carries a decodable fused detection head.
func IsValidFused(e inference.Engine) bool {
	f, err := ParseFused(e)
	return err == nil && model.CheckDecodable(f.Type) == nil
}

// IsValid reports whether e is a YOLOv8 detector of either head layout.
func IsValid(e inference.Engine) bool {
	return IsValidSplit(e) || IsValidFused(e)
}

// Model is a YOLOv8 detector.
type Model struct {
	*model.Base
	head  *Head
	fused *Fused
	boxes []postprocess.BoundingBox
}

var _ model.Detector = (*Model)(nil)

// New binds a YOLOv8 detector to e. A split head is preferred when both layouts match.
//
// Arguments:
//   - e: A loaded engine.
//   - opts: Model options.
//
// Returns:
//   - *Model: The detector.
//   - error: inference.ErrInvalidArgument when the outputs form no head,
//     inference.ErrUnsupported for float16 outputs.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	m := &Model{}
	var typ inference.ElementType
	if e.OutputCount() == 1 {
		f, err := ParseFused(e)
		if err != nil {
			return nil, errors.Wrap(err, "yolov8")
		}
		m.fused, typ = f, f.Type
	} else {
		h, err := ParseHead(e, HeadDetect)
		if err != nil {
			return nil, errors.Wrap(err, "yolov8")
		}
		m.head, typ = h, h.Type
	}
	if err := model.CheckDecodable(typ); err != nil {
		logger.Log().Debug("yolov8 output type rejected", zap.Stringer("type", typ))
		return nil, errors.Wrap(err, "yolov8")
	}

	base, err := model.NewBase(model.TypeYOLOv8, e, m, opts...)
	if err != nil {
		return nil, err
	}
	m.Base = base
	return m, nil
}

// Split reports whether the model decodes a split head.
func (m *Model) Split() bool {
	return m.head != nil
}

// ClassCount returns the number of classes the head scores.
func (m *Model) ClassCount() int {
	if m.head != nil {
		return m.head.Classes
	}
	return m.fused.Classes
}

// Boxes returns the detections of the last frame, normalized against the frame.
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
	opts := m.Options()
	var err error
	if m.head != nil {
		err = m.head.Decode(m.Engine(), opts.Threshold, func(c Candidate) {
			m.boxes = append(m.boxes, c.Box)
		})
	} else {
		err = m.decodeFused(opts.Threshold)
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

func (m *Model) decodeFused(threshold float32) error {
	t, err := m.Engine().Output(0)
	if err != nil {
		return err
	}
	switch t.Type {
	case inference.Int8:
		return decodeFused[int8](m, t, threshold)
	case inference.Uint8:
		return decodeFused[uint8](m, t, threshold)
	case inference.Float32:
		return decodeFused[float32](m, t, threshold)
	}
	return model.CheckDecodable(t.Type)
}

func decodeFused[T model.Raw](m *Model, t inference.Tensor, threshold float32) error {
	data, err := inference.View[T](t)
	if err != nil {
		return err
	}
	f := m.fused
	n, cols := f.Anchors, 4+f.Classes
	if len(data) < n*cols {
		return errors.Wrapf(inference.ErrInvalidArgument, "output holds %d elements", len(data))
	}
	at := func(i, k int) T {
		if f.Transposed {
			return data[i*cols+k]
		}
		return data[k*n+i]
	}

	q := t.Quant
	cut := postprocess.ScoreThreshold(threshold, q, f.Type.Quantized())
	size := float32(f.Size)
	for i := 0; i < n; i++ {
		label, best := -1, T(0)
		for k := 4; k < cols; k++ {
			if v := at(i, k); label < 0 || v > best {
				label, best = k-4, v
			}
		}
		if !(float32(best) > cut) {
			continue
		}
		score := postprocess.Dequantize(best, q)
		if !(score > threshold) {
			continue
		}

		cx := postprocess.Dequantize(at(i, 0), q) / size
		cy := postprocess.Dequantize(at(i, 1), q) / size
		w := postprocess.Dequantize(at(i, 2), q) / size
		h := postprocess.Dequantize(at(i, 3), q) / size
		m.boxes = append(m.boxes, postprocess.BoxFromExtents(cx-w/2, cy-h/2, cx+w/2, cy+h/2, score, label))
	}
	return nil
}
