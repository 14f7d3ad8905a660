// Package yolov8seg - YOLOv8 instance segmentation on a split head.
//
// Masks are reported relative to the frame, like the boxes: a cell is set when it lies inside
// the instance box and the instance coefficients dotted with the prototypes under it are
// positive (sigmoid above one half). Without letterboxing the mask grid is the prototype grid;
// with it, the grid keeps the prototype resolution over the content region only.
package yolov8seg

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
	"github.com/nvr-ai/edge-vision/models/yolov8"
)

// IsValid reports whether e carries a decodable segmentation head: per stride boxes {1,n,64},
// scores {1,n,C} and coefficients {1,n,M}, plus prototypes {1,mh,mw,M}.
func IsValid(e inference.Engine) bool {
	h, err := yolov8.ParseHead(e, yolov8.HeadSegment)
	return err == nil && model.CheckDecodable(h.Type) == nil
}

// Model is a YOLOv8 segmentation model.
type Model struct {
	*model.Base
	head       *yolov8.Head
	candidates []yolov8.Candidate
	segments   []postprocess.Segmentation
	coeffs     []float32
}

var _ model.Segmentor = (*Model)(nil)

// New binds a segmentation model to e.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	h, err := yolov8.ParseHead(e, yolov8.HeadSegment)
	if err != nil {
		return nil, errors.Wrap(err, "yolov8seg")
	}
	if err := model.CheckDecodable(h.Type); err != nil {
		return nil, errors.Wrap(err, "yolov8seg")
	}
	m := &Model{head: h, coeffs: make([]float32, h.ExtraWidth)}
	if m.Base, err = model.NewBase(model.TypeYOLOv8Seg, e, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// MaskSize returns the prototype grid size. Letterboxed frames report masks over the part of
// the grid the frame covers, see images.Letterbox.Scale.
func (m *Model) MaskSize() (int, int) {
	s, _ := m.Engine().OutputShape(m.head.Proto)
	return s.Dim(2), s.Dim(1)
}

// Segments returns the instances of the last frame.
func (m *Model) Segments() []postprocess.Segmentation {
	return m.segments
}

// Reset implements model.Decoder.
func (m *Model) Reset() {
	m.candidates = m.candidates[:0]
	clear(m.segments)
	m.segments = m.segments[:0]
}

// Postprocess implements model.Decoder.
func (m *Model) Postprocess() error {
	opts := m.Options()
	err := m.head.Decode(m.Engine(), opts.Threshold, func(c yolov8.Candidate) {
		m.candidates = append(m.candidates, c)
	})
	if err != nil {
		return err
	}
	m.candidates = postprocess.NMSFunc(m.candidates, opts.NMSConfig(), func(c *yolov8.Candidate) *postprocess.BoundingBox {
		return &c.Box
	})
	m.candidates = model.TopK(m.candidates, opts.TopK)
	if len(m.candidates) == 0 {
		return nil
	}

	proto, err := m.Engine().Output(m.head.Proto)
	if err != nil {
		return err
	}
	for _, c := range m.candidates {
		coeffs, err := m.Engine().Output(m.head.Levels[c.Level].Extra)
		if err != nil {
			return err
		}
		box := m.MapBox(c.Box)
		var mask postprocess.Mask
		switch proto.Type {
		case inference.Int8:
			mask, err = decodeMask[int8](m, c, box, coeffs, proto)
		case inference.Uint8:
			mask, err = decodeMask[uint8](m, c, box, coeffs, proto)
		default:
			mask, err = decodeMask[float32](m, c, box, coeffs, proto)
		}
		if err != nil {
			return err
		}
		m.segments = append(m.segments, postprocess.Segmentation{Box: box, Mask: mask})
	}
	return nil
}

// decodeMask samples the prototypes under each frame cell of box, nearest cell, through the
// letterbox of the last frame.
func decodeMask[T model.Raw](m *Model, c yolov8.Candidate, box postprocess.BoundingBox, ct, pt inference.Tensor) (postprocess.Mask, error) {
	coeffs, err := inference.View[T](ct)
	if err != nil {
		return postprocess.Mask{}, err
	}
	proto, err := inference.View[T](pt)
	if err != nil {
		return postprocess.Mask{}, err
	}
	dims := m.head.ExtraWidth
	mh, mw := pt.Shape.Dim(1), pt.Shape.Dim(2)
	if len(coeffs) < (c.Anchor+1)*dims || len(proto) < mh*mw*dims {
		return postprocess.Mask{}, errors.Wrap(inference.ErrInvalidArgument, "mask outputs are short")
	}
	for k, raw := range coeffs[c.Anchor*dims : (c.Anchor+1)*dims] {
		m.coeffs[k] = postprocess.Dequantize(raw, ct.Quant)
	}

	lb := m.Letterbox()
	fw, fh := lb.Scale(mw, mh)
	mask := postprocess.NewMask(fw, fh)
	x1, y1, x2, y2 := box.Extents()
	r := images.NormRect(x1, y1, x2, y2, fw, fh)
	for y := r.Y1; y < r.Y2; y++ {
		for x := r.X1; x < r.X2; x++ {
			ix, iy := lb.Map((float32(x)+0.5)/float32(fw), (float32(y)+0.5)/float32(fh))
			px := min(mw-1, max(0, int(ix*float32(mw))))
			py := min(mh-1, max(0, int(iy*float32(mh))))
			cell := proto[(py*mw+px)*dims : (py*mw+px+1)*dims]
			var sum float32
			for k, p := range cell {
				sum += m.coeffs[k] * postprocess.Dequantize(p, pt.Quant)
			}
			if sum > 0 {
				mask.Set(x, y)
			}
		}
	}
	return mask, nil
}
