// Package classifier - Single output image classifier.
package classifier

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// classCount returns the class count of a classifier output: {1, C} or {1, 1, 1, C}.
func classCount(s inference.Shape) int {
	switch {
	case s.Rank() == 2 && s.Dim(0) == 1:
		return s.Dim(1)
	case s.Rank() == 4 && s.Dim(0) == 1 && s.Dim(1) == 1 && s.Dim(2) == 1:
		return s.Dim(3)
	}
	return 0
}

func check(e inference.Engine) (int, inference.ElementType, error) {
	if e.InputCount() != 1 || e.OutputCount() != 1 {
		return 0, 0, errors.Wrapf(inference.ErrInvalidArgument, "%d inputs, %d outputs", e.InputCount(), e.OutputCount())
	}
	if _, err := model.ParseInput(e, 0); err != nil {
		return 0, 0, err
	}
	t, err := e.Output(0)
	if err != nil {
		return 0, 0, err
	}
	n := classCount(t.Shape)
	if n == 0 {
		return 0, 0, errors.Wrapf(inference.ErrInvalidArgument, "output shape %s", t.Shape)
	}
	switch t.Type {
	case inference.Int8, inference.Uint8, inference.Float32, inference.Float16:
		return n, t.Type, nil
	}
	return 0, 0, errors.Wrapf(inference.ErrInvalidArgument, "%s outputs", t.Type)
}

// IsValid reports whether e is an image classifier.
func IsValid(e inference.Engine) bool {
	_, _, err := check(e)
	return err == nil
}

// Model is an image classifier.
type Model struct {
	*model.Base
	count   int
	classes []postprocess.Class
	scores  []float32
}

var _ model.Classifier = (*Model)(nil)

// New binds a classifier to e.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	n, _, err := check(e)
	if err != nil {
		return nil, errors.Wrap(err, "classifier")
	}
	m := &Model{count: n, scores: make([]float32, n)}
	if m.Base, err = model.NewBase(model.TypeClassifier, e, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Count returns the number of classes scored.
func (m *Model) Count() int {
	return m.count
}

// Classes returns the classes above the threshold of the last frame, best first.
func (m *Model) Classes() []postprocess.Class {
	return m.classes
}

// Reset implements model.Decoder.
func (m *Model) Reset() {
	m.classes = m.classes[:0]
}

// Postprocess implements model.Decoder.
func (m *Model) Postprocess() error {
	t, err := m.Engine().Output(0)
	if err != nil {
		return err
	}
	switch t.Type {
	case inference.Int8:
		err = dequantize[int8](m.scores, t)
	case inference.Uint8:
		err = dequantize[uint8](m.scores, t)
	case inference.Float32:
		err = dequantize[float32](m.scores, t)
	case inference.Float16:
		err = halfs(m.scores, t)
	default:
		err = errors.Wrapf(inference.ErrInvalidArgument, "%s outputs", t.Type)
	}
	if err != nil {
		return err
	}

	opts := m.Options()
	if opts.Softmax {
		postprocess.Softmax(m.scores, m.scores)
	}
	for label, score := range m.scores {
		if score > opts.Threshold {
			m.classes = append(m.classes, postprocess.Class{Score: score, Label: label})
		}
	}
	sort.SliceStable(m.classes, func(i, j int) bool {
		return m.classes[i].Score > m.classes[j].Score
	})
	m.classes = model.TopK(m.classes, opts.TopK)
	return nil
}

func dequantize[T model.Raw](dst []float32, t inference.Tensor) error {
	src, err := inference.View[T](t)
	if err != nil {
		return err
	}
	if len(src) < len(dst) {
		return errors.Wrapf(inference.ErrInvalidArgument, "output holds %d elements", len(src))
	}
	for i := range dst {
		dst[i] = postprocess.Dequantize(src[i], t.Quant)
	}
	return nil
}

func halfs(dst []float32, t inference.Tensor) error {
	src, err := t.Float16s()
	if err != nil {
		return err
	}
	if len(src) < len(dst) {
		return errors.Wrapf(inference.ErrInvalidArgument, "output holds %d elements", len(src))
	}
	for i := range dst {
		dst[i] = src[i].Float32()
	}
	return nil
}
