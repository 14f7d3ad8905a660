package model

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
)

// Layout is the channel ordering of an image input tensor.
type Layout int

const (
	// LayoutNHWC is height, width, channel ordering (TFLite).
	LayoutNHWC Layout = iota
	// LayoutNCHW is channel, height, width ordering (ONNX).
	LayoutNCHW
)

func (l Layout) String() string {
	if l == LayoutNCHW {
		return "nchw"
	}
	return "nhwc"
}

// InputSpec describes the image tensor a model feeds.
type InputSpec struct {
	Index    int
	Layout   Layout
	Width    int
	Height   int
	Channels int
	Type     inference.ElementType
	Quant    inference.QuantParam
}

func (s InputSpec) String() string {
	return fmt.Sprintf("%dx%dx%d %s %s", s.Width, s.Height, s.Channels, s.Layout, s.Type)
}

// Offset returns the element index of channel c of pixel (x, y).
func (s InputSpec) Offset(x, y, c int) int {
	if s.Layout == LayoutNCHW {
		return (c*s.Height+y)*s.Width + x
	}
	return (y*s.Width+x)*s.Channels + c
}

func isChannels(n int) bool {
	return n == 1 || n == 3
}

// ParseInput reads the layout and size of input i of e.
//
// Rank 4 shapes must have a batch of 1. A trailing 1 or 3 selects NHWC, otherwise a leading
// (post batch) 1 or 3 selects NCHW. Rank 3 shapes are read the same way without the batch.
//
// Arguments:
//   - e: A loaded engine.
//   - i: The input index.
//
// Returns:
//   - InputSpec: The parsed input.
//   - error: inference.ErrInvalidArgument when the tensor is not an image.
func ParseInput(e inference.Engine, i int) (InputSpec, error) {
	t, err := e.Input(i)
	if err != nil {
		return InputSpec{}, err
	}
	dims := t.Shape.Ints()
	switch len(dims) {
	case 4:
		if dims[0] != 1 {
			return InputSpec{}, errors.Wrapf(inference.ErrInvalidArgument, "input batch %d", dims[0])
		}
		dims = dims[1:]
	case 3:
	default:
		return InputSpec{}, errors.Wrapf(inference.ErrInvalidArgument, "input shape %s is not an image", t.Shape)
	}

	spec := InputSpec{Index: i, Type: t.Type, Quant: t.Quant}
	switch {
	case isChannels(dims[2]):
		spec.Layout = LayoutNHWC
		spec.Height, spec.Width, spec.Channels = dims[0], dims[1], dims[2]
	case isChannels(dims[0]):
		spec.Layout = LayoutNCHW
		spec.Channels, spec.Height, spec.Width = dims[0], dims[1], dims[2]
	default:
		return InputSpec{}, errors.Wrapf(inference.ErrInvalidArgument, "input shape %s has no 1 or 3 channel axis", t.Shape)
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return InputSpec{}, errors.Wrapf(inference.ErrInvalidArgument, "input shape %s", t.Shape)
	}
	return spec, nil
}

// Square returns the side of a square three channel input.
func (s InputSpec) Square() (int, error) {
	if s.Width != s.Height || s.Channels != 3 {
		return 0, errors.Wrapf(inference.ErrInvalidArgument, "input %s is not a square color image", s)
	}
	return s.Width, nil
}

// CheckDecodable reports whether a decoder can read elements of type t. The decoders read
// int8, uint8 and float32 tensors.
//
// Returns:
//   - error: inference.ErrUnsupported for float16, inference.ErrInvalidArgument for other types.
func CheckDecodable(t inference.ElementType) error {
	switch t {
	case inference.Int8, inference.Uint8, inference.Float32:
		return nil
	case inference.Float16:
		return errors.Wrap(inference.ErrUnsupported, "float16 outputs")
	}
	return errors.Wrapf(inference.ErrInvalidArgument, "%s outputs", t)
}

// Raw is the set of element types decoders read.
type Raw interface {
	int8 | uint8 | float32
}
