package model

import (
	"image"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
)

// Prepare decodes img and resizes it to the input size, stretching or letterboxing.
//
// Arguments:
//   - img: The frame.
//   - spec: The model input.
//   - letterbox: Whether to keep the frame aspect ratio.
//
// Returns:
//   - *image.NRGBA: The resized frame.
//   - images.Letterbox: Where the frame landed inside the input.
//   - error: inference.ErrUnsupported for an unknown frame format, inference.ErrInvalidArgument
//     for a malformed frame.
func Prepare(img *images.Image, spec InputSpec, letterbox bool) (*image.NRGBA, images.Letterbox, error) {
	if img == nil {
		return nil, images.Letterbox{}, errors.Wrap(inference.ErrInvalidArgument, "nil image")
	}
	decoded, err := images.Decode(img)
	if err != nil {
		if errors.Is(err, images.ErrUnsupportedFormat) {
			return nil, images.Letterbox{}, errors.Wrap(inference.ErrUnsupported, err.Error())
		}
		return nil, images.Letterbox{}, errors.Wrap(inference.ErrInvalidArgument, err.Error())
	}
	if letterbox {
		canvas, box := images.Fit(decoded, spec.Width, spec.Height, images.LetterboxColor)
		return canvas, box, nil
	}
	canvas, box := images.Stretch(decoded, spec.Width, spec.Height)
	return canvas, box, nil
}

// WriteInput converts src into the input tensor t.
//
// uint8 inputs receive raw pixels, int8 inputs receive pixels shifted by -128, and float
// inputs receive pixels scaled into [0, 1]. One channel inputs receive luma.
//
// Arguments:
//   - t: The engine input tensor.
//   - spec: The parsed input.
//   - src: An image of exactly spec.Width x spec.Height.
//
// Returns:
//   - error: inference.ErrUnsupported for element types no model feeds.
func WriteInput(t inference.Tensor, spec InputSpec, src *image.NRGBA) error {
	b := src.Bounds()
	if b.Dx() != spec.Width || b.Dy() != spec.Height {
		return errors.Wrapf(inference.ErrInvalidArgument, "image %dx%d for input %s", b.Dx(), b.Dy(), spec)
	}
	switch t.Type {
	case inference.Uint8:
		return write(t, spec, src, func(v uint8) uint8 { return v })
	case inference.Int8:
		return write(t, spec, src, func(v uint8) int8 { return int8(int(v) - 128) })
	case inference.Float32:
		return write(t, spec, src, func(v uint8) float32 { return float32(v) / 255 })
	case inference.Float16:
		return write(t, spec, src, func(v uint8) float16.Float16 { return float16.Fromfloat32(float32(v) / 255) })
	}
	return errors.Wrapf(inference.ErrUnsupported, "input type %s", t.Type)
}

func write[T inference.Element](t inference.Tensor, spec InputSpec, src *image.NRGBA, conv func(uint8) T) error {
	dst, err := inference.View[T](t)
	if err != nil {
		return err
	}
	if len(dst) < spec.Width*spec.Height*spec.Channels {
		return errors.Wrapf(inference.ErrInvalidArgument, "input %q holds %d elements", t.Name, len(dst))
	}

	for y := 0; y < spec.Height; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < spec.Width; x++ {
			px := row[x*4 : x*4+3]
			if spec.Channels == 1 {
				dst[spec.Offset(x, y, 0)] = conv(images.Luma(px[0], px[1], px[2]))
				continue
			}
			dst[spec.Offset(x, y, 0)] = conv(px[0])
			dst[spec.Offset(x, y, 1)] = conv(px[1])
			dst[spec.Offset(x, y, 2)] = conv(px[2])
		}
	}
	return nil
}
