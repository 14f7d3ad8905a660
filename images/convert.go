package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// Decode converts a frame of any supported format into an upright NRGBA image.
//
// Raw formats are unpacked pixel by pixel; JPEG, PNG and WebP are decoded. The frame
// rotation is applied last.
//
// Arguments:
//   - img: The frame.
//
// Returns:
//   - *image.NRGBA: The decoded image, never aliasing img.Data.
//   - error: ErrUnsupportedFormat for unknown formats, or a decode error.
func Decode(img *Image) (*image.NRGBA, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	var out *image.NRGBA
	switch img.Format {
	case FormatJPEG, FormatPNG, FormatWebP:
		decoded, err := decodeEncoded(img.Format, img.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", img.Format)
		}
		out = ToNRGBA(decoded)
	default:
		out = unpack(img)
	}
	return Rotate(out, img.Rotation), nil
}

func decodeEncoded(format ImageFormat, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatPNG:
		return png.Decode(r)
	default:
		return webp.Decode(r)
	}
}

// unpack expands a raw frame. The caller has validated format and length.
func unpack(img *Image) *image.NRGBA {
	w, h := img.Width, img.Height
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	src := img.Data
	dst := out.Pix

	switch img.Format {
	case FormatRGB888, FormatBGR888:
		r, b := 0, 2
		if img.Format == FormatBGR888 {
			r, b = 2, 0
		}
		for i := 0; i < w*h; i++ {
			dst[i*4+0] = src[i*3+r]
			dst[i*4+1] = src[i*3+1]
			dst[i*4+2] = src[i*3+b]
			dst[i*4+3] = 0xff
		}
	case FormatRGB565:
		for i := 0; i < w*h; i++ {
			v := uint16(src[i*2]) | uint16(src[i*2+1])<<8
			r5, g6, b5 := uint8(v>>11&0x1f), uint8(v>>5&0x3f), uint8(v&0x1f)
			dst[i*4+0] = r5<<3 | r5>>2
			dst[i*4+1] = g6<<2 | g6>>4
			dst[i*4+2] = b5<<3 | b5>>2
			dst[i*4+3] = 0xff
		}
	case FormatGray8:
		for i := 0; i < w*h; i++ {
			v := src[i]
			dst[i*4+0], dst[i*4+1], dst[i*4+2], dst[i*4+3] = v, v, v, 0xff
		}
	case FormatYUV422:
		// YUYV: Y0 U Y1 V covers two horizontally adjacent pixels.
		for i := 0; i+1 < w*h; i += 2 {
			y0, u, y1, v := src[i*2], src[i*2+1], src[i*2+2], src[i*2+3]
			r, g, b := color.YCbCrToRGB(y0, u, v)
			dst[i*4+0], dst[i*4+1], dst[i*4+2], dst[i*4+3] = r, g, b, 0xff
			r, g, b = color.YCbCrToRGB(y1, u, v)
			dst[i*4+4], dst[i*4+5], dst[i*4+6], dst[i*4+7] = r, g, b, 0xff
		}
	}
	return out
}

// ToNRGBA returns img as *image.NRGBA, converting only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Rotate returns src rotated clockwise by r. Rotate0 returns src itself.
func Rotate(src *image.NRGBA, r Rotation) *image.NRGBA {
	if r == Rotate0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := w, h
	if r.Swaps() {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))
	for dy := 0; dy < dh; dy++ {
		for dx := 0; dx < dw; dx++ {
			var sx, sy int
			switch r {
			case Rotate90:
				sx, sy = dy, h-1-dx
			case Rotate180:
				sx, sy = w-1-dx, h-1-dy
			default:
				sx, sy = w-1-dy, dx
			}
			copy(dst.Pix[dst.PixOffset(dx, dy):][:4], src.Pix[src.PixOffset(sx, sy):][:4])
		}
	}
	return dst
}

// Luma returns the BT.601 luma of an 8-bit RGB triple using integer weights, so grey input
// round trips unchanged.
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
