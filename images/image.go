// Package images - Image definition for processing utilities.
package images

import (
	"time"

	"github.com/pkg/errors"
)

// ErrUnsupportedFormat is returned for pixel formats the converters cannot read.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image is a frame handed to a model by its owner, typically a camera pipeline.
//
// The model never keeps a reference to Data after preprocessing completes.
type Image struct {
	// The width of the image in pixels, before rotation.
	Width int `json:"width" yaml:"width"`
	// The height of the image in pixels, before rotation.
	Height int `json:"height" yaml:"height"`
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// Rotation to apply, clockwise.
	Rotation Rotation `json:"rotation" yaml:"rotation"`
	// Capture time of the frame.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
}

// Rotation is a clockwise rotation in multiples of 90 degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported rotations.
func (r Rotation) Valid() bool {
	return r == Rotate0 || r == Rotate90 || r == Rotate180 || r == Rotate270
}

// Swaps reports whether the rotation exchanges width and height.
func (r Rotation) Swaps() bool {
	return r == Rotate90 || r == Rotate270
}

// Size returns the frame size after rotation.
func (img *Image) Size() (int, int) {
	if img.Rotation.Swaps() {
		return img.Height, img.Width
	}
	return img.Width, img.Height
}

// Validate checks the descriptor against the buffer length.
//
// Returns:
//   - error: ErrUnsupportedFormat for an unknown format, or a descriptive error for a
//     mismatched buffer.
func (img *Image) Validate() error {
	if img == nil {
		return errors.New("image is nil")
	}
	if len(img.Data) == 0 {
		return errors.New("image data is empty")
	}
	if !img.Rotation.Valid() {
		return errors.Errorf("invalid rotation %d", img.Rotation)
	}
	if img.Format.Encoded() {
		return nil
	}
	bpp := img.Format.BytesPerPixel()
	if bpp == 0 {
		return errors.Wrapf(ErrUnsupportedFormat, "%q", img.Format)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return errors.Errorf("invalid image dimensions: %dx%d", img.Width, img.Height)
	}
	if want := img.Width * img.Height * bpp; len(img.Data) < want {
		return errors.Errorf("%s %dx%d needs %d bytes, have %d", img.Format, img.Width, img.Height, want, len(img.Data))
	}
	return nil
}
