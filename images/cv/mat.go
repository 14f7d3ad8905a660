// Package cv converts OpenCV frames for the detection pipeline. It is the only package that
// links OpenCV, so the decoders build without it.
package cv

import (
	"crypto/md5"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/edge-vision/images"
)

// FromMat copies an 8-bit, 3 channel OpenCV frame into a BGR888 Image.
//
// Arguments:
//   - mat: The frame, as returned by gocv.VideoCapture.Read.
//   - ts: The capture time.
//
// Returns:
//   - images.Image: The frame. Data is a copy, so mat can be reused immediately.
//   - error: An error if the mat is empty or not CV_8UC3.
func FromMat(mat gocv.Mat, ts time.Time) (images.Image, error) {
	if mat.Empty() {
		return images.Image{}, errors.New("empty frame")
	}
	if mat.Type() != gocv.MatTypeCV8UC3 {
		return images.Image{}, errors.Wrapf(images.ErrUnsupportedFormat, "mat type %v", mat.Type())
	}
	return images.Image{
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Format:    images.FormatBGR888,
		Timestamp: ts,
		Data:      mat.ToBytes(),
	}, nil
}

// Checksum hashes the pixels of mat, so a pipeline can skip frames a camera delivered twice.
// An empty or non continuous mat reports false.
func Checksum(mat gocv.Mat) ([md5.Size]byte, bool) {
	if mat.Empty() {
		return [md5.Size]byte{}, false
	}
	data, err := mat.DataPtrUint8()
	if err != nil {
		return [md5.Size]byte{}, false
	}
	return md5.Sum(data), true
}
