package cv

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// MotionGate decides whether a live frame changed enough to be worth running a model on.
//
// Each frame goes through MOG2 background subtraction, a binary threshold and a dilation; the
// frame moves when any external contour of the mask covers at least MinArea pixels. The gate
// keeps a background model across frames and holds native memory until Close.
//
// Usage:
//
//	gate := cv.NewMotionGate(500)
//	defer gate.Close()
//
//	for webcam.Read(&mat) {
//	    if moving, _ := gate.Moving(mat); !moving {
//	        continue
//	    }
//	    ...
//	}
type MotionGate struct {
	// MinArea is the contour area in pixels that counts as motion.
	MinArea float64
	// Threshold is the foreground intensity cutoff applied to the subtractor output.
	Threshold float32

	delta      gocv.Mat
	mask       gocv.Mat
	kernel     gocv.Mat
	background gocv.BackgroundSubtractorMOG2
}

// NewMotionGate creates a gate with a 3x3 dilation kernel and a threshold of 25.
//
// Arguments:
//   - minArea: The contour area in pixels that counts as motion.
//
// Returns:
//   - *MotionGate: The gate. Call Close to release it.
func NewMotionGate(minArea float64) *MotionGate {
	return &MotionGate{
		MinArea:    minArea,
		Threshold:  25,
		delta:      gocv.NewMat(),
		mask:       gocv.NewMat(),
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		background: gocv.NewBackgroundSubtractorMOG2(),
	}
}

// Moving feeds frame to the background model and reports whether it contains motion.
func (g *MotionGate) Moving(frame gocv.Mat) (bool, error) {
	if frame.Empty() {
		return false, errors.New("empty frame")
	}
	if err := g.background.Apply(frame, &g.delta); err != nil {
		return false, errors.Wrap(err, "background subtraction")
	}
	gocv.Threshold(g.delta, &g.mask, g.Threshold, 255, gocv.ThresholdBinary)
	if err := gocv.Dilate(g.mask, &g.mask, g.kernel); err != nil {
		return false, errors.Wrap(err, "dilate")
	}

	contours := gocv.FindContours(g.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) >= g.MinArea {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the native matrices and the background model.
func (g *MotionGate) Close() {
	g.delta.Close()
	g.mask.Close()
	g.kernel.Close()
	g.background.Close()
}
