// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/chewxy/math32"

// Class is a single classification result.
type Class struct {
	// The confidence score of the result.
	Score float32 `json:"score"`
	// The predicted class index of the result.
	Label int `json:"label"`
}

// Point is a detected object center, normalized to [0, 1] against the input resolution.
type Point struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Score float32 `json:"score"`
	Label int     `json:"label"`
}

// BoundingBox is a center-form detection normalized to [0, 1] against the input resolution.
type BoundingBox struct {
	// X and Y are the box center.
	X float32 `json:"x"`
	Y float32 `json:"y"`
	// W and H are the full box extent.
	W     float32 `json:"w"`
	H     float32 `json:"h"`
	Score float32 `json:"score"`
	Label int     `json:"label"`
}

// Extents returns the corner coordinates of the box.
func (b BoundingBox) Extents() (x1, y1, x2, y2 float32) {
	return b.X - b.W/2, b.Y - b.H/2, b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H, or 0 for a degenerate box.
func (b BoundingBox) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// BoxFromExtents builds a center-form box from corners, clipping the corners to [0, 1].
func BoxFromExtents(x1, y1, x2, y2, score float32, label int) BoundingBox {
	x1, y1 = clamp01(x1), clamp01(y1)
	x2, y2 = clamp01(x2), clamp01(y2)
	return BoundingBox{
		X:     (x1 + x2) / 2,
		Y:     (y1 + y2) / 2,
		W:     x2 - x1,
		H:     y2 - y1,
		Score: score,
		Label: label,
	}
}

// Keypoint is one landmark of a pose. Z is zero for 2D models.
type Keypoint struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	Z     float32 `json:"z"`
	Score float32 `json:"score"`
}

// Keypoints is a detection with its ordered landmark set.
type Keypoints struct {
	Box    BoundingBox `json:"box"`
	Points []Keypoint  `json:"points"`
}

// Segmentation is a detection with its instance mask.
type Segmentation struct {
	Box  BoundingBox `json:"box"`
	Mask Mask        `json:"mask"`
}

// clamp01 clips v into [0, 1]; NaN becomes 0.
func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	return math32.Min(v, 1)
}
