package postprocess

import (
	"fmt"
	"sync"
)

// DefaultStrides are the feature map strides of the three-scale YOLO heads.
var DefaultStrides = []int{8, 16, 32}

// Anchor is a grid cell center in input pixels.
type Anchor struct {
	X, Y float32
}

// AnchorStride describes one scale's block inside the flattened anchor array.
type AnchorStride struct {
	// Stride is the feature map stride in input pixels.
	Stride int
	// Split is the grid width of the scale; anchor j sits in column j%Split, row j/Split.
	Split int
	// Size is the number of anchors of the scale.
	Size int
	// Start is the offset of the scale's first anchor in the flattened array.
	Start int
}

// AnchorMatrix holds the anchor centers of every scale for one input resolution.
//
// Matrices are shared between models and must not be modified.
type AnchorMatrix struct {
	Width   int
	Height  int
	Strides []AnchorStride
	Anchors [][]Anchor
}

// Count returns the total number of anchors across all scales.
func (m *AnchorMatrix) Count() int {
	n := 0
	for _, s := range m.Strides {
		n += s.Size
	}
	return n
}

// Find returns the scale index whose block contains the flattened anchor index i.
func (m *AnchorMatrix) Find(i int) (int, bool) {
	for k, s := range m.Strides {
		if i >= s.Start && i < s.Start+s.Size {
			return k, true
		}
	}
	return -1, false
}

var anchorCache sync.Map

// GenerateAnchors returns the anchor matrix for an input resolution and stride list.
//
// Each scale has a floor(width/stride) x floor(height/stride) grid; anchor j of a scale sits
// at ((j mod gw)*stride + stride/2, (j div gw)*stride + stride/2). Results are memoized per
// (width, height, strides) for the life of the process.
//
// Arguments:
//   - width: The input width in pixels.
//   - height: The input height in pixels.
//   - strides: The scale strides, in output order.
//
// Returns:
//   - *AnchorMatrix: The shared, read-only matrix.
func GenerateAnchors(width, height int, strides []int) *AnchorMatrix {
	key := fmt.Sprintf("%dx%d/%v", width, height, strides)
	if m, ok := anchorCache.Load(key); ok {
		return m.(*AnchorMatrix)
	}

	m := &AnchorMatrix{
		Width:   width,
		Height:  height,
		Strides: make([]AnchorStride, len(strides)),
		Anchors: make([][]Anchor, len(strides)),
	}
	start := 0
	for k, s := range strides {
		gw, gh := 0, 0
		if s > 0 {
			gw, gh = width/s, height/s
		}
		half := float32(s) * 0.5
		anchors := make([]Anchor, gw*gh)
		for j := range anchors {
			anchors[j] = Anchor{
				X: float32((j%gw)*s) + half,
				Y: float32((j/gw)*s) + half,
			}
		}
		m.Strides[k] = AnchorStride{Stride: s, Split: gw, Size: len(anchors), Start: start}
		m.Anchors[k] = anchors
		start += len(anchors)
	}

	actual, _ := anchorCache.LoadOrStore(key, m)
	return actual.(*AnchorMatrix)
}

// AnchorCount returns the total anchor count for a resolution without building the matrix.
func AnchorCount(width, height int, strides []int) int {
	n := 0
	for _, s := range strides {
		if s > 0 {
			n += (width / s) * (height / s)
		}
	}
	return n
}
