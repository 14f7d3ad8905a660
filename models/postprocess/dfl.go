package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/edge-vision/inference"
)

// DFLBins is the number of distribution bins per box edge used by YOLOv8 heads.
const DFLBins = 16

// DFL decodes one box edge from its bin logits: the expectation of the bin index under the
// softmax of the dequantized logits. The result is in stride units.
//
// Arguments:
//   - raw: The bin logits for one edge.
//   - qp: The tensor quantization.
//
// Returns:
//   - float32: The edge distance in [0, len(raw)-1].
func DFL[T Number](raw []T, qp inference.QuantParam) float32 {
	if len(raw) == 0 {
		return 0
	}
	// Softmax is shift invariant, so the raw maximum is enough to keep exp in range.
	_, peak := ArgMax(raw)
	top := Dequantize(peak, qp)
	var sum, weighted float32
	for i, v := range raw {
		e := math32.Exp(Dequantize(v, qp) - top)
		sum += e
		weighted += e * float32(i)
	}
	return weighted / sum
}

// DecodeDFLBox turns four edge distances around an anchor into a normalized box.
//
// Arguments:
//   - anchor: The anchor center in input pixels.
//   - stride: The stride of the anchor's scale.
//   - d: Left, top, right and bottom distances in stride units.
//   - width: The input width in pixels.
//   - height: The input height in pixels.
//   - score: The box score.
//   - label: The box label.
//
// Returns:
//   - BoundingBox: The center-form box clipped to [0, 1].
func DecodeDFLBox(anchor Anchor, stride float32, d [4]float32, width, height int, score float32, label int) BoundingBox {
	w, h := float32(width), float32(height)
	return BoxFromExtents(
		(anchor.X-d[0]*stride)/w,
		(anchor.Y-d[1]*stride)/h,
		(anchor.X+d[2]*stride)/w,
		(anchor.Y+d[3]*stride)/h,
		score,
		label,
	)
}
