// Package postprocess - Quantization and activation math shared by the decoders.
package postprocess

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/edge-vision/inference"
)

// Number is the set of raw element types the decoders read.
type Number interface {
	~int8 | ~uint8 | ~float32
}

// Dequantize maps a raw value to its real value: (raw - zp) * scale.
func Dequantize[T Number](raw T, qp inference.QuantParam) float32 {
	return (float32(raw) - float32(qp.ZeroPoint)) * qp.Scale
}

// QuantizeFloor maps a real value into the raw domain, rounding down: floor(real/scale) + zp.
//
// The result is not clamped to the range of the element type, so it can be compared directly
// against raw values of any width.
func QuantizeFloor(real float32, qp inference.QuantParam) float32 {
	return math32.Floor(real/qp.Scale) + float32(qp.ZeroPoint)
}

// Sigmoid is the logistic function.
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// InverseSigmoid returns the logit of p, -ln(1/p - 1). It is -Inf at 0 and +Inf at 1.
func InverseSigmoid(p float32) float32 {
	switch {
	case p <= 0:
		return math32.Inf(-1)
	case p >= 1:
		return math32.Inf(1)
	}
	return -math32.Log(1/p - 1)
}

// RawThreshold converts a probability threshold into the domain of a raw logit tensor, so a
// dense grid can be filtered with one comparison per candidate and the sigmoid evaluated only
// for values that pass.
//
// Arguments:
//   - t: The probability threshold.
//   - qp: The tensor quantization.
//   - quantized: Whether the tensor holds quantized integers. Float tensors skip the
//     quantize step.
//
// Returns:
//   - float32: A cutoff such that raw > cutoff holds for every raw value whose sigmoid exceeds t.
func RawThreshold(t float32, qp inference.QuantParam, quantized bool) float32 {
	logit := InverseSigmoid(t)
	if math32.IsInf(logit, 0) || !quantized || !qp.Valid() {
		return logit
	}
	return QuantizeFloor(logit, qp)
}

// ScoreThreshold converts a probability threshold into the raw domain of a tensor that
// already holds probabilities.
func ScoreThreshold(t float32, qp inference.QuantParam, quantized bool) float32 {
	if !quantized || !qp.Valid() {
		return t
	}
	return QuantizeFloor(t, qp)
}

// Softmax writes the normalized exponentials of in to out. out must be at least as long as in.
func Softmax(in, out []float32) {
	if len(in) == 0 {
		return
	}
	peak := in[0]
	for _, v := range in[1:] {
		peak = math32.Max(peak, v)
	}
	var sum float32
	for i, v := range in {
		e := math32.Exp(v - peak)
		out[i] = e
		sum += e
	}
	for i := range in {
		out[i] /= sum
	}
}

// ArgMax returns the index and value of the largest element, or (-1, 0) for an empty slice.
// Ties resolve to the lowest index.
func ArgMax[T Number](s []T) (int, T) {
	if len(s) == 0 {
		return -1, 0
	}
	best, v := 0, s[0]
	for i := 1; i < len(s); i++ {
		if s[i] > v {
			best, v = i, s[i]
		}
	}
	return best, v
}
