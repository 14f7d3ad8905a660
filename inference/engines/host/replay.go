package host

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Replay returns a forward function that writes recorded values into the outputs on every
// pass, ignoring the inputs. values[i] fills output i and must be a slice of the output's Go
// element type; a nil value leaves the output untouched.
//
// Replay turns a host engine into a stand-in for a real network whose outputs were captured
// once, which is how decoders are exercised without an accelerator.
func Replay(values ...any) ForwardFunc {
	return func(_ context.Context, _, outputs []*tensor.Dense) error {
		if len(values) > len(outputs) {
			return errors.Errorf("replay: %d values for %d outputs", len(values), len(outputs))
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			if err := fill(outputs[i], v); err != nil {
				return errors.Wrapf(err, "replay: output %d", i)
			}
		}
		return nil
	}
}

func fill(dst *tensor.Dense, v any) error {
	var n, want int
	switch src := v.(type) {
	case []float32:
		d, ok := dst.Data().([]float32)
		if !ok {
			return errors.Errorf("output is %v, value is []float32", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	case []int8:
		d, ok := dst.Data().([]int8)
		if !ok {
			return errors.Errorf("output is %v, value is []int8", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	case []uint8:
		d, ok := dst.Data().([]uint8)
		if !ok {
			return errors.Errorf("output is %v, value is []uint8", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	case []int16:
		d, ok := dst.Data().([]int16)
		if !ok {
			return errors.Errorf("output is %v, value is []int16", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	case []uint16:
		d, ok := dst.Data().([]uint16)
		if !ok {
			return errors.Errorf("output is %v, value is []uint16", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	case []int32:
		d, ok := dst.Data().([]int32)
		if !ok {
			return errors.Errorf("output is %v, value is []int32", dst.Dtype())
		}
		n, want = copy(d, src), len(src)
	default:
		return errors.Errorf("unsupported value %T", v)
	}
	if n != want {
		return errors.Errorf("value has %d elements, output holds %d", want, n)
	}
	return nil
}
