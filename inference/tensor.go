// Package inference - Tensor, shape and quantization descriptors.
package inference

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// MaxRank is the highest tensor rank a Shape can describe.
const MaxRank = 6

// Shape is a fixed capacity list of tensor dimensions.
//
// Only the first Size entries of Dims are meaningful.
type Shape struct {
	Dims [MaxRank]int32
	Size int
}

// NewShape builds a shape from dims.
//
// Arguments:
//   - dims: The dimensions, outermost first. At most MaxRank values.
//
// Returns:
//   - Shape: The shape. Dimensions past MaxRank are dropped; use ShapeOf to get an error instead.
func NewShape(dims ...int) Shape {
	s, err := ShapeOf(dims)
	if err != nil {
		s.Size = MaxRank
	}
	return s
}

// ShapeOf converts a dimension list reported by a backend into a Shape.
//
// Arguments:
//   - dims: The dimensions, outermost first.
//
// Returns:
//   - Shape: The shape.
//   - error: ErrInvalidArgument when the rank exceeds MaxRank.
func ShapeOf[T ~int | ~int32 | ~int64](dims []T) (Shape, error) {
	var s Shape
	for i, d := range dims {
		if i >= MaxRank {
			return s, errors.Wrapf(ErrInvalidArgument, "rank %d exceeds %d", len(dims), MaxRank)
		}
		s.Dims[i] = int32(d)
		s.Size++
	}
	return s, nil
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return s.Size
}

// Dim returns dimension i. Negative values index from the end, so Dim(-1) is the innermost
// dimension. Out of range indices return 0.
func (s Shape) Dim(i int) int {
	if i < 0 {
		i += s.Size
	}
	if i < 0 || i >= s.Size {
		return 0
	}
	return int(s.Dims[i])
}

// Elements returns the product of all dimensions, or 0 for a rank 0 shape.
func (s Shape) Elements() int {
	if s.Size == 0 {
		return 0
	}
	n := 1
	for i := 0; i < s.Size; i++ {
		n *= int(s.Dims[i])
	}
	return n
}

// Ints returns the dimensions as a slice.
func (s Shape) Ints() []int {
	out := make([]int, s.Size)
	for i := range out {
		out[i] = int(s.Dims[i])
	}
	return out
}

// Equal reports whether both shapes have the same rank and dimensions.
func (s Shape) Equal(o Shape) bool {
	if s.Size != o.Size {
		return false
	}
	for i := 0; i < s.Size; i++ {
		if s.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

// Is reports whether the shape matches dims exactly.
func (s Shape) Is(dims ...int) bool {
	if s.Size != len(dims) {
		return false
	}
	for i, d := range dims {
		if int(s.Dims[i]) != d {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	parts := make([]string, s.Size)
	for i := range parts {
		parts[i] = fmt.Sprint(s.Dims[i])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// QuantParam is the affine map from raw tensor values to real numbers:
//
//	real = (raw - ZeroPoint) * Scale
type QuantParam struct {
	Scale     float32 `json:"scale"      yaml:"scale"`
	ZeroPoint int32   `json:"zero_point" yaml:"zero_point"`
}

// Identity is the quantization reported for float tensors.
func Identity() QuantParam {
	return QuantParam{Scale: 1}
}

// Valid reports whether the scale is positive.
func (q QuantParam) Valid() bool {
	return q.Scale > 0
}

// ElementType is the scalar type stored in a tensor.
type ElementType uint8

const (
	// Uint8 is an unsigned 8-bit quantized element.
	Uint8 ElementType = iota + 1
	// Int8 is a signed 8-bit quantized element.
	Int8
	// Int16 is a signed 16-bit element.
	Int16
	// Int32 is a signed 32-bit element.
	Int32
	// Float16 is an IEEE half precision element.
	Float16
	// Float32 is an IEEE single precision element.
	Float32
)

// Size returns the element width in bytes, or 0 for an unknown type.
func (t ElementType) Size() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	}
	return 0
}

// Quantized reports whether the type carries quantization parameters.
func (t ElementType) Quantized() bool {
	return t == Uint8 || t == Int8 || t == Int16 || t == Int32
}

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("ElementType(%d)", uint8(t))
}

// ParseElementType maps a type name (as printed by String) to an ElementType.
func ParseElementType(name string) (ElementType, error) {
	for t := Uint8; t <= Float32; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown element type %q", name)
}

// Element is the set of Go types a tensor view can be read as.
type Element interface {
	uint8 | int8 | int16 | int32 | float16.Float16 | float32
}

// ElementTypeOf returns the ElementType matching T.
func ElementTypeOf[T Element]() ElementType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Uint8
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case float16.Float16:
		return Float16
	default:
		return Float32
	}
}

// Generation counts how often an engine has invalidated its tensor buffers.
//
// Engines bump it on every Load and Run. Tensors stamped by Borrow become stale as soon as the
// counter moves on.
type Generation struct {
	epoch uint64
}

// Bump invalidates every tensor borrowed so far.
func (g *Generation) Bump() {
	g.epoch++
}

// Epoch returns the current counter value.
func (g *Generation) Epoch() uint64 {
	return g.epoch
}

// Borrow stamps t with the current epoch.
func (g *Generation) Borrow(t Tensor) Tensor {
	t.gen = g
	t.epoch = g.epoch
	return t
}

// Tensor describes one engine owned input or output buffer.
//
// Data aliases engine memory without a copy. It stays valid until the engine's next Run or
// Load; the typed accessors report ErrStale after that point. Copy out anything that must
// outlive the current invocation.
type Tensor struct {
	Name     string
	Shape    Shape
	Quant    QuantParam
	Type     ElementType
	Size     int
	Data     []byte
	Variable bool

	gen   *Generation
	epoch uint64
}

// Stale reports whether the engine has moved past the epoch this tensor was borrowed at.
func (t Tensor) Stale() bool {
	return t.gen != nil && t.gen.epoch != t.epoch
}

// Bytes returns the raw buffer.
func (t Tensor) Bytes() ([]byte, error) {
	if t.Stale() {
		return nil, errors.Wrapf(ErrStale, "tensor %q", t.Name)
	}
	return t.Data, nil
}

// View reinterprets the tensor buffer as a slice of T without copying.
//
// Arguments:
//   - t: The tensor.
//
// Returns:
//   - []T: The elements.
//   - error: ErrStale for an invalidated tensor, ErrInvalidArgument when T does not match the
//     tensor element type.
func View[T Element](t Tensor) ([]T, error) {
	if t.Stale() {
		return nil, errors.Wrapf(ErrStale, "tensor %q", t.Name)
	}
	want := ElementTypeOf[T]()
	if t.Type != want {
		return nil, errors.Wrapf(ErrInvalidArgument, "tensor %q is %s, not %s", t.Name, t.Type, want)
	}
	n := len(t.Data) / want.Size()
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&t.Data[0])), n), nil
}

// Uint8s returns the buffer as uint8 elements.
func (t Tensor) Uint8s() ([]uint8, error) { return View[uint8](t) }

// Int8s returns the buffer as int8 elements.
func (t Tensor) Int8s() ([]int8, error) { return View[int8](t) }

// Int16s returns the buffer as int16 elements.
func (t Tensor) Int16s() ([]int16, error) { return View[int16](t) }

// Int32s returns the buffer as int32 elements.
func (t Tensor) Int32s() ([]int32, error) { return View[int32](t) }

// Float16s returns the buffer as half precision elements.
func (t Tensor) Float16s() ([]float16.Float16, error) { return View[float16.Float16](t) }

// Float32s returns the buffer as float32 elements.
func (t Tensor) Float32s() ([]float32, error) { return View[float32](t) }

// BytesOf reinterprets a typed slice as its backing bytes.
func BytesOf[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
