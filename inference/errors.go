// Package inference - Error kinds shared by engines and models.
package inference

import "github.com/pkg/errors"

// The error kinds every Engine and Model reports. Callers test for a kind with errors.Is; the
// concrete error usually wraps the kind with the failing tensor, backend or file.
var (
	// ErrInvalidArgument means a shape, type or value did not match what the callee expects.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported means no implementation exists for the requested combination.
	ErrUnsupported = errors.New("unsupported")
	// ErrOutOfMemory means a tensor or arena allocation failed.
	ErrOutOfMemory = errors.New("out of memory")
	// ErrBackend means the accelerator runtime rejected a model or a forward pass.
	ErrBackend = errors.New("backend failure")
	// ErrTimeout means the backend gave up waiting for a forward pass.
	ErrTimeout = errors.New("timeout")
	// ErrStale means a tensor view outlived the Run or Load that produced it.
	ErrStale = errors.New("stale tensor view")

	// ErrNotLoaded is returned by Run and the tensor accessors before a successful Load.
	ErrNotLoaded = errors.Wrap(ErrInvalidArgument, "no model loaded")
	// ErrOutOfRange is returned for a tensor index outside [0, count).
	ErrOutOfRange = errors.Wrap(ErrInvalidArgument, "tensor index out of range")
)

// IndexError reports an out of range tensor index.
//
// Arguments:
//   - kind: "input" or "output".
//   - index: The requested index.
//   - count: The number of tensors of that kind.
//
// Returns:
//   - error: An error wrapping ErrOutOfRange.
func IndexError(kind string, index, count int) error {
	return errors.Wrapf(ErrOutOfRange, "%s %d (have %d)", kind, index, count)
}

// CheckIndex returns IndexError when index is outside [0, count).
func CheckIndex(kind string, index, count int) error {
	if index < 0 || index >= count {
		return IndexError(kind, index, count)
	}
	return nil
}
