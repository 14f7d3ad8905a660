// Package tflite - TensorFlow Lite engine.
//
// The interpreter owns every tensor buffer; the engine exposes them in place. Build with the
// edgetpu tag to attach a Coral Edge TPU as a delegate.
package tflite

import (
	"os"
	"unsafe"

	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithThreads sets the interpreter thread count. 0 keeps the TensorFlow Lite default.
func WithThreads(n int) Option {
	return func(e *Engine) {
		e.threads = n
	}
}

// WithEdgeTPU attaches the first Edge TPU found at load time. Loading fails with
// inference.ErrUnsupported when the binary was built without the edgetpu tag or no device is
// present.
func WithEdgeTPU(enabled bool) Option {
	return func(e *Engine) {
		e.edgeTPU = enabled
	}
}

// Engine implements inference.Engine on a TensorFlow Lite interpreter.
type Engine struct {
	threads int
	edgeTPU bool

	init    inference.InitConfig
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	detach  func()
	inputs  []inference.Tensor
	outputs []inference.Tensor
	gen     inference.Generation
}

var _ inference.Engine = (*Engine)(nil)

// New creates an uninitialized TensorFlow Lite engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init records the arena configuration. The interpreter plans its own memory, so the arena is
// not used.
func (e *Engine) Init(opts ...inference.InitOption) error {
	e.init = inference.NewInitConfig(opts...)
	return nil
}

// Load builds an interpreter for the flatbuffer model in data, replacing any previous one.
func (e *Engine) Load(data []byte) error {
	e.release()
	e.gen.Bump()

	model := tflite.NewModel(data)
	if model == nil {
		return errors.Wrap(inference.ErrInvalidArgument, "tflite: cannot parse model")
	}
	return e.build(model)
}

// LoadFile reads a model from disk.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "tflite: read %s: %v", path, err)
	}
	return e.Load(data)
}

func (e *Engine) build(model *tflite.Model) error {
	options := tflite.NewInterpreterOptions()
	if e.threads > 0 {
		options.SetNumThread(e.threads)
	}
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Log().Warn("tflite", zap.String("message", msg))
	}, nil)

	var detach func()
	if e.edgeTPU {
		var err error
		if detach, err = attachEdgeTPU(options); err != nil {
			options.Delete()
			model.Delete()
			return err
		}
	}

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		if detach != nil {
			detach()
		}
		options.Delete()
		model.Delete()
		return errors.Wrap(inference.ErrInvalidArgument, "tflite: cannot create interpreter")
	}
	e.model, e.options, e.interp, e.detach = model, options, interp, detach

	if status := interp.AllocateTensors(); status != tflite.OK {
		e.release()
		return errors.Wrapf(inference.ErrOutOfMemory, "tflite: allocate tensors: status %d", status)
	}

	var err error
	if e.inputs, err = describeAll(interp.GetInputTensorCount(), interp.GetInputTensor); err != nil {
		e.release()
		return err
	}
	if e.outputs, err = describeAll(interp.GetOutputTensorCount(), interp.GetOutputTensor); err != nil {
		e.release()
		return err
	}

	logger.Log().Info("tflite engine loaded",
		zap.Int("inputs", len(e.inputs)),
		zap.Int("outputs", len(e.outputs)),
		zap.Int("threads", e.threads),
		zap.Bool("edgetpu", e.detach != nil),
	)
	return nil
}

// Run invokes the interpreter once.
func (e *Engine) Run() error {
	if e.interp == nil {
		return inference.ErrNotLoaded
	}
	e.gen.Bump()
	if status := e.interp.Invoke(); status != tflite.OK {
		return errors.Wrapf(inference.ErrBackend, "tflite: invoke: status %d", status)
	}
	return nil
}

func (e *Engine) InputCount() int  { return len(e.inputs) }
func (e *Engine) OutputCount() int { return len(e.outputs) }

func (e *Engine) Input(i int) (inference.Tensor, error) {
	return e.lookup("input", e.inputs, i)
}

func (e *Engine) Output(i int) (inference.Tensor, error) {
	return e.lookup("output", e.outputs, i)
}

func (e *Engine) InputShape(i int) (inference.Shape, error) {
	t, err := e.lookup("input", e.inputs, i)
	return t.Shape, err
}

func (e *Engine) OutputShape(i int) (inference.Shape, error) {
	t, err := e.lookup("output", e.outputs, i)
	return t.Shape, err
}

func (e *Engine) InputQuantParam(i int) (inference.QuantParam, error) {
	t, err := e.lookup("input", e.inputs, i)
	return t.Quant, err
}

func (e *Engine) OutputQuantParam(i int) (inference.QuantParam, error) {
	t, err := e.lookup("output", e.outputs, i)
	return t.Quant, err
}

// Close deletes the interpreter, its delegate and the model.
func (e *Engine) Close() error {
	e.release()
	e.gen.Bump()
	logger.Log().Info("tflite engine closed")
	return nil
}

func (e *Engine) release() {
	if e.interp != nil {
		e.interp.Delete()
		e.interp = nil
	}
	if e.detach != nil {
		e.detach()
		e.detach = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	e.inputs = nil
	e.outputs = nil
}

func (e *Engine) lookup(kind string, ts []inference.Tensor, i int) (inference.Tensor, error) {
	if e.interp == nil {
		return inference.Tensor{}, inference.ErrNotLoaded
	}
	if err := inference.CheckIndex(kind, i, len(ts)); err != nil {
		return inference.Tensor{}, err
	}
	return e.gen.Borrow(ts[i]), nil
}

func describeAll(n int, get func(int) *tflite.Tensor) ([]inference.Tensor, error) {
	out := make([]inference.Tensor, 0, n)
	for i := 0; i < n; i++ {
		t := get(i)
		if t == nil {
			return nil, errors.Wrapf(inference.ErrBackend, "tflite: tensor %d missing", i)
		}
		d, err := describe(t)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// describe wraps an interpreter tensor without copying its buffer.
func describe(t *tflite.Tensor) (inference.Tensor, error) {
	typ, err := elementType(t.Type())
	if err != nil {
		return inference.Tensor{}, errors.Wrapf(err, "tflite: tensor %q", t.Name())
	}
	dims := make([]int, t.NumDims())
	for i := range dims {
		dims[i] = t.Dim(i)
	}
	shape, err := inference.ShapeOf(dims)
	if err != nil {
		return inference.Tensor{}, errors.Wrapf(err, "tflite: tensor %q", t.Name())
	}
	qp := t.QuantizationParams()

	size := int(t.ByteSize())
	var data []byte
	if p := t.Data(); p != nil && size > 0 {
		data = unsafe.Slice((*byte)(p), size)
	}
	return inference.Tensor{
		Name:  t.Name(),
		Shape: shape,
		Quant: quantParam(typ, qp.Scale, qp.ZeroPoint),
		Type:  typ,
		Size:  size,
		Data:  data,
	}, nil
}

// elementType maps a TensorFlow Lite tensor type to the engine element types.
// float16Type is kTfLiteFloat16. go-tflite does not export a constant for it.
const float16Type tflite.TensorType = 10

func elementType(t tflite.TensorType) (inference.ElementType, error) {
	switch t {
	case tflite.UInt8:
		return inference.Uint8, nil
	case tflite.Int8:
		return inference.Int8, nil
	case tflite.Int16:
		return inference.Int16, nil
	case tflite.Int32:
		return inference.Int32, nil
	case float16Type:
		return inference.Float16, nil
	case tflite.Float32:
		return inference.Float32, nil
	}
	return 0, errors.Wrapf(inference.ErrUnsupported, "tensor type %v", t)
}

// quantParam converts interpreter quantization. Float tensors, and integer tensors exported
// without quantization (scale 0), report the identity.
func quantParam(typ inference.ElementType, scale float64, zeroPoint int) inference.QuantParam {
	if !typ.Quantized() || scale <= 0 {
		return inference.Identity()
	}
	return inference.QuantParam{Scale: float32(scale), ZeroPoint: int32(zeroPoint)}
}
