// Package onnx - ONNX Runtime engine.
//
// The engine binds preallocated tensors to an advanced session, so Run is a single native call
// with no allocation. Execution providers come from the providers package; without any the
// session runs on the CPU.
package onnx

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/providers"
	"github.com/nvr-ai/edge-vision/logger"
)

var envMu sync.Mutex

// environment initializes the ONNX Runtime environment once per process.
func environment(library string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if library == "" {
		library = providers.SharedLibPath()
	}
	if _, err := os.Stat(library); err != nil {
		return errors.Wrapf(inference.ErrUnsupported, "onnx: runtime library %s: %v", library, err)
	}
	ort.SetSharedLibraryPath(library)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(inference.ErrBackend, "onnx: initialize environment: %v", err)
	}
	logger.Log().Info("onnx runtime initialized", zap.String("library", library))
	return nil
}

// binding is one session tensor.
type binding struct {
	tensor inference.Tensor
	value  ort.ArbitraryTensor
}

// Engine implements inference.NamedEngine on ONNX Runtime.
type Engine struct {
	config  providers.Config
	init    inference.InitConfig
	session *ort.AdvancedSession
	inputs  []binding
	outputs []binding
	gen     inference.Generation
}

var _ inference.NamedEngine = (*Engine)(nil)

// New creates an ONNX engine that builds its sessions from c.
func New(c providers.Config) *Engine {
	return &Engine{config: c}
}

// Init initializes the ONNX Runtime environment. ONNX Runtime manages its own memory, so an
// arena is recorded and otherwise ignored.
func (e *Engine) Init(opts ...inference.InitOption) error {
	e.init = inference.NewInitConfig(opts...)
	if err := e.config.Validate(); err != nil {
		return err
	}
	return environment(e.config.Library)
}

// Load creates a session for the serialized model in data, replacing any previous one. Dynamic
// dimensions are fixed to 1.
func (e *Engine) Load(data []byte) error {
	if !ort.IsInitialized() {
		return errors.Wrap(inference.ErrNotLoaded, "onnx: engine not initialized")
	}
	inInfo, outInfo, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "onnx: inspect model: %v", err)
	}

	e.release()
	e.gen.Bump()

	inputs, err := allocate(inInfo)
	if err != nil {
		return err
	}
	outputs, err := allocate(outInfo)
	if err != nil {
		destroy(inputs)
		return err
	}

	options, err := providers.NewSessionOptions(e.config)
	if err != nil {
		destroy(inputs)
		destroy(outputs)
		return err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSessionWithONNXData(data,
		names(inputs), names(outputs),
		values(inputs), values(outputs),
		options,
	)
	if err != nil {
		destroy(inputs)
		destroy(outputs)
		return errors.Wrapf(inference.ErrInvalidArgument, "onnx: create session: %v", err)
	}

	e.session = session
	e.inputs = inputs
	e.outputs = outputs
	logger.Log().Info("onnx engine loaded",
		zap.Int("inputs", len(inputs)),
		zap.Int("outputs", len(outputs)),
		zap.Int("providers", len(e.config.Providers)),
	)
	return nil
}

// LoadFile reads a model from disk.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "onnx: read %s: %v", path, err)
	}
	return e.Load(data)
}

// Run executes the session once.
func (e *Engine) Run() error {
	if e.session == nil {
		return inference.ErrNotLoaded
	}
	e.gen.Bump()
	if err := e.session.Run(); err != nil {
		return errors.Wrapf(inference.ErrBackend, "onnx: run: %v", err)
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

// InputByName returns the graph input called name.
func (e *Engine) InputByName(name string) (inference.Tensor, error) {
	return e.byName("input", e.inputs, name)
}

// OutputByName returns the graph output called name.
func (e *Engine) OutputByName(name string) (inference.Tensor, error) {
	return e.byName("output", e.outputs, name)
}

// Close destroys the session and its tensors. The process wide environment stays up.
func (e *Engine) Close() error {
	err := e.release()
	e.gen.Bump()
	logger.Log().Info("onnx engine closed")
	return err
}

func (e *Engine) release() error {
	var err error
	if e.session != nil {
		if derr := e.session.Destroy(); derr != nil {
			err = errors.Wrapf(inference.ErrBackend, "onnx: destroy session: %v", derr)
		}
		e.session = nil
	}
	destroy(e.inputs)
	destroy(e.outputs)
	e.inputs = nil
	e.outputs = nil
	return err
}

func (e *Engine) lookup(kind string, bs []binding, i int) (inference.Tensor, error) {
	if e.session == nil {
		return inference.Tensor{}, inference.ErrNotLoaded
	}
	if err := inference.CheckIndex(kind, i, len(bs)); err != nil {
		return inference.Tensor{}, err
	}
	return e.gen.Borrow(bs[i].tensor), nil
}

func (e *Engine) byName(kind string, bs []binding, name string) (inference.Tensor, error) {
	if e.session == nil {
		return inference.Tensor{}, inference.ErrNotLoaded
	}
	for _, b := range bs {
		if b.tensor.Name == name {
			return e.gen.Borrow(b.tensor), nil
		}
	}
	return inference.Tensor{}, errors.Wrapf(inference.ErrInvalidArgument, "onnx: no %s named %q", kind, name)
}

func allocate(infos []ort.InputOutputInfo) ([]binding, error) {
	bs := make([]binding, 0, len(infos))
	for _, info := range infos {
		b, err := newBinding(info)
		if err != nil {
			destroy(bs)
			return nil, err
		}
		bs = append(bs, b)
	}
	return bs, nil
}

func newBinding(info ort.InputOutputInfo) (binding, error) {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return binding{}, errors.Wrapf(inference.ErrUnsupported, "onnx: %q is not a tensor", info.Name)
	}
	typ, err := elementType(info.DataType)
	if err != nil {
		return binding{}, errors.Wrapf(err, "onnx: %q", info.Name)
	}
	shape, dims, variable, err := staticShape(info.Dimensions)
	if err != nil {
		return binding{}, errors.Wrapf(err, "onnx: %q", info.Name)
	}

	var (
		value ort.ArbitraryTensor
		data  []byte
	)
	switch typ {
	case inference.Float32:
		value, data, err = newTensor[float32](dims)
	case inference.Uint8:
		value, data, err = newTensor[uint8](dims)
	case inference.Int8:
		value, data, err = newTensor[int8](dims)
	case inference.Int16:
		value, data, err = newTensor[int16](dims)
	case inference.Int32:
		value, data, err = newTensor[int32](dims)
	case inference.Float16:
		data = make([]byte, shape.Elements()*typ.Size())
		value, err = ort.NewCustomDataTensor(dims, data, ort.TensorElementDataTypeFloat16)
	}
	if err != nil {
		return binding{}, errors.Wrapf(inference.ErrOutOfMemory, "onnx: allocate %q: %v", info.Name, err)
	}

	return binding{
		tensor: inference.Tensor{
			Name:     info.Name,
			Shape:    shape,
			Quant:    inference.Identity(),
			Type:     typ,
			Size:     len(data),
			Data:     data,
			Variable: variable,
		},
		value: value,
	}, nil
}

type numeric interface {
	float32 | uint8 | int8 | int16 | int32
}

func newTensor[T numeric](dims ort.Shape) (ort.ArbitraryTensor, []byte, error) {
	t, err := ort.NewEmptyTensor[T](dims)
	if err != nil {
		return nil, nil, err
	}
	return t, inference.BytesOf(t.GetData()), nil
}

// elementType maps an ONNX element type to the engine element types.
func elementType(t ort.TensorElementDataType) (inference.ElementType, error) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return inference.Float32, nil
	case ort.TensorElementDataTypeFloat16:
		return inference.Float16, nil
	case ort.TensorElementDataTypeUint8:
		return inference.Uint8, nil
	case ort.TensorElementDataTypeInt8:
		return inference.Int8, nil
	case ort.TensorElementDataTypeInt16:
		return inference.Int16, nil
	case ort.TensorElementDataTypeInt32:
		return inference.Int32, nil
	}
	return 0, errors.Wrapf(inference.ErrUnsupported, "element type %v", t)
}

// staticShape fixes dynamic dimensions to 1.
//
// Returns:
//   - inference.Shape: The shape reported by the engine.
//   - ort.Shape: The shape to allocate.
//   - bool: Whether any dimension was dynamic.
//   - error: ErrInvalidArgument when the rank exceeds inference.MaxRank.
func staticShape(dims ort.Shape) (inference.Shape, ort.Shape, bool, error) {
	fixed := make(ort.Shape, len(dims))
	variable := false
	for i, d := range dims {
		if d <= 0 {
			d = 1
			variable = true
		}
		fixed[i] = d
	}
	shape, err := inference.ShapeOf(fixed)
	if err != nil {
		return inference.Shape{}, nil, false, err
	}
	return shape, fixed, variable, nil
}

func destroy(bs []binding) {
	for _, b := range bs {
		if b.value != nil {
			_ = b.value.Destroy()
		}
	}
}

func names(bs []binding) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.tensor.Name
	}
	return out
}

func values(bs []binding) []ort.ArbitraryTensor {
	out := make([]ort.ArbitraryTensor, len(bs))
	for i, b := range bs {
		out[i] = b.value
	}
	return out
}
