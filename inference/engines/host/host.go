// Package host - Software reference engine.
//
// The host engine runs a Go forward function over gorgonia dense tensors. A model is a YAML
// manifest declaring the input and output tensors; the forward function supplies the
// computation. It stands in for an accelerator in tests and tools, and is the reference the
// native backends are checked against.
package host

import (
	"context"
	"os"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
)

// ForwardFunc computes the outputs from the inputs. Tensors are backed directly by engine
// buffers, so writes through Data() are what Output returns.
type ForwardFunc func(ctx context.Context, inputs, outputs []*tensor.Dense) error

// TensorSpec declares one tensor of a manifest.
type TensorSpec struct {
	Name      string  `yaml:"name"`
	Shape     []int   `yaml:"shape"`
	Type      string  `yaml:"type"`
	Scale     float32 `yaml:"scale"`
	ZeroPoint int32   `yaml:"zero_point"`
	Variable  bool    `yaml:"variable"`
}

// Manifest is the serialized model format of the host engine.
type Manifest struct {
	Name    string       `yaml:"name"`
	Inputs  []TensorSpec `yaml:"inputs"`
	Outputs []TensorSpec `yaml:"outputs"`
}

// Marshal encodes the manifest for Load.
func (m Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// Option configures an Engine.
type Option func(*Engine)

// WithForward sets the forward function run by Run. Without one, Run leaves outputs untouched.
func WithForward(fn ForwardFunc) Option {
	return func(e *Engine) {
		e.forward = fn
	}
}

// WithTimeout bounds each forward pass; an overrun is reported as inference.ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// buffer is one allocated tensor.
type buffer struct {
	tensor inference.Tensor
	dense  *tensor.Dense
}

// Engine implements inference.NamedEngine in pure Go.
type Engine struct {
	forward ForwardFunc
	timeout time.Duration

	config   inference.InitConfig
	arena    *inference.Arena
	manifest *Manifest
	inputs   []buffer
	outputs  []buffer
	gen      inference.Generation
}

var _ inference.NamedEngine = (*Engine)(nil)

// New creates an uninitialized host engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init records the arena configuration. Tensors are carved from the arena when one is
// configured, otherwise from the Go heap.
func (e *Engine) Init(opts ...inference.InitOption) error {
	e.config = inference.NewInitConfig(opts...)
	switch {
	case e.config.Arena != nil:
		e.arena = inference.NewArena(e.config.Arena)
	case e.config.ArenaSize > 0:
		e.arena = inference.NewArena(make([]byte, e.config.ArenaSize))
	default:
		e.arena = nil
	}
	return nil
}

// Load parses a manifest and allocates its tensors, replacing any previous model.
func (e *Engine) Load(data []byte) error {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "host: parse manifest: %v", err)
	}
	if len(m.Inputs) == 0 || len(m.Outputs) == 0 {
		return errors.Wrap(inference.ErrInvalidArgument, "host: manifest needs inputs and outputs")
	}

	// The previous model is gone from here on; a failed load leaves the engine empty.
	e.release()
	e.manifest = nil
	e.gen.Bump()
	if e.arena != nil {
		e.arena.Reset()
	}

	inputs, err := e.allocate(m.Inputs)
	if err != nil {
		return err
	}
	outputs, err := e.allocate(m.Outputs)
	if err != nil {
		return err
	}

	e.manifest = &m
	e.inputs = inputs
	e.outputs = outputs

	logger.Log().Info("host engine loaded",
		zap.String("model", m.Name),
		zap.Int("inputs", len(inputs)),
		zap.Int("outputs", len(outputs)),
	)
	return nil
}

// LoadFile reads a manifest from disk.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "host: read %s: %v", path, err)
	}
	return e.Load(data)
}

// Run calls the forward function once.
func (e *Engine) Run() error {
	if e.manifest == nil {
		return inference.ErrNotLoaded
	}
	e.gen.Bump()
	if e.forward == nil {
		return nil
	}

	ctx := context.Background()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	err := e.forward(ctx, denses(e.inputs), denses(e.outputs))
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(inference.ErrTimeout, "host: forward exceeded %s", e.timeout)
	}
	if err != nil {
		return errors.Wrapf(inference.ErrBackend, "host: forward: %v", err)
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

// InputByName returns the input tensor declared with name.
func (e *Engine) InputByName(name string) (inference.Tensor, error) {
	return e.byName("input", e.inputs, name)
}

// OutputByName returns the output tensor declared with name.
func (e *Engine) OutputByName(name string) (inference.Tensor, error) {
	return e.byName("output", e.outputs, name)
}

// Dense returns the gorgonia view of output i, for tools that want tensor operations on the
// result.
func (e *Engine) Dense(i int) (*tensor.Dense, error) {
	if err := inference.CheckIndex("output", i, len(e.outputs)); err != nil {
		return nil, err
	}
	return e.outputs[i].dense, nil
}

// Close drops the loaded model.
func (e *Engine) Close() error {
	e.release()
	e.manifest = nil
	e.gen.Bump()
	return nil
}

func (e *Engine) release() {
	e.inputs = nil
	e.outputs = nil
}

func (e *Engine) lookup(kind string, bufs []buffer, i int) (inference.Tensor, error) {
	if e.manifest == nil {
		return inference.Tensor{}, inference.ErrNotLoaded
	}
	if err := inference.CheckIndex(kind, i, len(bufs)); err != nil {
		return inference.Tensor{}, err
	}
	return e.gen.Borrow(bufs[i].tensor), nil
}

func (e *Engine) byName(kind string, bufs []buffer, name string) (inference.Tensor, error) {
	if e.manifest == nil {
		return inference.Tensor{}, inference.ErrNotLoaded
	}
	for _, b := range bufs {
		if b.tensor.Name == name {
			return e.gen.Borrow(b.tensor), nil
		}
	}
	return inference.Tensor{}, errors.Wrapf(inference.ErrInvalidArgument, "host: no %s named %q", kind, name)
}

func (e *Engine) allocate(specs []TensorSpec) ([]buffer, error) {
	bufs := make([]buffer, 0, len(specs))
	for _, spec := range specs {
		b, err := e.allocateOne(spec)
		if err != nil {
			return nil, err
		}
		bufs = append(bufs, b)
	}
	return bufs, nil
}

func (e *Engine) allocateOne(spec TensorSpec) (buffer, error) {
	typ, err := inference.ParseElementType(spec.Type)
	if err != nil {
		return buffer{}, errors.Wrapf(err, "host: tensor %q", spec.Name)
	}
	shape, err := inference.ShapeOf(spec.Shape)
	if err != nil {
		return buffer{}, errors.Wrapf(err, "host: tensor %q", spec.Name)
	}
	for _, d := range spec.Shape {
		if d <= 0 {
			return buffer{}, errors.Wrapf(inference.ErrInvalidArgument, "host: tensor %q has shape %v", spec.Name, spec.Shape)
		}
	}

	qp := inference.Identity()
	if typ.Quantized() {
		qp = inference.QuantParam{Scale: spec.Scale, ZeroPoint: spec.ZeroPoint}
		if !qp.Valid() {
			return buffer{}, errors.Wrapf(inference.ErrInvalidArgument, "host: tensor %q has scale %v", spec.Name, spec.Scale)
		}
	}

	size := shape.Elements() * typ.Size()
	var data []byte
	if e.arena != nil {
		if data, err = e.arena.Alloc(size); err != nil {
			return buffer{}, errors.Wrapf(err, "host: tensor %q", spec.Name)
		}
	} else {
		// Allocate as uint64 words so typed views are aligned.
		words := make([]uint64, (size+7)/8)
		data = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*8)[:size:size]
	}

	return buffer{
		tensor: inference.Tensor{
			Name:     spec.Name,
			Shape:    shape,
			Quant:    qp,
			Type:     typ,
			Size:     size,
			Data:     data,
			Variable: spec.Variable,
		},
		dense: tensor.New(tensor.WithShape(spec.Shape...), tensor.WithBacking(backing(typ, data))),
	}, nil
}

// backing reinterprets data as the typed slice gorgonia expects. Half precision tensors are
// exposed as uint16 since gorgonia has no float16 dtype.
func backing(typ inference.ElementType, data []byte) interface{} {
	p := unsafe.Pointer(unsafe.SliceData(data))
	n := len(data) / typ.Size()
	switch typ {
	case inference.Uint8:
		return unsafe.Slice((*uint8)(p), n)
	case inference.Int8:
		return unsafe.Slice((*int8)(p), n)
	case inference.Int16:
		return unsafe.Slice((*int16)(p), n)
	case inference.Int32:
		return unsafe.Slice((*int32)(p), n)
	case inference.Float16:
		return unsafe.Slice((*uint16)(p), n)
	default:
		return unsafe.Slice((*float32)(p), n)
	}
}

func denses(bufs []buffer) []*tensor.Dense {
	out := make([]*tensor.Dense, len(bufs))
	for i := range bufs {
		out[i] = bufs[i].dense
	}
	return out
}

// Open builds, initializes and loads a host engine from an in-memory manifest.
//
// Arguments:
//   - m: The manifest.
//   - opts: Engine options.
//
// Returns:
//   - *Engine: The loaded engine.
//   - error: An error if the manifest is invalid.
func Open(m Manifest, opts ...Option) (*Engine, error) {
	data, err := m.Marshal()
	if err != nil {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "host: encode manifest: %v", err)
	}
	e := New(opts...)
	if err := e.Init(); err != nil {
		return nil, err
	}
	if err := e.Load(data); err != nil {
		return nil, err
	}
	return e, nil
}
