// Package inference - Inference engine interface and implementations.
package inference

// Engine owns one loaded network and its input and output buffers on a single backend.
//
// Engines are not safe for concurrent use. The Model bound to an engine drives it from one
// goroutine; tensors returned by the accessors alias engine memory and go stale on the next
// Run or Load.
type Engine interface {
	// Init prepares backend resources. Options select a caller supplied or engine owned arena.
	Init(opts ...InitOption) error
	// Load replaces any previously loaded model with the serialized model in data.
	Load(data []byte) error
	// LoadFile reads a serialized model from disk and loads it.
	LoadFile(path string) error
	// Run executes one synchronous forward pass over the bound input tensors.
	Run() error

	InputCount() int
	OutputCount() int
	Input(i int) (Tensor, error)
	Output(i int) (Tensor, error)
	InputShape(i int) (Shape, error)
	OutputShape(i int) (Shape, error)
	InputQuantParam(i int) (QuantParam, error)
	OutputQuantParam(i int) (QuantParam, error)

	// Close releases the loaded model and backend resources.
	Close() error
}

// NamedEngine is implemented by backends that can look tensors up by name.
type NamedEngine interface {
	Engine
	InputByName(name string) (Tensor, error)
	OutputByName(name string) (Tensor, error)
}

// InitConfig is the resolved set of Init options.
type InitConfig struct {
	// Arena is a caller supplied buffer that tensors are carved from.
	Arena []byte
	// ArenaSize asks the engine to allocate its own arena of this many bytes.
	ArenaSize int
}

// InitOption configures Engine.Init.
type InitOption func(*InitConfig)

// WithArenaSize asks the engine to allocate an arena of n bytes.
func WithArenaSize(n int) InitOption {
	return func(c *InitConfig) {
		c.ArenaSize = n
	}
}

// WithArena hands the engine a pre-allocated arena.
func WithArena(buf []byte) InitOption {
	return func(c *InitConfig) {
		c.Arena = buf
		c.ArenaSize = len(buf)
	}
}

// NewInitConfig applies opts over the zero configuration.
func NewInitConfig(opts ...InitOption) InitConfig {
	var c InitConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Describe collects every input and output shape of e, for logging and inspection.
//
// Arguments:
//   - e: A loaded engine.
//
// Returns:
//   - []Shape: The input shapes in index order.
//   - []Shape: The output shapes in index order.
func Describe(e Engine) ([]Shape, []Shape) {
	ins := make([]Shape, 0, e.InputCount())
	for i := 0; i < e.InputCount(); i++ {
		s, err := e.InputShape(i)
		if err == nil {
			ins = append(ins, s)
		}
	}
	outs := make([]Shape, 0, e.OutputCount())
	for i := 0; i < e.OutputCount(); i++ {
		s, err := e.OutputShape(i)
		if err == nil {
			outs = append(outs, s)
		}
	}
	return ins, outs
}
