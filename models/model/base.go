package model

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// Decoder turns the engine outputs of the last Run into results.
type Decoder interface {
	// Postprocess reads the outputs and stores the results of the frame.
	Postprocess() error
	// Reset drops the stored results.
	Reset()
}

// Base implements Model for an architecture Decoder. Architectures embed *Base and provide
// the decoding and the typed result getters.
type Base struct {
	kind    Type
	name    string
	engine  inference.Engine
	decoder Decoder
	input   InputSpec
	options Options
	perf    Perf
	hooks   [phaseCount]hook
	box     images.Letterbox
}

// NewBase binds engine and decoder.
//
// Arguments:
//   - kind: The architecture.
//   - engine: A loaded engine with one image input.
//   - decoder: The architecture decoder, usually the embedding struct.
//   - fns: Construction options.
//
// Returns:
//   - *Base: The bound model.
//   - error: inference.ErrInvalidArgument for invalid options or a non image input.
func NewBase(kind Type, engine inference.Engine, decoder Decoder, fns ...OptionFunc) (*Base, error) {
	if engine == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	opts, err := NewOptions(fns...)
	if err != nil {
		return nil, err
	}
	spec, err := ParseInput(engine, 0)
	if err != nil {
		return nil, err
	}
	name := string(kind)
	if t, err := engine.Input(0); err == nil && t.Name != "" {
		name = string(kind) + ":" + t.Name
	}
	return &Base{
		kind:    kind,
		name:    name,
		engine:  engine,
		decoder: decoder,
		input:   spec,
		options: opts,
	}, nil
}

// Type implements Model.
func (b *Base) Type() Type {
	return b.kind
}

// Name implements Model.
func (b *Base) Name() string {
	return b.name
}

// Engine implements Model.
func (b *Base) Engine() inference.Engine {
	return b.engine
}

// Input returns the parsed image input.
func (b *Base) Input() InputSpec {
	return b.input
}

// Options is the live configuration, read by decoders.
func (b *Base) Options() Options {
	return b.options
}

// Config implements Model.
func (b *Base) Config() Options {
	return b.options
}

// SetConfig implements Model.
func (b *Base) SetConfig(opt Option) error {
	return b.options.Apply(opt)
}

// Perf implements Model.
func (b *Base) Perf() Perf {
	return b.perf
}

// SetHook implements Model. A nil fn removes the hook.
func (b *Base) SetHook(phase Phase, fn HookFunc, user any) {
	if phase < 0 || phase >= phaseCount {
		return
	}
	b.hooks[phase] = hook{fn: fn, user: user}
}

// Release implements Model.
func (b *Base) Release() {
	if b.decoder != nil {
		b.decoder.Reset()
	}
	b.hooks = [phaseCount]hook{}
	b.engine = nil
}

// Letterbox returns the placement of the last frame inside the input.
func (b *Base) Letterbox() images.Letterbox {
	return b.box
}

func (b *Base) fire(phase Phase) {
	if h := b.hooks[phase]; h.fn != nil {
		h.fn(h.user)
	}
}

// Run implements Model.
func (b *Base) Run(ctx context.Context, img *images.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.engine == nil {
		return errors.Wrap(inference.ErrInvalidArgument, "model released")
	}
	b.decoder.Reset()
	b.perf = Perf{}

	start := time.Now()
	canvas, box, err := Prepare(img, b.input, b.options.Letterbox)
	if err != nil {
		return errors.Wrap(err, "preprocess")
	}
	t, err := b.engine.Input(b.input.Index)
	if err != nil {
		return errors.Wrap(err, "preprocess")
	}
	if err := WriteInput(t, b.input, canvas); err != nil {
		return errors.Wrap(err, "preprocess")
	}
	b.box = box
	b.perf.Preprocess = time.Since(start)
	b.fire(PhasePreprocess)

	start = time.Now()
	if err := b.engine.Run(); err != nil {
		return errors.Wrap(err, "inference")
	}
	b.perf.Inference = time.Since(start)
	b.fire(PhaseRun)

	start = time.Now()
	if err := b.decoder.Postprocess(); err != nil {
		b.decoder.Reset()
		return errors.Wrap(err, "postprocess")
	}
	b.perf.Postprocess = time.Since(start)
	b.fire(PhasePostprocess)

	logger.Log().Debug("frame processed",
		zap.String("model", b.name),
		zap.Duration("preprocess", b.perf.Preprocess),
		zap.Duration("inference", b.perf.Inference),
		zap.Duration("postprocess", b.perf.Postprocess),
	)
	return nil
}

// MapBox maps a box normalized against the input back onto the frame and clips it.
func (b *Base) MapBox(box postprocess.BoundingBox) postprocess.BoundingBox {
	if b.box.Identity() {
		return box
	}
	x1, y1, x2, y2 := box.Extents()
	x1, y1 = b.box.Unmap(x1, y1)
	x2, y2 = b.box.Unmap(x2, y2)
	return postprocess.BoxFromExtents(x1, y1, x2, y2, box.Score, box.Label)
}

// MapPoint maps a normalized input point back onto the frame.
func (b *Base) MapPoint(x, y float32) (float32, float32) {
	if b.box.Identity() {
		return x, y
	}
	return b.box.Unmap(x, y)
}

// TopK truncates results to the configured cap.
func TopK[T any](results []T, k int) []T {
	if k > 0 && len(results) > k {
		return results[:k]
	}
	return results
}
