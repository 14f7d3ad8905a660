// Package engines - Builds a loaded engine of any backend from one settings value.
package engines

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/engines/host"
	"github.com/nvr-ai/edge-vision/inference/engines/onnx"
	"github.com/nvr-ai/edge-vision/inference/engines/tflite"
	"github.com/nvr-ai/edge-vision/inference/providers"
)

// Settings selects and tunes a backend.
type Settings struct {
	Type      inference.EngineType
	Threads   int
	EdgeTPU   bool
	ArenaSize int
	ONNX      providers.Config
	// Host options apply to the host backend only.
	Host []host.Option
}

// New creates an uninitialized engine for s.Type.
func New(s Settings) (inference.Engine, error) {
	switch s.Type {
	case inference.EngineHost:
		return host.New(s.Host...), nil
	case inference.EngineTFLite:
		return tflite.New(tflite.WithThreads(s.Threads), tflite.WithEdgeTPU(s.EdgeTPU)), nil
	case inference.EngineONNX:
		return onnx.New(s.ONNX), nil
	}
	return nil, errors.Wrapf(inference.ErrUnsupported, "engine %q", s.Type)
}

// Open creates, initializes and loads an engine.
//
// Arguments:
//   - s: The backend settings.
//   - path: The model file, or the tensor manifest for the host backend.
//
// Returns:
//   - inference.Engine: The loaded engine. The caller closes it.
//   - error: An error if the backend is unknown or the model cannot be loaded.
func Open(s Settings, path string) (inference.Engine, error) {
	e, err := New(s)
	if err != nil {
		return nil, err
	}
	var opts []inference.InitOption
	if s.ArenaSize > 0 {
		opts = append(opts, inference.WithArenaSize(s.ArenaSize))
	}
	if err := e.Init(opts...); err != nil {
		return nil, errors.Wrapf(err, "init %s engine", s.Type)
	}
	if err := e.LoadFile(path); err != nil {
		_ = e.Close()
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return e, nil
}
