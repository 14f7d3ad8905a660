// Package inference - Inference engine interface and implementations
package inference

import "github.com/pkg/errors"

// EngineType is the type of the engine
type EngineType string

const (
	// EngineHost is the software reference engine that runs a Go forward function.
	EngineHost EngineType = "host"
	// EngineTFLite is the TensorFlow Lite engine, optionally delegating to an Edge TPU.
	EngineTFLite EngineType = "tflite"
	// EngineONNX is the ONNX engine that uses the onnxruntime library
	EngineONNX EngineType = "onnx"
)

// Engines is a list of all supported engines
var Engines = []EngineType{EngineHost, EngineTFLite, EngineONNX}

// ParseEngineType validates an engine name from configuration.
func ParseEngineType(name string) (EngineType, error) {
	for _, e := range Engines {
		if string(e) == name {
			return e, nil
		}
	}
	return "", errors.Wrapf(ErrUnsupported, "engine %q", name)
}
