//go:build !edgetpu

package tflite

import (
	"github.com/mattn/go-tflite"
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
)

func attachEdgeTPU(*tflite.InterpreterOptions) (func(), error) {
	return nil, errors.Wrap(inference.ErrUnsupported, "tflite: built without edgetpu support")
}
