//go:build edgetpu

package tflite

import (
	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
)

// attachEdgeTPU adds the first Edge TPU as a delegate and returns the function that deletes it.
func attachEdgeTPU(options *tflite.InterpreterOptions) (func(), error) {
	devices, err := edgetpu.DeviceList()
	if err != nil {
		return nil, errors.Wrapf(inference.ErrBackend, "tflite: list edge tpu devices: %v", err)
	}
	if len(devices) == 0 {
		return nil, errors.Wrap(inference.ErrUnsupported, "tflite: no edge tpu device")
	}
	delegate := edgetpu.New(devices[0])
	if delegate == nil {
		return nil, errors.Wrapf(inference.ErrBackend, "tflite: open edge tpu %s", devices[0].Path)
	}
	options.AddDelegate(delegate)
	logger.Log().Info("edge tpu attached", zap.String("path", devices[0].Path))
	return delegate.Delete, nil
}
