// Package model - Model options.
package model

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

const (
	// DefaultThreshold is the score cutoff applied before NMS.
	DefaultThreshold float32 = 0.5
	// DefaultNMS is the IoU cutoff applied by NMS.
	DefaultNMS float32 = 0.45
)

// Option is a runtime configuration change accepted by Model.SetConfig. The set of options is
// closed: Threshold and NMS.
type Option interface {
	isOption()
}

// Threshold sets the score cutoff; results keep only scores strictly above it.
type Threshold float32

// NMS sets the IoU above which overlapping results are suppressed.
type NMS float32

func (Threshold) isOption() {}
func (NMS) isOption()       {}

// Options is the complete configuration of a model.
type Options struct {
	Threshold float32 `json:"threshold" yaml:"threshold"`
	NMS       float32 `json:"nms"       yaml:"nms"`
	// Letterbox keeps the frame aspect ratio and pads, instead of stretching to the input.
	Letterbox bool `json:"letterbox" yaml:"letterbox"`
	// MultiTarget restricts suppression to results of the same label.
	MultiTarget bool `json:"multi_target" yaml:"multi_target"`
	// SoftNMS decays overlapping scores instead of dropping them.
	SoftNMS bool `json:"soft_nms" yaml:"soft_nms"`
	// TopK caps the number of results; 0 keeps all.
	TopK int `json:"top_k" yaml:"top_k"`
	// Softmax normalizes classifier logits before thresholding.
	Softmax bool `json:"softmax" yaml:"softmax"`
}

// DefaultOptions returns the options a model starts with.
func DefaultOptions() Options {
	return Options{
		Threshold:   DefaultThreshold,
		NMS:         DefaultNMS,
		MultiTarget: true,
	}
}

// Apply validates opt and stores it.
//
// Arguments:
//   - opt: Threshold or NMS.
//
// Returns:
//   - error: inference.ErrInvalidArgument for a value outside [0, 1] or a nil option.
func (o *Options) Apply(opt Option) error {
	switch v := opt.(type) {
	case Threshold:
		if err := unit("threshold", float32(v)); err != nil {
			return err
		}
		o.Threshold = float32(v)
	case NMS:
		if err := unit("nms", float32(v)); err != nil {
			return err
		}
		o.NMS = float32(v)
	default:
		return errors.Wrapf(inference.ErrInvalidArgument, "unknown option %T", opt)
	}
	return nil
}

// NMSConfig returns the suppression parameters the options describe.
func (o Options) NMSConfig() postprocess.NMSConfig {
	return postprocess.NMSConfig{
		IoUThreshold:   o.NMS,
		ScoreThreshold: o.Threshold,
		Soft:           o.SoftNMS,
		MultiTarget:    o.MultiTarget,
	}
}

func unit(name string, v float32) error {
	if !(v >= 0 && v <= 1) {
		return errors.Wrapf(inference.ErrInvalidArgument, "%s %v outside [0, 1]", name, v)
	}
	return nil
}

// OptionFunc sets construction time options.
type OptionFunc func(*Options)

// WithThreshold sets the initial score cutoff.
func WithThreshold(t float32) OptionFunc {
	return func(o *Options) { o.Threshold = t }
}

// WithNMS sets the initial IoU cutoff.
func WithNMS(iou float32) OptionFunc {
	return func(o *Options) { o.NMS = iou }
}

// WithLetterbox enables aspect preserving resize.
func WithLetterbox(on bool) OptionFunc {
	return func(o *Options) { o.Letterbox = on }
}

// WithMultiTarget sets whether suppression is per label.
func WithMultiTarget(on bool) OptionFunc {
	return func(o *Options) { o.MultiTarget = on }
}

// WithSoftNMS enables score decay instead of hard suppression.
func WithSoftNMS(on bool) OptionFunc {
	return func(o *Options) { o.SoftNMS = on }
}

// WithTopK caps the result count.
func WithTopK(k int) OptionFunc {
	return func(o *Options) { o.TopK = k }
}

// WithSoftmax normalizes classifier logits.
func WithSoftmax(on bool) OptionFunc {
	return func(o *Options) { o.Softmax = on }
}

// NewOptions applies fns over DefaultOptions and validates the result.
func NewOptions(fns ...OptionFunc) (Options, error) {
	o := DefaultOptions()
	for _, fn := range fns {
		fn(&o)
	}
	if err := unit("threshold", o.Threshold); err != nil {
		return o, err
	}
	if err := unit("nms", o.NMS); err != nil {
		return o, err
	}
	if o.TopK < 0 {
		return o, errors.Wrapf(inference.ErrInvalidArgument, "top_k %d", o.TopK)
	}
	return o, nil
}
