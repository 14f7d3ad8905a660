// Package model - Model lifecycle shared by every architecture.
package model

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// Type identifies a model architecture.
type Type string

const (
	// TypeAuto lets the factory try every registered architecture.
	TypeAuto Type = "auto"
	// TypeClassifier is a single output image classifier.
	TypeClassifier Type = "classifier"
	// TypeFOMO is the FOMO centroid detector.
	TypeFOMO Type = "fomo"
	// TypeYOLOv5 is the anchor based YOLOv5 detector.
	TypeYOLOv5 Type = "yolov5"
	// TypeYOLOv8 is the anchor free YOLOv8 detector, fused or split head.
	TypeYOLOv8 Type = "yolov8"
	// TypeYOLOv8Pose is the YOLOv8 keypoint detector.
	TypeYOLOv8Pose Type = "yolov8-pose"
	// TypeYOLOv8Seg is the YOLOv8 instance segmentation model.
	TypeYOLOv8Seg Type = "yolov8-seg"
)

// Types lists every concrete architecture.
var Types = []Type{TypeClassifier, TypeFOMO, TypeYOLOv5, TypeYOLOv8, TypeYOLOv8Pose, TypeYOLOv8Seg}

// ParseType converts an architecture name into a Type. The empty name is TypeAuto.
func ParseType(name string) (Type, error) {
	if name == "" || Type(name) == TypeAuto {
		return TypeAuto, nil
	}
	for _, t := range Types {
		if Type(name) == t {
			return t, nil
		}
	}
	return "", errors.Wrapf(inference.ErrInvalidArgument, "unknown architecture %q", name)
}

// Model binds one engine and runs the preprocess, run, postprocess pipeline on frames.
//
// A model is driven from one goroutine. Results returned by the typed getters belong to the
// model and are replaced by the next Run; copy them to keep them.
type Model interface {
	Type() Type
	Name() string
	Engine() inference.Engine

	// Run processes one frame. ctx is checked before the frame starts; a running frame is
	// never interrupted.
	Run(ctx context.Context, img *images.Image) error

	SetConfig(opt Option) error
	Config() Options
	Perf() Perf
	SetHook(phase Phase, fn HookFunc, user any)

	// Release drops results and hooks and detaches the engine. The engine is not closed.
	Release()
}

// Classifier is a model producing class scores.
type Classifier interface {
	Model
	Classes() []postprocess.Class
}

// PointDetector is a model producing object centers.
type PointDetector interface {
	Model
	Points() []postprocess.Point
}

// Detector is a model producing bounding boxes.
type Detector interface {
	Model
	Boxes() []postprocess.BoundingBox
}

// PoseDetector is a model producing boxes with keypoints.
type PoseDetector interface {
	Model
	Keypoints() []postprocess.Keypoints
}

// Segmentor is a model producing boxes with instance masks.
type Segmentor interface {
	Model
	Segments() []postprocess.Segmentation
}
