// Package models - Registry binding engines to model architectures.
package models

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/classifier"
	"github.com/nvr-ai/edge-vision/models/fomo"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/yolov5"
	"github.com/nvr-ai/edge-vision/models/yolov8"
	"github.com/nvr-ai/edge-vision/models/yolov8pose"
	"github.com/nvr-ai/edge-vision/models/yolov8seg"
)

// Entry is one architecture known to the registry.
type Entry struct {
	// Type is the architecture produced by New.
	Type model.Type
	// IsValid reports whether an engine has the tensor layout of the architecture.
	IsValid func(e inference.Engine) bool
	// New binds a model to an engine accepted by IsValid.
	New func(e inference.Engine, opts ...model.OptionFunc) (model.Model, error)
}

var (
	mu sync.RWMutex
	// Order matters: the pose and segmentation heads are supersets of the detection head, and
	// the classifier accepts almost any single output.
	registry = []Entry{
		{Type: model.TypeYOLOv8Seg, IsValid: yolov8seg.IsValid, New: wrap(yolov8seg.New)},
		{Type: model.TypeYOLOv8Pose, IsValid: yolov8pose.IsValid, New: wrap(yolov8pose.New)},
		{Type: model.TypeYOLOv8, IsValid: yolov8.IsValidSplit, New: wrap(yolov8.New)},
		{Type: model.TypeYOLOv8, IsValid: yolov8.IsValidFused, New: wrap(yolov8.New)},
		{Type: model.TypeYOLOv5, IsValid: yolov5.IsValid, New: wrap(yolov5.New)},
		{Type: model.TypeFOMO, IsValid: fomo.IsValid, New: wrap(fomo.New)},
		{Type: model.TypeClassifier, IsValid: classifier.IsValid, New: wrap(classifier.New)},
	}
)

func wrap[M model.Model](fn func(inference.Engine, ...model.OptionFunc) (M, error)) func(inference.Engine, ...model.OptionFunc) (model.Model, error) {
	return func(e inference.Engine, opts ...model.OptionFunc) (model.Model, error) {
		m, err := fn(e, opts...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Register appends an architecture to the registry. Entries registered later are tried after
// the built in ones.
//
// Arguments:
//   - entry: The architecture. Type, IsValid and New must be set.
//
// Returns:
//   - error: An error if the entry is incomplete.
func Register(entry Entry) error {
	if entry.Type == "" || entry.Type == model.TypeAuto || entry.IsValid == nil || entry.New == nil {
		return errors.Wrapf(inference.ErrInvalidArgument, "incomplete registry entry %q", entry.Type)
	}
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, entry)
	return nil
}

// Entries returns a copy of the registry in matching order.
func Entries() []Entry {
	mu.RLock()
	defer mu.RUnlock()
	return append([]Entry(nil), registry...)
}

// Match returns the first registry entry accepting e, restricted to hint unless hint is
// model.TypeAuto.
func Match(e inference.Engine, hint model.Type) (Entry, bool) {
	for _, entry := range Entries() {
		if hint != model.TypeAuto && entry.Type != hint {
			continue
		}
		if entry.IsValid(e) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Create binds the first matching architecture to a loaded engine.
//
// Arguments:
//   - e: A loaded engine. The model borrows it; closing it stays with the caller.
//   - hint: The architecture to bind, or model.TypeAuto to try all of them in registry order.
//   - opts: Options applied to the new model.
//
// Returns:
//   - model.Model: The bound model.
//   - error: ErrUnsupported if no architecture accepts the engine, or the constructor error.
//
// Example:
//
// ```go
//
//	m, err := models.Create(engine, model.TypeAuto, model.WithThreshold(0.4))
//	if err != nil {
//	    return err
//	}
//	defer models.Remove(m)
//
// ```
func Create(e inference.Engine, hint model.Type, opts ...model.OptionFunc) (model.Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	if e.InputCount() == 0 {
		return nil, errors.Wrap(inference.ErrNotLoaded, "create model")
	}
	entry, ok := Match(e, hint)
	if !ok {
		return nil, errors.Wrapf(inference.ErrUnsupported, "no %s architecture matches the engine", hint)
	}
	m, err := entry.New(e, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", entry.Type)
	}
	logger.Log().Debug("model created", zap.String("type", string(entry.Type)), zap.String("name", m.Name()))
	return m, nil
}

// Remove releases m. The engine it was bound to stays open. A nil model is ignored.
func Remove(m model.Model) {
	if m == nil {
		return
	}
	m.Release()
}
