package models

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
)

// Fields returns the results of the last Run as log fields, naming labels through names.
//
// Arguments:
//   - m: The model that ran.
//   - names: The label set used for the "label" keys. May be nil.
//
// Returns:
//   - []zap.Field: A "results" array plus the count and the frame time.
func Fields(m model.Model, names Labels) []zap.Field {
	var results zapcore.ArrayMarshalerFunc
	count := 0

	switch v := m.(type) {
	case model.Classifier:
		classes := v.Classes()
		count = len(classes)
		results = func(enc zapcore.ArrayEncoder) error {
			for _, c := range classes {
				if err := enc.AppendObject(labelled(names, c.Label, c.Score, nil)); err != nil {
					return err
				}
			}
			return nil
		}
	case model.PointDetector:
		points := v.Points()
		count = len(points)
		results = func(enc zapcore.ArrayEncoder) error {
			for _, p := range points {
				p := p
				err := enc.AppendObject(labelled(names, p.Label, p.Score, func(o zapcore.ObjectEncoder) {
					o.AddFloat32("x", p.X)
					o.AddFloat32("y", p.Y)
				}))
				if err != nil {
					return err
				}
			}
			return nil
		}
	default:
		boxes := Boxes(m)
		count = len(boxes)
		results = func(enc zapcore.ArrayEncoder) error {
			for _, b := range boxes {
				b := b
				err := enc.AppendObject(labelled(names, b.Label, b.Score, func(o zapcore.ObjectEncoder) {
					x1, y1, x2, y2 := b.Extents()
					o.AddFloat32("x1", x1)
					o.AddFloat32("y1", y1)
					o.AddFloat32("x2", x2)
					o.AddFloat32("y2", y2)
				}))
				if err != nil {
					return err
				}
			}
			return nil
		}
	}

	return []zap.Field{
		zap.String("model", m.Name()),
		zap.Int("count", count),
		zap.Duration("elapsed", m.Perf().Total()),
		zap.Array("results", results),
	}
}

// Boxes returns the boxes of any box producing model: plain, pose and segmentation detectors.
// Other models return nil.
func Boxes(m model.Model) []postprocess.BoundingBox {
	switch v := m.(type) {
	case model.Detector:
		return v.Boxes()
	case model.PoseDetector:
		kps := v.Keypoints()
		out := make([]postprocess.BoundingBox, len(kps))
		for i := range kps {
			out[i] = kps[i].Box
		}
		return out
	case model.Segmentor:
		segs := v.Segments()
		out := make([]postprocess.BoundingBox, len(segs))
		for i := range segs {
			out[i] = segs[i].Box
		}
		return out
	}
	return nil
}

func labelled(names Labels, label int, score float32, extra func(zapcore.ObjectEncoder)) zapcore.ObjectMarshalerFunc {
	return func(o zapcore.ObjectEncoder) error {
		o.AddString("label", names.Name(label))
		o.AddFloat32("score", score)
		if extra != nil {
			extra(o)
		}
		return nil
	}
}
