// Package yolov8pose - YOLOv8 keypoint detector on a split head.
package yolov8pose

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models/model"
	"github.com/nvr-ai/edge-vision/models/postprocess"
	"github.com/nvr-ai/edge-vision/models/yolov8"
)

// IsValid reports whether e carries a decodable pose head: per stride boxes {1,n,64}, one
// score column {1,n,1} and keypoints {1,n,3K}.
func IsValid(e inference.Engine) bool {
	h, err := yolov8.ParseHead(e, yolov8.HeadPose)
	return err == nil && model.CheckDecodable(h.Type) == nil
}

// Model is a YOLOv8 pose detector.
type Model struct {
	*model.Base
	head       *yolov8.Head
	candidates []yolov8.Candidate
	poses      []postprocess.Keypoints
}

var _ model.PoseDetector = (*Model)(nil)

// New binds a pose detector to e.
func New(e inference.Engine, opts ...model.OptionFunc) (*Model, error) {
	if e == nil {
		return nil, errors.Wrap(inference.ErrInvalidArgument, "nil engine")
	}
	h, err := yolov8.ParseHead(e, yolov8.HeadPose)
	if err != nil {
		return nil, errors.Wrap(err, "yolov8pose")
	}
	if err := model.CheckDecodable(h.Type); err != nil {
		return nil, errors.Wrap(err, "yolov8pose")
	}
	m := &Model{head: h}
	if m.Base, err = model.NewBase(model.TypeYOLOv8Pose, e, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// KeypointCount returns the number of keypoints per pose.
func (m *Model) KeypointCount() int {
	return m.head.ExtraWidth / 3
}

// Keypoints returns the poses of the last frame.
func (m *Model) Keypoints() []postprocess.Keypoints {
	return m.poses
}

// Reset implements model.Decoder.
func (m *Model) Reset() {
	m.candidates = m.candidates[:0]
	clear(m.poses)
	m.poses = m.poses[:0]
}

// Postprocess implements model.Decoder.
func (m *Model) Postprocess() error {
	opts := m.Options()
	err := m.head.Decode(m.Engine(), opts.Threshold, func(c yolov8.Candidate) {
		m.candidates = append(m.candidates, c)
	})
	if err != nil {
		return err
	}
	m.candidates = postprocess.NMSFunc(m.candidates, opts.NMSConfig(), func(c *yolov8.Candidate) *postprocess.BoundingBox {
		return &c.Box
	})
	m.candidates = model.TopK(m.candidates, opts.TopK)

	for _, c := range m.candidates {
		points, err := m.decodePoints(c)
		if err != nil {
			return err
		}
		m.poses = append(m.poses, postprocess.Keypoints{Box: m.MapBox(c.Box), Points: points})
	}
	return nil
}

func (m *Model) decodePoints(c yolov8.Candidate) ([]postprocess.Keypoint, error) {
	t, err := m.Engine().Output(m.head.Levels[c.Level].Extra)
	if err != nil {
		return nil, err
	}
	switch t.Type {
	case inference.Int8:
		return decodePoints[int8](m, t, c)
	case inference.Uint8:
		return decodePoints[uint8](m, t, c)
	default:
		return decodePoints[float32](m, t, c)
	}
}

// decodePoints reads the keypoints of one anchor. A keypoint is (x, y, visibility); x and y
// are offsets of twice the grid cell, in stride units.
func decodePoints[T model.Raw](m *Model, t inference.Tensor, c yolov8.Candidate) ([]postprocess.Keypoint, error) {
	data, err := inference.View[T](t)
	if err != nil {
		return nil, err
	}
	width := m.head.ExtraWidth
	if len(data) < (c.Anchor+1)*width {
		return nil, errors.Wrapf(inference.ErrInvalidArgument, "keypoint output %q is short", t.Name)
	}
	row := data[c.Anchor*width : (c.Anchor+1)*width]

	lvl := m.head.Levels[c.Level]
	stride := float32(lvl.Stride)
	anchor := m.head.Anchor(c)
	gx := (anchor.X - stride/2) / stride
	gy := (anchor.Y - stride/2) / stride
	size := float32(m.head.Size)

	points := make([]postprocess.Keypoint, width/3)
	for k := range points {
		x := (postprocess.Dequantize(row[3*k], t.Quant)*2 + gx) * stride / size
		y := (postprocess.Dequantize(row[3*k+1], t.Quant)*2 + gy) * stride / size
		x, y = m.MapPoint(x, y)
		points[k] = postprocess.Keypoint{
			X:     min(max(x, 0), 1),
			Y:     min(max(y, 0), 1),
			Score: postprocess.Sigmoid(postprocess.Dequantize(row[3*k+2], t.Quant)),
		}
	}
	return points, nil
}
