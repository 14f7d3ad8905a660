package models

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/edge-vision/images"
	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/inference/engines/host"
	"github.com/nvr-ai/edge-vision/models/classifier"
	"github.com/nvr-ai/edge-vision/models/model"
)

func engine(t *testing.T, input []int, typ string, outputs ...[]int) *host.Engine {
	t.Helper()
	m := host.Manifest{
		Name:   "registry",
		Inputs: []host.TensorSpec{{Name: "x", Shape: input, Type: typ, Scale: 1.0 / 255}},
	}
	for _, shape := range outputs {
		m.Outputs = append(m.Outputs, host.TensorSpec{Shape: shape, Type: typ, Scale: 1.0 / 255})
	}
	e, err := host.Open(m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCreate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		input   []int
		typ     string
		outputs [][]int
		want    model.Type
	}{
		{
			name:    "classifier",
			input:   []int{1, 3, 16, 16},
			typ:     "float32",
			outputs: [][]int{{1, 10}},
			want:    model.TypeClassifier,
		},
		{
			name:    "fomo",
			input:   []int{1, 32, 32, 1},
			typ:     "int8",
			outputs: [][]int{{1, 4, 4, 3}},
			want:    model.TypeFOMO,
		},
		{
			name:    "yolov5",
			input:   []int{1, 32, 32, 3},
			typ:     "uint8",
			outputs: [][]int{{1, 63, 7}},
			want:    model.TypeYOLOv5,
		},
		{
			name:    "yolov8 fused",
			input:   []int{1, 32, 32, 3},
			typ:     "float32",
			outputs: [][]int{{1, 6, 21}},
			want:    model.TypeYOLOv8,
		},
		{
			name:  "yolov8 split",
			input: []int{1, 32, 32, 3},
			typ:   "int8",
			outputs: [][]int{
				{1, 16, 64}, {1, 16, 2},
				{1, 4, 64}, {1, 4, 2},
				{1, 1, 64}, {1, 1, 2},
			},
			want: model.TypeYOLOv8,
		},
		{
			name:  "yolov8 pose",
			input: []int{1, 32, 32, 3},
			typ:   "int8",
			outputs: [][]int{
				{1, 16, 64}, {1, 16, 1}, {1, 16, 51},
				{1, 4, 64}, {1, 4, 1}, {1, 4, 51},
				{1, 1, 64}, {1, 1, 1}, {1, 1, 51},
			},
			want: model.TypeYOLOv8Pose,
		},
		{
			name:  "yolov8 seg",
			input: []int{1, 32, 32, 3},
			typ:   "int8",
			outputs: [][]int{
				{1, 8, 8, 32},
				{1, 16, 64}, {1, 16, 80}, {1, 16, 32},
				{1, 4, 64}, {1, 4, 80}, {1, 4, 32},
				{1, 1, 64}, {1, 1, 80}, {1, 1, 32},
			},
			want: model.TypeYOLOv8Seg,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := engine(t, tc.input, tc.typ, tc.outputs...)

			m, err := Create(e, model.TypeAuto)
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Type())
			assert.Same(t, e, m.Engine())
			Remove(m)

			m, err = Create(e, tc.want)
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Type())
			Remove(m)
		})
	}
}

func TestCreateHint(t *testing.T) {
	e := engine(t, []int{1, 3, 16, 16}, "float32", []int{1, 10})

	_, err := Create(e, model.TypeYOLOv5)
	assert.True(t, errors.Is(err, inference.ErrUnsupported), "%v", err)

	m, err := Create(e, model.TypeClassifier, model.WithThreshold(0.9))
	require.NoError(t, err)
	assert.InDelta(t, 0.9, m.Config().Threshold, 1e-6)

	_, err = Create(e, model.TypeClassifier, model.WithThreshold(2))
	assert.True(t, errors.Is(err, inference.ErrInvalidArgument), "%v", err)
}

func TestCreateUnsupported(t *testing.T) {
	_, err := Create(nil, model.TypeAuto)
	assert.True(t, errors.Is(err, inference.ErrInvalidArgument))

	e := engine(t, []int{1, 32, 32, 3}, "float32", []int{1, 5, 5})
	_, err = Create(e, model.TypeAuto)
	assert.True(t, errors.Is(err, inference.ErrUnsupported), "%v", err)

	e = engine(t, []int{1, 32, 32, 3}, "int32", []int{1, 10})
	_, err = Create(e, model.TypeAuto)
	assert.True(t, errors.Is(err, inference.ErrUnsupported), "%v", err)
}

func TestRegister(t *testing.T) {
	saved := Entries()
	t.Cleanup(func() {
		mu.Lock()
		registry = saved
		mu.Unlock()
	})

	assert.Error(t, Register(Entry{Type: "custom"}))
	assert.Error(t, Register(Entry{Type: model.TypeAuto, IsValid: classifier.IsValid, New: wrap(classifier.New)}))

	calls := 0
	require.NoError(t, Register(Entry{
		Type: "custom",
		IsValid: func(e inference.Engine) bool {
			calls++
			s, err := e.OutputShape(0)
			return err == nil && s.Is(1, 5, 5)
		},
		New: wrap(classifier.New),
	}))
	assert.Len(t, Entries(), len(saved)+1)

	// Built in architectures are matched first.
	e := engine(t, []int{1, 3, 16, 16}, "float32", []int{1, 10})
	entry, ok := Match(e, model.TypeAuto)
	require.True(t, ok)
	assert.Equal(t, model.TypeClassifier, entry.Type)
	assert.Zero(t, calls)

	e = engine(t, []int{1, 32, 32, 3}, "float32", []int{1, 5, 5})
	entry, ok = Match(e, model.TypeAuto)
	require.True(t, ok)
	assert.Equal(t, model.Type("custom"), entry.Type)
}

func TestRemove(t *testing.T) {
	Remove(nil)

	e := engine(t, []int{1, 3, 16, 16}, "float32", []int{1, 10})
	m, err := Create(e, model.TypeAuto)
	require.NoError(t, err)
	Remove(m)

	img := &images.Image{Width: 16, Height: 16, Format: images.FormatRGB888, Data: make([]byte, 16*16*3)}
	err = m.Run(context.Background(), img)
	assert.True(t, errors.Is(err, inference.ErrInvalidArgument), "%v", err)

	// The engine outlives the model.
	assert.NoError(t, e.Run())
	m, err = Create(e, model.TypeAuto)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), img))
}

func TestLabels(t *testing.T) {
	assert.Len(t, COCO, 80)
	assert.Len(t, VOC, 20)
	assert.Equal(t, "person", COCO.Name(0))
	assert.Equal(t, "81", COCO.Name(81))
	assert.Equal(t, 14, VOC.Index("person"))
	assert.Equal(t, -1, VOC.Index("unicorn"))

	labels, err := ReadLabels(strings.NewReader("# header\ncat\n\ndog\n"))
	require.NoError(t, err)
	assert.Equal(t, Labels{"cat", "", "dog"}, labels)

	labels, err = LoadLabels("coco")
	require.NoError(t, err)
	assert.Equal(t, COCO, labels)
	_, err = LoadLabels("/nonexistent/labels.txt")
	assert.Error(t, err)
}
