package postprocess

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadBoxes(t *testing.T, name string) []BoundingBox {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	var boxes []BoundingBox
	require.NoError(t, json.Unmarshal(data, &boxes))
	require.NotEmpty(t, boxes)
	return boxes
}

// TestNMSGolden checks the suppression result against the recorded fixtures in both label
// matching modes.
func TestNMSGolden(t *testing.T) {
	tests := []struct {
		name        string
		multiTarget bool
		want        string
	}{
		{name: "multi target", multiTarget: true, want: "nms_bboxes.json"},
		{name: "single target", multiTarget: false, want: "nms_bboxes_single_target.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boxes := loadBoxes(t, "random_bboxes.json")
			want := loadBoxes(t, tt.want)

			got := NMS(boxes, NMSConfig{
				IoUThreshold:   0.2,
				ScoreThreshold: 0.1,
				MultiTarget:    tt.multiTarget,
			})

			if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("NMS mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestNMSIdempotent verifies that no surviving pair still overlaps above the threshold, so a
// second pass changes nothing.
func TestNMSIdempotent(t *testing.T) {
	for _, multi := range []bool{true, false} {
		cfg := NMSConfig{IoUThreshold: 0.2, ScoreThreshold: 0.1, MultiTarget: multi}
		first := append([]BoundingBox(nil), NMS(loadBoxes(t, "random_bboxes.json"), cfg)...)
		second := NMS(append([]BoundingBox(nil), first...), cfg)
		assert.Equal(t, first, second)

		for i := range first {
			for j := i + 1; j < len(first); j++ {
				if multi && first[i].Label != first[j].Label {
					continue
				}
				assert.LessOrEqual(t, IoU(first[i], first[j]), cfg.IoUThreshold)
			}
		}
	}
}

// TestNMSPermutation verifies that shuffling the input does not change the survivors.
func TestNMSPermutation(t *testing.T) {
	cfg := NMSConfig{IoUThreshold: 0.2, ScoreThreshold: 0.1, MultiTarget: true}
	want := NMS(loadBoxes(t, "random_bboxes.json"), cfg)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		boxes := loadBoxes(t, "random_bboxes.json")
		rng.Shuffle(len(boxes), func(a, b int) { boxes[a], boxes[b] = boxes[b], boxes[a] })
		assert.Equal(t, want, NMS(boxes, cfg))
	}
}

// TestNMSTies verifies that equal scores keep their input order.
func TestNMSTies(t *testing.T) {
	boxes := []BoundingBox{
		{X: 0.2, Y: 0.2, W: 0.1, H: 0.1, Score: 0.5, Label: 0},
		{X: 0.7, Y: 0.7, W: 0.1, H: 0.1, Score: 0.5, Label: 1},
		{X: 0.4, Y: 0.4, W: 0.1, H: 0.1, Score: 0.9, Label: 2},
	}
	got := NMS(boxes, NMSConfig{IoUThreshold: 0.5})
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 0, 1}, []int{got[0].Label, got[1].Label, got[2].Label})
}

// TestNMSModes exercises hard and soft suppression on one overlapping pair.
func TestNMSModes(t *testing.T) {
	// The two boxes overlap with IoU 0.6.
	pair := func() []BoundingBox {
		return []BoundingBox{
			{X: 0.5, Y: 0.5, W: 0.4, H: 0.4, Score: 0.9, Label: 0},
			{X: 0.6, Y: 0.5, W: 0.4, H: 0.4, Score: 0.8, Label: 1},
		}
	}
	iou := IoU(pair()[0], pair()[1])
	require.InDelta(t, 0.6, iou, 1e-5)
	decayed := float32(0.8) * (1 - iou)

	tests := []struct {
		name  string
		cfg   NMSConfig
		count int
		score float32
	}{
		{
			name:  "hard suppresses across labels",
			cfg:   NMSConfig{IoUThreshold: 0.3},
			count: 1,
		},
		{
			name:  "multi target keeps different labels",
			cfg:   NMSConfig{IoUThreshold: 0.3, MultiTarget: true},
			count: 2,
			score: 0.8,
		},
		{
			name:  "below iou threshold",
			cfg:   NMSConfig{IoUThreshold: 0.7},
			count: 2,
			score: 0.8,
		},
		{
			name:  "soft decays",
			cfg:   NMSConfig{IoUThreshold: 0.3, ScoreThreshold: 0.1, Soft: true},
			count: 2,
			score: 0.8 * (1 - iou),
		},
		{
			name:  "soft drops below threshold",
			cfg:   NMSConfig{IoUThreshold: 0.3, ScoreThreshold: 0.5, Soft: true},
			count: 1,
		},
		{
			// Survivors keep score > threshold, so a decayed score equal to it is dropped.
			name:  "soft drops exactly at threshold",
			cfg:   NMSConfig{IoUThreshold: 0.3, ScoreThreshold: decayed, Soft: true},
			count: 1,
		},
		{
			name:  "soft keeps just above threshold",
			cfg:   NMSConfig{IoUThreshold: 0.3, ScoreThreshold: math.Nextafter32(decayed, 0), Soft: true},
			count: 2,
			score: decayed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NMS(pair(), tt.cfg)
			require.Len(t, got, tt.count)
			assert.Equal(t, float32(0.9), got[0].Score)
			if tt.count == 2 {
				assert.InDelta(t, tt.score, got[1].Score, 1e-6)
			}
		})
	}
}

// TestNMSFunc runs the generic variant over keypoint results.
func TestNMSFunc(t *testing.T) {
	kps := []Keypoints{
		{Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2, Score: 0.6}, Points: []Keypoint{{X: 0.1}}},
		{Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2, Score: 0.7}, Points: []Keypoint{{X: 0.2}}},
		{Box: BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1, Score: 0.3}, Points: []Keypoint{{X: 0.3}}},
	}
	got := NMSFunc(kps, NMSConfig{IoUThreshold: 0.45}, func(k *Keypoints) *BoundingBox { return &k.Box })
	require.Len(t, got, 2)
	assert.Equal(t, float32(0.2), got[0].Points[0].X)
	assert.Equal(t, float32(0.3), got[1].Points[0].X)
}

func TestNMSEmpty(t *testing.T) {
	assert.Empty(t, NMS(nil, NMSConfig{IoUThreshold: 0.5}))
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b BoundingBox
		want float32
	}{
		{name: "identical", a: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}, b: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}, want: 1},
		{name: "disjoint", a: BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}, b: BoundingBox{X: 0.9, Y: 0.9, W: 0.1, H: 0.1}, want: 0},
		{name: "touching", a: BoundingBox{X: 0.25, Y: 0.5, W: 0.5, H: 0.5}, b: BoundingBox{X: 0.75, Y: 0.5, W: 0.5, H: 0.5}, want: 0},
		{name: "contained", a: BoundingBox{X: 0.5, Y: 0.5, W: 0.4, H: 0.4}, b: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}, want: 0.25},
		{name: "degenerate", a: BoundingBox{X: 0.5, Y: 0.5}, b: BoundingBox{X: 0.5, Y: 0.5}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-6)
		})
	}
}
