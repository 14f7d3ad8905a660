// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import "sort"

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold   float32 // Overlap above which the lower scored box is suppressed.
	ScoreThreshold float32 // Soft mode drops boxes whose decayed score is not above this.
	Soft           bool    // If true, decay overlapping scores by (1 - IoU) instead of dropping.
	MultiTarget    bool    // If true, suppress only within the same label.
}

// IoU returns the intersection over union of two center-form boxes.
//
// The intersection is clamped to non-negative width and height, and a pair with an empty union
// has IoU 0.
func IoU(a, b BoundingBox) float32 {
	ax1, ay1, ax2, ay2 := a.Extents()
	bx1, by1, bx2, by2 := b.Extents()

	iw := min(ax2, bx2) - max(ax1, bx1)
	ih := min(ay2, by2) - max(ay1, by1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS filters overlapping detections using Non-Maximum Suppression.
//
// Arguments:
//   - boxes: Candidate detections in any order. The slice is sorted and compacted in place.
//   - config: NMS configuration.
//
// Returns:
//   - []BoundingBox: The survivors in descending order of input score, sharing boxes' backing
//     array.
func NMS(boxes []BoundingBox, config NMSConfig) []BoundingBox {
	return NMSFunc(boxes, config, func(b *BoundingBox) *BoundingBox { return b })
}

// NMSFunc runs Non-Maximum Suppression over any result type that embeds a box.
//
// Candidates are sorted by descending score, keeping the input order between equal scores.
// Every candidate that still has a score suppresses the later candidates it overlaps by more
// than config.IoUThreshold: hard mode zeroes their score, soft mode multiplies it by
// (1 - IoU) and zeroes it once it is no longer above config.ScoreThreshold. Zero scored
// candidates are then removed.
//
// Arguments:
//   - items: Candidates, sorted and compacted in place.
//   - config: NMS configuration.
//   - box: Returns a pointer to the box inside an item. Scores are updated through it.
//
// Returns:
//   - []T: The survivors, sharing items' backing array.
func NMSFunc[T any](items []T, config NMSConfig, box func(*T) *BoundingBox) []T {
	if len(items) == 0 {
		return items
	}

	sort.SliceStable(items, func(i, j int) bool {
		return box(&items[i]).Score > box(&items[j]).Score
	})

	for i := range items {
		a := box(&items[i])
		if a.Score == 0 {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			b := box(&items[j])
			if b.Score == 0 {
				continue
			}
			if config.MultiTarget && a.Label != b.Label {
				continue
			}
			iou := IoU(*a, *b)
			if iou <= config.IoUThreshold {
				continue
			}
			if !config.Soft {
				b.Score = 0
				continue
			}
			b.Score *= 1 - iou
			if b.Score <= config.ScoreThreshold {
				b.Score = 0
			}
		}
	}

	kept := items[:0]
	for i := range items {
		if box(&items[i]).Score != 0 {
			kept = append(kept, items[i])
		}
	}
	clear(items[len(kept):])
	return kept
}
