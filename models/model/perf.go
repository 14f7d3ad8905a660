package model

import "time"

// Phase is one step of the per-frame pipeline.
type Phase int

const (
	PhasePreprocess Phase = iota
	PhaseRun
	PhasePostprocess
	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhasePreprocess:
		return "preprocess"
	case PhaseRun:
		return "inference"
	case PhasePostprocess:
		return "postprocess"
	}
	return "unknown"
}

// HookFunc is called when a phase completes. user is the value given to SetHook.
//
// A preprocess hook lets the frame owner reuse the image buffer before inference finishes.
type HookFunc func(user any)

type hook struct {
	fn   HookFunc
	user any
}

// Perf holds the durations of the last frame's phases.
type Perf struct {
	Preprocess  time.Duration `json:"preprocess"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
}

// Milliseconds returns the three durations in milliseconds.
func (p Perf) Milliseconds() (pre, inference, post float64) {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	return ms(p.Preprocess), ms(p.Inference), ms(p.Postprocess)
}

// Total returns the sum of the phases.
func (p Perf) Total() time.Duration {
	return p.Preprocess + p.Inference + p.Postprocess
}
