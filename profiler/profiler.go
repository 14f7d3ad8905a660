// Package profiler - Rolling per-phase timing statistics with periodic zap reports.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/model"
)

// Options configures a Profiler.
type Options struct {
	// ReportInterval specifies how often to emit status reports (default: 2s).
	ReportInterval time.Duration
	// MaxSamples specifies how many durations each operation keeps (default: 600).
	MaxSamples int
}

// Stats summarizes the samples of one operation.
type Stats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
}

// tracker is a ring of the most recent durations of one operation.
type tracker struct {
	samples []time.Duration
	next    int
	total   time.Duration
	count   int64
}

func (t *tracker) add(d time.Duration, limit int) {
	if len(t.samples) < limit {
		t.samples = append(t.samples, d)
	} else {
		t.total -= t.samples[t.next]
		t.samples[t.next] = d
		t.next = (t.next + 1) % limit
	}
	t.total += d
	t.count++
}

func (t *tracker) stats(name string) Stats {
	s := Stats{Name: name, Count: t.count}
	if len(t.samples) == 0 {
		return s
	}
	s.Min, s.Max = t.samples[0], t.samples[0]
	for _, d := range t.samples[1:] {
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
	}
	s.Mean = t.total / time.Duration(len(t.samples))
	return s
}

// Profiler tracks operation durations over a rolling window. It is safe for concurrent use.
type Profiler struct {
	interval   time.Duration
	maxSamples int

	mu       sync.Mutex
	started  time.Time
	trackers map[string]*tracker
	frames   int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler. Zero values take the defaults.
//
// Returns:
//   - *Profiler: A profiler that is not reporting yet.
func New(opts Options) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	return &Profiler{
		interval:   opts.ReportInterval,
		maxSamples: opts.MaxSamples,
		started:    time.Now(),
		trackers:   make(map[string]*tracker),
	}
}

// Observe records one duration of the named operation.
func (p *Profiler) Observe(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observe(name, d)
}

func (p *Profiler) observe(name string, d time.Duration) {
	t, ok := p.trackers[name]
	if !ok {
		t = &tracker{samples: make([]time.Duration, 0, p.maxSamples)}
		p.trackers[name] = t
	}
	t.add(d, p.maxSamples)
}

// RecordPerf records the phases of one processed frame, plus their total under "frame".
func (p *Profiler) RecordPerf(perf model.Perf) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observe(model.PhasePreprocess.String(), perf.Preprocess)
	p.observe(model.PhaseRun.String(), perf.Inference)
	p.observe(model.PhasePostprocess.String(), perf.Postprocess)
	p.observe("frame", perf.Total())
	p.frames++
}

// StartOperation begins timing an operation.
//
// Returns:
//   - func(): A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Observe(name, time.Since(start))
	}
}

// Snapshot returns the statistics of every operation, sorted by name.
func (p *Profiler) Snapshot() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stats, 0, len(p.trackers))
	for name, t := range p.trackers {
		out = append(out, t.stats(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FPS returns the frames recorded per second since the profiler was created.
func (p *Profiler) FPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.frames) / elapsed
}

// Start emits a report every interval until ctx ends or Stop is called. Calling Start on a
// running profiler does nothing.
func (p *Profiler) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report()
			}
		}
	}()
}

// Stop ends reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Report logs the operation statistics and memory usage at info level.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fields := []zap.Field{
		zap.Duration("uptime", time.Since(p.started).Truncate(time.Millisecond)),
		zap.Float64("fps", p.FPS()),
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint64("heap_alloc", mem.HeapAlloc),
		zap.Uint32("gc_cycles", mem.NumGC),
	}
	for _, s := range p.Snapshot() {
		fields = append(fields, zap.Dict(s.Name,
			zap.Duration("mean", s.Mean.Truncate(time.Microsecond)),
			zap.Duration("min", s.Min.Truncate(time.Microsecond)),
			zap.Duration("max", s.Max.Truncate(time.Microsecond)),
			zap.Int64("count", s.Count),
		))
	}
	logger.Log().Info("profile", fields...)
}
