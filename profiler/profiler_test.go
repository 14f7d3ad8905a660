package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/edge-vision/logger"
	"github.com/nvr-ai/edge-vision/models/model"
)

func TestRollingWindow(t *testing.T) {
	p := New(Options{MaxSamples: 3})
	for _, ms := range []int{10, 1, 5, 7} {
		p.Observe("op", time.Duration(ms)*time.Millisecond)
	}

	stats := p.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, Stats{
		Name:  "op",
		Count: 4,
		Min:   time.Millisecond,
		Max:   7 * time.Millisecond,
		Mean:  13 * time.Millisecond / 3,
	}, stats[0])
}

func TestRecordPerf(t *testing.T) {
	p := New(Options{})
	p.RecordPerf(model.Perf{Preprocess: 2 * time.Millisecond, Inference: 10 * time.Millisecond, Postprocess: time.Millisecond})
	p.RecordPerf(model.Perf{Preprocess: 4 * time.Millisecond, Inference: 20 * time.Millisecond, Postprocess: 3 * time.Millisecond})

	byName := map[string]Stats{}
	for _, s := range p.Snapshot() {
		byName[s.Name] = s
	}
	assert.Len(t, byName, 4)
	assert.Equal(t, 3*time.Millisecond, byName["preprocess"].Mean)
	assert.Equal(t, 15*time.Millisecond, byName["inference"].Mean)
	assert.Equal(t, 2*time.Millisecond, byName["postprocess"].Mean)
	assert.Equal(t, 20*time.Millisecond, byName["frame"].Mean)
	assert.Equal(t, int64(2), byName["frame"].Count)
	assert.Greater(t, p.FPS(), 0.0)
}

func TestStartOperation(t *testing.T) {
	p := New(Options{})
	done := p.StartOperation("load")
	done()
	stats := p.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, "load", stats[0].Name)
	assert.Equal(t, int64(1), stats[0].Count)
}

func TestReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(zap.NewNop()) })

	p := New(Options{ReportInterval: 5 * time.Millisecond})
	p.Observe("op", time.Millisecond)
	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool {
		return logs.FilterMessage("profile").Len() > 0
	}, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()

	entry := logs.FilterMessage("profile").All()[0]
	assert.Contains(t, entry.ContextMap(), "op")
	assert.Contains(t, entry.ContextMap(), "heap_alloc")
}
