// Package profiler keeps rolling timing and size statistics of staging cycles and logs them
// at a fixed interval.
package profiler

import (
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

// Snapshot is the state of the current reporting window.
type Snapshot struct {
	Stages  int
	Mean    time.Duration
	Max     time.Duration
	Records int
	Bytes   int
	Stats   stager.Stats
}

// Profiler tracks staging time and buffer size for performance monitoring.
// Outputs stats to the log at a configurable interval. Not safe for concurrent use.
type Profiler struct {
	stageCount     int
	totalTime      time.Duration
	maxTime        time.Duration
	last           *stager.Staged
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastTotalAlloc uint64

	logger *zap.SugaredLogger
	now    func() time.Time
}

// ProfilerOption is a functional option for configuring a Profiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often statistics are logged. Defaults to 1 second.
//
// Parameters:
//   - interval: the reporting interval
//
// Returns:
//   - ProfilerOption: option function to apply
func WithInterval(interval time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = interval
	}
}

// WithLogger sets the logger statistics are written to. Defaults to a no-op logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - ProfilerOption: option function to apply
func WithLogger(logger *zap.SugaredLogger) ProfilerOption {
	return func(p *Profiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		updateInterval: time.Second,
		logger:         zap.NewNop().Sugar(),
		now:            time.Now,
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.now()
	return p
}

// Record adds one staging cycle to the current window.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: stage count, mean/max stage time, record counts by role, buffer size, heap usage.
//
// Parameters:
//   - elapsed: time spent in Stage
//   - staged: the staged output, nil if staging failed
//
// Returns:
//   - bool: true if stats were logged this call, false otherwise
func (p *Profiler) Record(elapsed time.Duration, staged *stager.Staged) bool {
	p.stageCount++
	p.totalTime += elapsed
	p.maxTime = max(p.maxTime, elapsed)
	if staged != nil {
		p.last = staged
	}

	current := p.now()
	window := current.Sub(p.lastTime)
	if window < p.updateInterval {
		return false
	}

	snap := p.Snapshot()
	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc

	p.logger.Infow("stage profile",
		"stages", snap.Stages,
		"mean", snap.Mean,
		"max", snap.Max,
		"records", snap.Records,
		"roots", snap.Stats.Roots,
		"branches", snap.Stats.Branches,
		"leaves", snap.Stats.Leaves,
		"bytes", snap.Bytes,
		"heapMB", allocMB,
		"allocMB", float64(allocDelta)/1024/1024,
	)

	p.stageCount = 0
	p.totalTime = 0
	p.maxTime = 0
	p.lastTime = current
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Snapshot returns the statistics of the current window.
//
// Returns:
//   - Snapshot: counts and timings since the last log
func (p *Profiler) Snapshot() Snapshot {
	s := Snapshot{Stages: p.stageCount, Max: p.maxTime}
	if p.stageCount > 0 {
		s.Mean = p.totalTime / time.Duration(p.stageCount)
	}
	if p.last != nil {
		s.Records = len(p.last.Nodes)
		s.Bytes = p.last.ByteSize()
		s.Stats = p.last.Stats()
	}
	return s
}
