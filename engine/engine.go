package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/profiler"
	"github.com/Carmen-Shannon/oxy-svo/engine/scene"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

// Uploader receives staged buffers. renderer.WorldBuffers satisfies it.
type Uploader interface {
	// Upload writes a staged region to its destination.
	//
	// Parameters:
	//   - staged: the staged region
	//
	// Returns:
	//   - bool: true if the destination was written
	//   - error: error if the upload was rejected
	Upload(staged *stager.Staged) (bool, error)
}

// engine implements the Engine interface.
// Serializes scene mutation (tick callback), staging and upload on one goroutine.
type engine struct {
	mu sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	errorCallback  func(err error)

	scene    scene.Scene
	stager   stager.Stager
	uploader Uploader
	region   *common.Region
	last     *stager.Staged

	logger *zap.SugaredLogger
}

// Engine is the main entry point for the voxel pipeline.
// It owns a scene and runs the update cycle: when the scene is dirty, stage the region and
// upload it, then clear the dirty flag once. A failed stage or upload leaves the flag set so the
// next cycle retries.
type Engine interface {
	// Scene returns the scene driven by the engine.
	//
	// Returns:
	//   - scene.Scene: the scene instance
	Scene() scene.Scene

	// SetRegion fixes the chunk region staged each cycle.
	//
	// Parameters:
	//   - r: the region to stage
	SetRegion(r common.Region)

	// Region returns the region the next cycle will stage: the fixed region if set, otherwise the
	// scene bounds.
	//
	// Returns:
	//   - common.Region: the region, empty if the scene holds no chunks and no region is fixed
	Region() common.Region

	// Update runs one cycle synchronously.
	//
	// Returns:
	//   - bool: true if the scene was staged and uploaded
	//   - error: the staging or upload error; the scene stays dirty
	Update() (bool, error)

	// Staged returns the output of the last successful cycle, or nil.
	//
	// Returns:
	//   - *stager.Staged: the last staged region
	Staged() *stager.Staged

	// EnableProfiler enables stage profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables stage profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick before the update cycle.
	// Use this to mutate the scene; it runs on the same goroutine as staging.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetErrorCallback registers the function receiving update errors from Run.
	// Without one, errors are logged and the loop continues.
	//
	// Parameters:
	//   - callback: function receiving each failed cycle's error
	SetErrorCallback(callback func(err error))

	// Run starts the tick loop and blocks until ctx is done or Quit is called.
	//
	// Parameters:
	//   - ctx: context bounding the loop
	//
	// Returns:
	//   - error: ctx.Err() if the context ended the loop, nil after Quit
	Run(ctx context.Context) error

	// Quit signals the tick loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Without options the engine drives an empty scene named "world" with a default stager and no uploader.
//
// Parameters:
//   - options: functional options for engine configuration (scene, stager, uploader, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
		logger:           zap.NewNop().Sugar(),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.scene == nil {
		e.scene = scene.NewScene("world", scene.WithLogger(e.logger))
	}
	if e.stager == nil {
		e.stager = stager.NewStager(stager.WithLogger(e.logger))
	}
	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}
	return e
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) SetRegion(r common.Region) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.region = &r
	e.scene.MarkDirty()
}

func (e *engine) Region() common.Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentRegion()
}

func (e *engine) currentRegion() common.Region {
	if e.region != nil {
		return *e.region
	}
	bounds, _ := e.scene.Bounds()
	return bounds
}

func (e *engine) Update() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.scene.Dirty() {
		return false, nil
	}

	region := e.currentRegion()
	start := time.Now()
	staged, err := e.stager.Stage(e.scene, region)
	if e.profilingEnabled {
		e.profiler.Record(time.Since(start), staged)
	}
	if err != nil {
		return false, err
	}

	if e.uploader != nil {
		if _, err := e.uploader.Upload(staged); err != nil {
			return false, err
		}
	}

	e.last = staged
	e.scene.ClearDirty()
	e.logger.Debugw("update cycle complete", "scene", e.scene.Name(), "region", region.String(), "records", len(staged.Nodes))
	return true, nil
}

func (e *engine) Staged() *stager.Staged {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *engine) Run(ctx context.Context) error {
	e.running.Store(true)
	defer e.running.Store(false)

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.quitChannel:
			return nil
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
			if _, err := e.Update(); err != nil {
				if e.errorCallback != nil {
					e.errorCallback(err)
				} else {
					e.logger.Errorw("update cycle failed", "scene", e.scene.Name(), "error", err)
				}
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// Quit signals the tick loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// EnableProfiler enables stage profiling output to the log.
func (e *engine) EnableProfiler() {
	e.mu.Lock()
	e.profilingEnabled = true
	e.mu.Unlock()
}

// DisableProfiler disables stage profiling output.
func (e *engine) DisableProfiler() {
	e.mu.Lock()
	e.profilingEnabled = false
	e.mu.Unlock()
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	newRate := tickInterval(fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// tickInterval converts ticks per second to a ticker period of at least 1ns.
// Non-positive and NaN rates fall back to 60Hz.
func tickInterval(fps float64) time.Duration {
	if !(fps > 0) {
		fps = 60
	}
	period := float64(time.Second) / fps
	if period >= math.MaxInt64 {
		return math.MaxInt64
	}
	return max(time.Duration(period), time.Nanosecond)
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetErrorCallback registers the function receiving update errors from Run.
func (e *engine) SetErrorCallback(callback func(err error)) {
	e.errorCallback = callback
}
