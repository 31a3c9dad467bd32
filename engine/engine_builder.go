package engine

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/profiler"
	"github.com/Carmen-Shannon/oxy-svo/engine/scene"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables stage profiling output.
//
// Parameters:
//   - enabled: if true, enables stage profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithProfiler sets the profiler receiving stage timings.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		e.profiler = p
	}
}

// WithTickRate sets the engine tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz). Fractional rates are allowed.
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = tickInterval(fps)
	}
}

// WithScene sets the scene driven by the engine.
//
// Parameters:
//   - s: the Scene to drive
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.Scene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithStager sets the stager used by the update cycle.
//
// Parameters:
//   - s: the Stager
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithStager(s stager.Stager) EngineBuilderOption {
	return func(e *engine) {
		e.stager = s
	}
}

// WithUploader sets the destination of staged buffers, typically renderer.WorldBuffers.
// Without one, cycles stage only.
//
// Parameters:
//   - u: the Uploader
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithUploader(u Uploader) EngineBuilderOption {
	return func(e *engine) {
		e.uploader = u
	}
}

// WithRegion fixes the chunk region staged each cycle. Defaults to the scene bounds.
//
// Parameters:
//   - r: the region
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRegion(r common.Region) EngineBuilderOption {
	return func(e *engine) {
		e.region = &r
	}
}

// WithLogger sets the logger shared by the engine and the default scene, stager and profiler.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *zap.SugaredLogger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}
