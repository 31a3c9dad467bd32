package renderer

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

// WorldBuffersBuilderOption is a functional option applied to WorldBuffers during construction via NewWorldBuffers.
type WorldBuffersBuilderOption func(*worldBuffers)

// WithCapacity sets the node buffer size in bytes. Defaults to DefaultNodeCapacity.
//
// Parameters:
//   - bytes: node buffer size, rounded up to a whole record
//
// Returns:
//   - WorldBuffersBuilderOption: a function that applies the capacity option
func WithCapacity(bytes uint64) WorldBuffersBuilderOption {
	return func(w *worldBuffers) {
		w.capacity = (bytes + stager.GPUNodeSize - 1) / stager.GPUNodeSize * stager.GPUNodeSize
	}
}

// WithLegacyNodeOffset writes record 0 at byte offset one record instead of zero, matching
// traversal shaders that index the node array from 1.
//
// Parameters:
//   - enabled: whether the legacy layout is used
//
// Returns:
//   - WorldBuffersBuilderOption: a function that applies the layout option
func WithLegacyNodeOffset(enabled bool) WorldBuffersBuilderOption {
	return func(w *worldBuffers) {
		w.legacyOffset = enabled
	}
}

// WithLabel sets the debug label prefix of both buffers. Defaults to "SVO".
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - WorldBuffersBuilderOption: a function that applies the label option
func WithLabel(label string) WorldBuffersBuilderOption {
	return func(w *worldBuffers) {
		w.label = label
	}
}

// WithLogger sets the logger used for upload messages. Defaults to a no-op logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - WorldBuffersBuilderOption: a function that applies the logger option
func WithLogger(logger *zap.SugaredLogger) WorldBuffersBuilderOption {
	return func(w *worldBuffers) {
		if logger != nil {
			w.logger = logger
		}
	}
}
