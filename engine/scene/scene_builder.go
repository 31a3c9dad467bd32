package scene

import (
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithDirty sets the initial state of the dirty flag. Scenes start dirty by default.
//
// Parameters:
//   - dirty: the initial dirty flag
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDirty(dirty bool) SceneBuilderOption {
	return func(s *scene) {
		s.dirty = dirty
	}
}

// WithChunk adds an initial chunk to the scene. The dirty flag is set as for AddChunk.
//
// Parameters:
//   - coord: the chunk coordinate
//   - root: the chunk's octree
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithChunk(coord common.ChunkCoord, root *octree.Tree) SceneBuilderOption {
	return func(s *scene) {
		if root == nil {
			root = octree.New()
		}
		s.chunks[coord] = root
		s.dirty = true
	}
}

// WithLogger sets the logger used for chunk bookkeeping messages. Defaults to a no-op logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(logger *zap.SugaredLogger) SceneBuilderOption {
	return func(s *scene) {
		if logger != nil {
			s.logger = logger
		}
	}
}
