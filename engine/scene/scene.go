package scene

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

// Scene is the chunk grid: an associative store of chunk coordinate → octree root with a single
// dirty flag shared by every chunk. Chunks are inserted or overwritten, never removed.
// The dirty flag is set by any insertion and cleared by the caller once per consumed
// stage-and-upload cycle. Not safe for concurrent use; the update loop owns it exclusively.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// AddChunk inserts the tree at coord, replacing any previous chunk there, and marks the scene dirty.
	// The scene takes ownership of root; callers must not mutate it afterwards.
	//
	// Parameters:
	//   - root: the chunk's octree
	//   - coord: the chunk coordinate
	AddChunk(root *octree.Tree, coord common.ChunkCoord)

	// Chunk retrieves the tree stored at coord. Absence is not an error.
	//
	// Parameters:
	//   - coord: the chunk coordinate
	//
	// Returns:
	//   - *octree.Tree: the chunk's tree, or nil if no chunk is stored there
	Chunk(coord common.ChunkCoord) *octree.Tree

	// ChunkCount returns the number of stored chunks.
	//
	// Returns:
	//   - int: chunk count
	ChunkCount() int

	// Coords returns every stored chunk coordinate, ordered z, then y, then x.
	//
	// Returns:
	//   - []common.ChunkCoord: sorted coordinates
	Coords() []common.ChunkCoord

	// Bounds returns the smallest region covering every stored chunk.
	// The exclusive end saturates at math.MaxInt32, so a chunk at MaxInt32 on any axis lies outside
	// the returned region and outside every region a stager can address.
	//
	// Returns:
	//   - common.Region: the covering region
	//   - bool: false if the scene holds no chunks
	Bounds() (common.Region, bool)

	// Dirty reports whether the scene changed since the last ClearDirty.
	//
	// Returns:
	//   - bool: the shared dirty flag
	Dirty() bool

	// MarkDirty forces the next update cycle to restage the scene.
	MarkDirty()

	// ClearDirty resets the dirty flag. Call exactly once per consumed stage-and-upload cycle.
	ClearDirty()
}

// scene is the implementation of the Scene interface.
type scene struct {
	name   string
	chunks map[common.ChunkCoord]*octree.Tree
	dirty  bool
	logger *zap.SugaredLogger
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates a new, empty Scene. A new scene starts dirty so the first update cycle
// uploads an initial buffer; pass WithDirty(false) to start clean.
//
// Parameters:
//   - name: the name of the scene
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		name:   name,
		chunks: make(map[common.ChunkCoord]*octree.Tree),
		dirty:  true,
		logger: zap.NewNop().Sugar(),
	}

	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) AddChunk(root *octree.Tree, coord common.ChunkCoord) {
	if root == nil {
		root = octree.New()
	}
	_, replaced := s.chunks[coord]
	s.chunks[coord] = root
	s.dirty = true
	s.logger.Debugw("chunk added", "scene", s.name, "coord", coord.String(), "voxels", root.VoxelCount(), "replaced", replaced)
}

func (s *scene) Chunk(coord common.ChunkCoord) *octree.Tree {
	return s.chunks[coord]
}

func (s *scene) ChunkCount() int {
	return len(s.chunks)
}

func (s *scene) Coords() []common.ChunkCoord {
	coords := make([]common.ChunkCoord, 0, len(s.chunks))
	for c := range s.chunks {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		a, b := coords[i], coords[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return coords
}

func (s *scene) Bounds() (common.Region, bool) {
	if len(s.chunks) == 0 {
		return common.Region{}, false
	}
	first := true
	var r common.Region
	for c := range s.chunks {
		end := common.ChunkCoord{X: exclusiveEnd(c.X), Y: exclusiveEnd(c.Y), Z: exclusiveEnd(c.Z)}
		if first {
			r = common.NewRegion(c, end)
			first = false
			continue
		}
		r.Start.X = min(r.Start.X, c.X)
		r.Start.Y = min(r.Start.Y, c.Y)
		r.Start.Z = min(r.Start.Z, c.Z)
		r.End.X = max(r.End.X, end.X)
		r.End.Y = max(r.End.Y, end.Y)
		r.End.Z = max(r.End.Z, end.Z)
	}
	return r, true
}

// exclusiveEnd returns v+1, saturating at math.MaxInt32.
func exclusiveEnd(v int32) int32 {
	if v == math.MaxInt32 {
		return v
	}
	return v + 1
}

func (s *scene) Dirty() bool {
	return s.dirty
}

func (s *scene) MarkDirty() {
	s.dirty = true
}

func (s *scene) ClearDirty() {
	s.dirty = false
}
