// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"
	"math"
	"math/bits"
)

const (
	// ChunkSize is the edge length of a chunk in voxels.
	ChunkSize = 64

	// BlockSize is the edge length of the voxel block covered by one leaf occupancy mask.
	BlockSize = 4

	// BranchFactor is the number of child slots of every branch node (4×4×4).
	BranchFactor = 64
)

// VoxelCoord addresses a single voxel inside one chunk. Each component is expected in [0, ChunkSize).
type VoxelCoord struct {
	X, Y, Z uint8
}

// InChunk reports whether every component lies inside a chunk.
//
// Returns:
//   - bool: true if the coordinate is within [0, ChunkSize) on all axes
func (v VoxelCoord) InChunk() bool {
	return v.X < ChunkSize && v.Y < ChunkSize && v.Z < ChunkSize
}

// LeafBit returns the bit index of the voxel inside its 4×4×4 leaf block.
// Each axis is masked to its low 2 bits before the components are combined.
//
// Returns:
//   - uint: bit index in [0, 63]
func (v VoxelCoord) LeafBit() uint {
	return uint(v.X&3) + 4*uint(v.Y&3) + 16*uint(v.Z&3)
}

// OctantAt returns the branch slot index selected by the 2-bit segment of each axis starting at shift.
//
// Parameters:
//   - shift: bit position of the low bit of the segment (4 for the root level, 2 for the next)
//
// Returns:
//   - int: slot index in [0, 63]
func (v VoxelCoord) OctantAt(shift uint) int {
	x := (v.X >> shift) & 3
	y := (v.Y >> shift) & 3
	z := (v.Z >> shift) & 3
	return int(x) + 4*int(y) + 16*int(z)
}

func (v VoxelCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// ChunkCoord addresses a chunk in the world grid.
type ChunkCoord struct {
	X, Y, Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// Region is a box of chunk coordinates with an inclusive Start and exclusive End.
type Region struct {
	Start ChunkCoord
	End   ChunkCoord
}

// NewRegion creates a Region from its inclusive start and exclusive end.
//
// Parameters:
//   - start: inclusive lower bound
//   - end: exclusive upper bound
//
// Returns:
//   - Region: the region
func NewRegion(start, end ChunkCoord) Region {
	return Region{Start: start, End: end}
}

// Valid reports whether Start is component-wise less than or equal to End.
//
// Returns:
//   - bool: false if any axis would have a negative extent
func (r Region) Valid() bool {
	return r.Start.X <= r.End.X && r.Start.Y <= r.End.Y && r.Start.Z <= r.End.Z
}

// Size returns the per-axis extent of the region. Only meaningful for a valid region.
//
// Returns:
//   - int: extent along X
//   - int: extent along Y
//   - int: extent along Z
func (r Region) Size() (int, int, int) {
	return int(r.End.X) - int(r.Start.X), int(r.End.Y) - int(r.Start.Y), int(r.End.Z) - int(r.Start.Z)
}

// Volume returns the number of chunk positions in the region. Zero for an empty or invalid region.
// Saturates at math.MaxInt when the product does not fit an int.
//
// Returns:
//   - int: product of the per-axis extents
func (r Region) Volume() int {
	if !r.Valid() {
		return 0
	}
	sx, sy, sz := r.Size()
	hi, v := bits.Mul64(uint64(sx), uint64(sy))
	if hi != 0 || v > math.MaxInt {
		return math.MaxInt
	}
	hi, v = bits.Mul64(v, uint64(sz))
	if hi != 0 || v > math.MaxInt {
		return math.MaxInt
	}
	return int(v)
}

// Contains reports whether the chunk coordinate lies inside the region.
//
// Parameters:
//   - c: the chunk coordinate to test
//
// Returns:
//   - bool: true if Start <= c < End on all axes
func (r Region) Contains(c ChunkCoord) bool {
	return c.X >= r.Start.X && c.X < r.End.X &&
		c.Y >= r.Start.Y && c.Y < r.End.Y &&
		c.Z >= r.Start.Z && c.Z < r.End.Z
}

// Offset returns the row-major root slot index of c: (x-sx) + (y-sy)*sizeX + (z-sz)*sizeX*sizeY.
// The caller must ensure the region contains c.
//
// Parameters:
//   - c: a chunk coordinate inside the region
//
// Returns:
//   - int: root slot index
func (r Region) Offset(c ChunkCoord) int {
	sx, sy, _ := r.Size()
	return int(c.X) - int(r.Start.X) + (int(c.Y)-int(r.Start.Y))*sx + (int(c.Z)-int(r.Start.Z))*sx*sy
}

// Each calls fn for every chunk coordinate of the region, iterating z outermost, then y, then x.
//
// Parameters:
//   - fn: callback receiving each coordinate
func (r Region) Each(fn func(c ChunkCoord)) {
	for z := r.Start.Z; z < r.End.Z; z++ {
		for y := r.Start.Y; y < r.End.Y; y++ {
			for x := r.Start.X; x < r.End.X; x++ {
				fn(ChunkCoord{X: x, Y: y, Z: z})
			}
		}
	}
}

func (r Region) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}
