// Package octree holds the CPU-side sparse voxel tree of a single chunk.
//
// A chunk spans common.ChunkSize voxels per axis. The tree has a root branch indexed by
// coordinate bits 5..4 of each axis, a second branch level indexed by bits 3..2, and leaves
// holding a 64-bit occupancy mask indexed by bits 1..0. All nodes live in one arena slice;
// a branch owns a contiguous run of common.BranchFactor child entries starting at ChildBase.
package octree

import (
	"github.com/pkg/errors"

	"github.com/Carmen-Shannon/oxy-svo/common"
)

// BranchLevels is the number of branch levels between a chunk root and its leaves.
const BranchLevels = 2

// branchShifts holds the low bit of the coordinate segment consumed at each branch level,
// most-significant first.
var branchShifts = [BranchLevels]uint{4, 2}

var (
	// ErrVoxelOutOfRange is returned when a voxel coordinate lies outside the chunk.
	ErrVoxelOutOfRange = errors.New("voxel coordinate outside chunk")

	// ErrMalformedTree is returned when a leaf is found where a branch level is expected.
	ErrMalformedTree = errors.New("leaf found above the terminal level")
)

// Tree is an arena-backed sparse voxel octree for one chunk. The root is always arena index 0.
// Trees only grow: branches are created the first time a voxel falls into them and are never pruned.
// A Tree is not safe for concurrent mutation.
type Tree struct {
	nodes  []Node
	voxels int
}

// New creates an empty tree whose root is an Empty node.
//
// Returns:
//   - *Tree: the new tree
func New() *Tree {
	return &Tree{nodes: []Node{{Kind: KindEmpty}}}
}

// NewLeaf creates a tree whose root is a single leaf mask covering the block at the chunk origin.
//
// Parameters:
//   - mask: the occupancy mask of the block
//
// Returns:
//   - *Tree: the new tree
func NewLeaf(mask uint64) *Tree {
	kind := KindLeaf
	if mask == 0 {
		kind = KindEmpty
	}
	return &Tree{
		nodes:  []Node{{Kind: kind, Occupancy: mask}},
		voxels: common.MaskCount(mask),
	}
}

// FromVoxels builds a tree from a list of voxels. Out-of-range voxels abort the build.
//
// Parameters:
//   - voxels: the voxel coordinates to insert
//
// Returns:
//   - *Tree: the populated tree
//   - error: ErrVoxelOutOfRange if any voxel lies outside the chunk
func FromVoxels(voxels ...common.VoxelCoord) (*Tree, error) {
	t := New()
	for _, v := range voxels {
		if err := t.Insert(v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Root returns the arena index of the root node.
func (t *Tree) Root() NodeRef {
	return 0
}

// Node returns a copy of the node at ref.
//
// Parameters:
//   - ref: arena index
//
// Returns:
//   - Node: the node value
func (t *Tree) Node(ref NodeRef) Node {
	return t.nodes[ref]
}

// Len returns the number of arena entries, including reserved empty child slots.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// VoxelCount returns the number of distinct voxels set in the tree.
func (t *Tree) VoxelCount() int {
	return t.voxels
}

// Empty reports whether the tree holds no voxels.
func (t *Tree) Empty() bool {
	return t.nodes[0].IsEmpty()
}

// Insert sets the voxel at v. Missing branches along the path are created with
// common.BranchFactor empty children; the terminal leaf is created on first touch.
//
// Parameters:
//   - v: voxel coordinate inside the chunk
//
// Returns:
//   - error: ErrVoxelOutOfRange for coordinates outside the chunk, ErrMalformedTree if a leaf
//     blocks the path (a tree created with NewLeaf)
func (t *Tree) Insert(v common.VoxelCoord) error {
	if !v.InChunk() {
		return errors.Wrapf(ErrVoxelOutOfRange, "voxel %s", v)
	}

	ref := t.Root()
	for _, shift := range branchShifts {
		switch t.nodes[ref].Kind {
		case KindEmpty:
			t.makeBranch(ref)
		case KindLeaf:
			return errors.Wrapf(ErrMalformedTree, "inserting voxel %s", v)
		}
		slot := v.OctantAt(shift)
		t.nodes[ref].ChildMask |= 1 << uint(slot)
		ref = t.nodes[ref].Child(slot)
	}

	leaf := &t.nodes[ref]
	if leaf.Kind == KindEmpty {
		leaf.Kind = KindLeaf
	}
	bit := uint64(1) << v.LeafBit()
	if leaf.Occupancy&bit == 0 {
		t.voxels++
	}
	leaf.Occupancy |= bit
	return nil
}

// makeBranch turns the empty node at ref into a branch and reserves its children at the end of the arena.
func (t *Tree) makeBranch(ref NodeRef) {
	base := NodeRef(len(t.nodes))
	t.nodes = append(t.nodes, make([]Node, common.BranchFactor)...)
	t.nodes[ref] = Node{Kind: KindBranch, ChildBase: base}
}

// Occupied reports whether the voxel at v is set.
// A leaf met above the terminal level covers only the block at its own origin.
//
// Parameters:
//   - v: voxel coordinate inside the chunk
//
// Returns:
//   - bool: true if the voxel is present
func (t *Tree) Occupied(v common.VoxelCoord) bool {
	if !v.InChunk() {
		return false
	}
	n := t.nodes[t.Root()]
	for level, shift := range branchShifts {
		switch n.Kind {
		case KindEmpty:
			return false
		case KindLeaf:
			return LeafCovers(v, level) && common.MaskHas(n.Occupancy, int(v.LeafBit()))
		}
		n = t.nodes[n.Child(v.OctantAt(shift))]
	}
	return n.Kind == KindLeaf && common.MaskHas(n.Occupancy, int(v.LeafBit()))
}

// BranchShift returns the low bit of the coordinate segment consumed at a branch level.
//
// Parameters:
//   - level: branch level in [0, BranchLevels), 0 being the chunk root
//
// Returns:
//   - uint: bit shift for common.VoxelCoord.OctantAt
func BranchShift(level int) uint {
	return branchShifts[level]
}

// LeafCovers reports whether a leaf found at the given branch level covers v, which is only
// the case when every coordinate segment still to be consumed is zero.
//
// Parameters:
//   - v: voxel coordinate inside the chunk
//   - level: depth at which the leaf was found (BranchLevels for a regular leaf)
//
// Returns:
//   - bool: true if the leaf's block contains v
func LeafCovers(v common.VoxelCoord, level int) bool {
	for _, shift := range branchShifts[level:] {
		if v.OctantAt(shift) != 0 {
			return false
		}
	}
	return true
}

// Each calls fn for every voxel present in the tree, in arena order.
//
// Parameters:
//   - fn: callback receiving each occupied voxel coordinate
func (t *Tree) Each(fn func(v common.VoxelCoord)) {
	t.each(t.Root(), 0, common.VoxelCoord{}, fn)
}

func (t *Tree) each(ref NodeRef, level int, origin common.VoxelCoord, fn func(v common.VoxelCoord)) {
	n := t.nodes[ref]
	switch n.Kind {
	case KindLeaf:
		for bit := range common.BranchFactor {
			if !common.MaskHas(n.Occupancy, bit) {
				continue
			}
			fn(common.VoxelCoord{
				X: origin.X + uint8(bit&3),
				Y: origin.Y + uint8((bit>>2)&3),
				Z: origin.Z + uint8((bit>>4)&3),
			})
		}
	case KindBranch:
		shift := branchShifts[level]
		for slot := range common.BranchFactor {
			if !n.HasChild(slot) {
				continue
			}
			child := common.VoxelCoord{
				X: origin.X + uint8(slot&3)<<shift,
				Y: origin.Y + uint8((slot>>2)&3)<<shift,
				Z: origin.Z + uint8((slot>>4)&3)<<shift,
			}
			t.each(n.Child(slot), level+1, child, fn)
		}
	}
}
