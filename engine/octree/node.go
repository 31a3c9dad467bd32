package octree

import "github.com/Carmen-Shannon/oxy-svo/common"

// NodeKind identifies the variant held by a Node.
type NodeKind uint8

const (
	// KindEmpty marks a subtree with no voxels. It carries no children.
	KindEmpty NodeKind = iota
	// KindBranch marks a node owning exactly common.BranchFactor contiguous child slots.
	KindBranch
	// KindLeaf marks a 4×4×4 voxel block stored as a 64-bit occupancy mask.
	KindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindBranch:
		return "branch"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// NodeRef is the arena index of a node inside its Tree.
type NodeRef uint32

// Node is one arena entry. Which fields are meaningful depends on Kind:
// a branch uses ChildMask and ChildBase, a leaf uses Occupancy, an empty node uses none.
type Node struct {
	Kind NodeKind

	// ChildMask has bit i set when child slot i is not empty.
	ChildMask uint64

	// ChildBase is the arena index of child slot 0. Slot i lives at ChildBase+i.
	ChildBase NodeRef

	// Occupancy has bit (x&3) + 4*(y&3) + 16*(z&3) set for every voxel present in the block.
	Occupancy uint64
}

// IsEmpty reports whether the node holds no voxels.
//
// Returns:
//   - bool: true for an empty node or a leaf with a zero mask
func (n Node) IsEmpty() bool {
	switch n.Kind {
	case KindBranch:
		return n.ChildMask == 0
	case KindLeaf:
		return n.Occupancy == 0
	default:
		return true
	}
}

// Child returns the arena index of child slot i of a branch.
//
// Parameters:
//   - i: child slot in [0, common.BranchFactor)
//
// Returns:
//   - NodeRef: arena index of the child
func (n Node) Child(i int) NodeRef {
	return n.ChildBase + NodeRef(i)
}

// HasChild reports whether child slot i of a branch holds any voxel.
func (n Node) HasChild(i int) bool {
	return common.MaskHas(n.ChildMask, i)
}
