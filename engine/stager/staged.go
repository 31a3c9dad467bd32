package stager

import (
	"github.com/cespare/xxhash/v2"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

// Staged is the output of one Stage call: the region header and the flat record sequence.
type Staged struct {
	Region common.Region
	Header GPUSceneHeader
	Nodes  []GPUNode
}

// Stats counts the records of a staged buffer by role.
type Stats struct {
	Roots    int
	Branches int
	Leaves   int
	Empty    int
}

// RootCount returns the number of root slots, one per chunk position of the region.
func (s *Staged) RootCount() int {
	return s.Region.Volume()
}

// ByteSize returns the size of the node buffer in bytes.
func (s *Staged) ByteSize() int {
	return len(s.Nodes) * GPUNodeSize
}

// HeaderBytes returns the marshaled header.
func (s *Staged) HeaderBytes() []byte {
	return s.Header.Marshal()
}

// NodeBytes returns the marshaled node buffer.
func (s *Staged) NodeBytes() []byte {
	return MarshalNodes(s.Nodes)
}

// Checksum returns the xxhash64 digest of the header bytes followed by the node bytes.
// Equal checksums mean byte-identical uploads.
//
// Returns:
//   - uint64: the digest
func (s *Staged) Checksum() uint64 {
	d := xxhash.New()
	_, _ = d.Write(s.HeaderBytes())
	_, _ = d.Write(s.NodeBytes())
	return d.Sum64()
}

// Root returns the root slot record of the chunk at c.
//
// Parameters:
//   - c: chunk coordinate
//
// Returns:
//   - GPUNode: the root record
//   - bool: false if c lies outside the region
func (s *Staged) Root(c common.ChunkCoord) (GPUNode, bool) {
	if !s.Region.Contains(c) {
		return GPUNode{}, false
	}
	return s.Nodes[s.Region.Offset(c)], true
}

// Occupied follows base and child slot pointers from the root slot of chunk c down to the
// terminal record covering v, the same walk a GPU traversal performs.
//
// Parameters:
//   - c: chunk coordinate
//   - v: voxel coordinate inside the chunk
//
// Returns:
//   - bool: true if the voxel is set in the staged buffer
func (s *Staged) Occupied(c common.ChunkCoord, v common.VoxelCoord) bool {
	rec, ok := s.Root(c)
	if !ok || !v.InChunk() {
		return false
	}
	bit := int(v.LeafBit())
	for level := range octree.BranchLevels {
		if rec.Terminal() {
			return octree.LeafCovers(v, level) && common.MaskHas(rec.Mask(), bit)
		}
		slot := v.OctantAt(octree.BranchShift(level))
		if !common.MaskHas(rec.Mask(), slot) {
			return false
		}
		rec = s.Nodes[int(rec.Base)+slot]
	}
	return rec.Terminal() && common.MaskHas(rec.Mask(), bit)
}

// Stats classifies every record. Root slots are counted in Roots only.
//
// Returns:
//   - Stats: record counts
func (s *Staged) Stats() Stats {
	st := Stats{Roots: s.RootCount()}
	for i := st.Roots; i < len(s.Nodes); i++ {
		n := &s.Nodes[i]
		switch {
		case !n.Terminal():
			st.Branches++
		case n.Mask() != 0:
			st.Leaves++
		default:
			st.Empty++
		}
	}
	return st
}
