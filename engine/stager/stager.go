// Package stager flattens the chunk forest of a region into the pointer-free node buffer and
// header consumed by the GPU traversal shader.
package stager

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

// DefaultLeafColorIndex is the palette index written into every leaf record unless overridden.
const DefaultLeafColorIndex uint32 = 10

// MaxNodeRecords is the largest record count a staged buffer can hold; Base and the header
// Size are 32-bit.
const MaxNodeRecords = math.MaxUint32

// maxNodeBytes is the byte size of MaxNodeRecords records.
const maxNodeBytes = uint64(MaxNodeRecords) * GPUNodeSize

var (
	// ErrInvalidRegion is returned when the region start exceeds its end on any axis.
	ErrInvalidRegion = errors.New("invalid region: start exceeds end")

	// ErrCapacityExceeded is matched by every CapacityError.
	ErrCapacityExceeded = errors.New("node buffer capacity exceeded")
)

// CapacityError reports a staged node buffer that does not fit its destination.
type CapacityError struct {
	Required uint64
	Capacity uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: need %d bytes, capacity is %d", ErrCapacityExceeded, e.Required, e.Capacity)
}

// Is allows errors.Is(err, ErrCapacityExceeded).
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// PresenceMode selects how branch presence masks are written.
type PresenceMode int

const (
	// PresenceSparse sets bit i only when child i holds at least one voxel.
	PresenceSparse PresenceMode = iota

	// PresenceFull sets all 64 bits on every branch record.
	PresenceFull
)

func (m PresenceMode) String() string {
	switch m {
	case PresenceSparse:
		return "sparse"
	case PresenceFull:
		return "full"
	default:
		return fmt.Sprintf("PresenceMode(%d)", int(m))
	}
}

// ChunkSource provides the chunk trees of a world. scene.Scene satisfies it.
type ChunkSource interface {
	// Chunk returns the tree stored at coord, or nil when the position is empty.
	Chunk(coord common.ChunkCoord) *octree.Tree
}

// Stager converts the chunks of a region into a flat, breadth-first node buffer.
// A Stager holds no per-call state and may be reused across update cycles.
type Stager interface {
	// Stage flattens every chunk of region into one record sequence plus header.
	// Records [0, region.Volume()) are the root slots of each chunk position in row-major order;
	// branch children follow in breadth-first order, 64 contiguous records per branch.
	//
	// Parameters:
	//   - source: provider of chunk trees, only read
	//   - region: chunk bounds, inclusive start and exclusive end
	//
	// Returns:
	//   - *Staged: the flattened records and header
	//   - error: ErrInvalidRegion if start > end on any axis, a *CapacityError if the records do not
	//     fit the configured capacity or exceed MaxNodeRecords. Capacity is checked before any
	//     allocation and again as each child group is appended.
	Stage(source ChunkSource, region common.Region) (*Staged, error)

	// Capacity returns the configured node buffer capacity in bytes, 0 meaning only MaxNodeRecords applies.
	//
	// Returns:
	//   - uint64: capacity in bytes
	Capacity() uint64

	// PresenceMode returns how branch presence masks are written.
	//
	// Returns:
	//   - PresenceMode: the configured mode
	PresenceMode() PresenceMode

	// LeafColorIndex returns the palette index written into leaf records.
	//
	// Returns:
	//   - uint32: the palette index
	LeafColorIndex() uint32
}

// stager is the implementation of the Stager interface.
type stager struct {
	capacity  uint64
	presence  PresenceMode
	leafColor uint32
	logger    *zap.SugaredLogger
}

// Ensure stager implements Stager interface.
var _ Stager = &stager{}

// NewStager creates a Stager. By default only MaxNodeRecords bounds the output, presence masks are sparse and
// leaves use DefaultLeafColorIndex.
//
// Parameters:
//   - options: functional options to configure the stager
//
// Returns:
//   - Stager: the newly created stager
func NewStager(options ...StagerBuilderOption) Stager {
	s := &stager{
		presence:  PresenceSparse,
		leafColor: DefaultLeafColorIndex,
		logger:    zap.NewNop().Sugar(),
	}

	for _, option := range options {
		option(s)
	}
	return s
}

func (s *stager) Capacity() uint64 {
	return s.capacity
}

func (s *stager) PresenceMode() PresenceMode {
	return s.presence
}

func (s *stager) LeafColorIndex() uint32 {
	return s.leafColor
}

// pending is a queued branch child: the arena node to expand and the record it owns.
type pending struct {
	ref   octree.NodeRef
	index uint32
}

func (s *stager) Stage(source ChunkSource, region common.Region) (*Staged, error) {
	if !region.Valid() {
		return nil, errors.Wrapf(ErrInvalidRegion, "region %s", region)
	}

	volume := region.Volume()
	if err := s.checkRecords(region, uint64(volume)); err != nil {
		return nil, err
	}

	records := make([]GPUNode, volume)
	var queue []pending
	var stageErr error

	region.Each(func(c common.ChunkCoord) {
		if source == nil || stageErr != nil {
			return
		}
		tree := source.Chunk(c)
		if tree == nil || tree.Empty() {
			return
		}

		slot := uint32(region.Offset(c))
		root := tree.Node(tree.Root())
		if root.Kind == octree.KindLeaf {
			records[slot] = NewLeafNode(root.Occupancy, s.leafColor)
			return
		}

		queue = queue[:0]
		if records, queue, stageErr = s.expand(region, tree, root, slot, records, queue); stageErr != nil {
			return
		}
		for head := 0; head < len(queue); head++ {
			p := queue[head]
			n := tree.Node(p.ref)
			switch n.Kind {
			case octree.KindBranch:
				if records, queue, stageErr = s.expand(region, tree, n, p.index, records, queue); stageErr != nil {
					return
				}
			case octree.KindLeaf:
				records[p.index] = NewLeafNode(n.Occupancy, s.leafColor)
			}
		}
	})
	if stageErr != nil {
		return nil, stageErr
	}

	staged := &Staged{
		Region: region,
		Header: NewGPUSceneHeader(region, uint32(len(records))),
		Nodes:  records,
	}

	s.logger.Debugw("region staged", "region", region.String(), "records", len(records), "bytes", staged.ByteSize())
	return staged, nil
}

// checkRecords rejects a record count whose byte size exceeds the configured capacity or the
// 32-bit addressable limit.
func (s *stager) checkRecords(region common.Region, count uint64) error {
	hi, required := bits.Mul64(count, GPUNodeSize)
	if hi != 0 {
		required = math.MaxUint64
	}

	limit := maxNodeBytes
	if s.capacity > 0 {
		limit = min(limit, s.capacity)
	}
	if required <= limit {
		return nil
	}
	s.logger.Warnw("staged nodes exceed capacity", "region", region.String(), "bytes", required, "capacity", limit)
	return &CapacityError{Required: required, Capacity: limit}
}

// expand appends the 64 default child records of branch n, points the record at index to them and
// queues the non-empty children.
func (s *stager) expand(region common.Region, tree *octree.Tree, n octree.Node, index uint32, records []GPUNode, queue []pending) ([]GPUNode, []pending, error) {
	if err := s.checkRecords(region, uint64(len(records))+common.BranchFactor); err != nil {
		return records, queue, err
	}
	base := uint32(len(records))
	records = append(records, make([]GPUNode, common.BranchFactor)...)

	presence := n.ChildMask
	if s.presence == PresenceFull {
		presence = ^uint64(0)
	}
	records[index] = NewBranchNode(presence, base)

	for i := range common.BranchFactor {
		if !n.HasChild(i) {
			continue
		}
		ref := n.Child(i)
		if tree.Node(ref).IsEmpty() {
			continue
		}
		queue = append(queue, pending{ref: ref, index: base + uint32(i)})
	}
	return records, queue, nil
}
