package stager

import (
	_ "embed"
	"encoding/binary"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-svo/common"
)

// GPUNodeSize is the size in bytes of one marshaled GPUNode.
const GPUNodeSize = 16

// GPUSceneHeaderSize is the size in bytes of one marshaled GPUSceneHeader.
const GPUSceneHeaderSize = 48

// GPUNodeSource is the canonical WGSL definition of the SvoNode struct.
// Matches GPUNode layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/svo_node.wgsl
var GPUNodeSource string

// GPUNode is the GPU-aligned representation of one flattened octree record.
// There is no node-kind tag: a record with Base == 0 is terminal (a leaf mask, or an empty slot
// when the mask is zero); any other record is a branch whose children start at Base.
// Matches the WGSL SvoNode struct layout exactly (see GPUNodeSource).
// Size: 16 bytes (std430 aligned, no padding required).
type GPUNode struct {
	MaskHigh   uint32 // offset  0: bits 63..32 of the presence / occupancy mask
	MaskLow    uint32 // offset  4: bits 31..0 of the presence / occupancy mask
	Base       uint32 // offset  8: index of child 0 in the node buffer (0 for terminal records)
	ColorIndex uint32 // offset 12: palette index (0 until assigned)
}

// NewLeafNode builds a terminal record for a leaf occupancy mask.
//
// Parameters:
//   - occupancy: the 4×4×4 voxel occupancy mask
//   - colorIndex: palette index for the leaf
//
// Returns:
//   - GPUNode: the leaf record
func NewLeafNode(occupancy uint64, colorIndex uint32) GPUNode {
	high, low := common.SplitMask(occupancy)
	return GPUNode{MaskHigh: high, MaskLow: low, ColorIndex: colorIndex}
}

// NewBranchNode builds a branch record pointing at its first child.
//
// Parameters:
//   - presence: bit i set when child i is present
//   - base: index of child 0 in the node buffer
//
// Returns:
//   - GPUNode: the branch record
func NewBranchNode(presence uint64, base uint32) GPUNode {
	high, low := common.SplitMask(presence)
	return GPUNode{MaskHigh: high, MaskLow: low, Base: base}
}

// Mask returns the full 64-bit presence / occupancy mask.
//
// Returns:
//   - uint64: the joined mask
func (g *GPUNode) Mask() uint64 {
	return common.JoinMask(g.MaskHigh, g.MaskLow)
}

// Terminal reports whether the record has no children.
func (g *GPUNode) Terminal() bool {
	return g.Base == 0
}

// Size returns the size of the GPUNode struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUNode) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUNode struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUNode) Marshal() []byte {
	buf := make([]byte, GPUNodeSize)
	g.marshalTo(buf)
	return buf
}

func (g *GPUNode) marshalTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], g.MaskHigh)
	binary.LittleEndian.PutUint32(buf[4:8], g.MaskLow)
	binary.LittleEndian.PutUint32(buf[8:12], g.Base)
	binary.LittleEndian.PutUint32(buf[12:16], g.ColorIndex)
}

// UnmarshalGPUNode decodes one record from the first GPUNodeSize bytes of buf.
//
// Parameters:
//   - buf: at least GPUNodeSize bytes
//
// Returns:
//   - GPUNode: the decoded record
func UnmarshalGPUNode(buf []byte) GPUNode {
	return GPUNode{
		MaskHigh:   binary.LittleEndian.Uint32(buf[0:4]),
		MaskLow:    binary.LittleEndian.Uint32(buf[4:8]),
		Base:       binary.LittleEndian.Uint32(buf[8:12]),
		ColorIndex: binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// MarshalNodes serializes a node sequence into one contiguous buffer.
//
// Parameters:
//   - nodes: the records to serialize
//
// Returns:
//   - []byte: len(nodes)*GPUNodeSize bytes
func MarshalNodes(nodes []GPUNode) []byte {
	buf := make([]byte, len(nodes)*GPUNodeSize)
	for i := range nodes {
		nodes[i].marshalTo(buf[i*GPUNodeSize:])
	}
	return buf
}

// GPUSceneHeaderSource is the canonical WGSL definition of the SceneHeader struct.
// Matches GPUSceneHeader layout exactly (48 bytes, uniform aligned).
//
//go:embed assets/scene_header.wgsl
var GPUSceneHeaderSource string

// GPUSceneHeader is the GPU-aligned representation of the staged region header.
// Matches the WGSL SceneHeader struct layout exactly (see GPUSceneHeaderSource).
// Size: 48 bytes (two vec4<i32> and a u32, rounded up to the 16-byte uniform alignment).
type GPUSceneHeader struct {
	Start [3]int32  // offset  0: inclusive lower chunk bound (vec3 of vec4<i32>)
	_pad0 int32     // offset 12: padding to vec4
	End   [3]int32  // offset 16: exclusive upper chunk bound (vec3 of vec4<i32>)
	_pad1 int32     // offset 28: padding to vec4
	Size  uint32    // offset 32: total number of node records
	_pad2 [3]uint32 // offset 36: padding to 48 bytes
}

// NewGPUSceneHeader builds the header describing a staged region.
//
// Parameters:
//   - region: the staged chunk region
//   - size: total record count
//
// Returns:
//   - GPUSceneHeader: the header
func NewGPUSceneHeader(region common.Region, size uint32) GPUSceneHeader {
	return GPUSceneHeader{
		Start: [3]int32{region.Start.X, region.Start.Y, region.Start.Z},
		End:   [3]int32{region.End.X, region.End.Y, region.End.Z},
		Size:  size,
	}
}

// Region returns the chunk region described by the header.
func (g *GPUSceneHeader) Region() common.Region {
	return common.NewRegion(
		common.ChunkCoord{X: g.Start[0], Y: g.Start[1], Z: g.Start[2]},
		common.ChunkCoord{X: g.End[0], Y: g.End[1], Z: g.End[2]},
	)
}

// ByteSize returns the size of the GPUSceneHeader struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUSceneHeader) ByteSize() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUSceneHeader struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUSceneHeader) Marshal() []byte {
	buf := make([]byte, GPUSceneHeaderSize)
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(g.Start[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], uint32(g.End[i]))
	}
	binary.LittleEndian.PutUint32(buf[32:], g.Size)
	return buf
}

// UnmarshalGPUSceneHeader decodes a header from the first GPUSceneHeaderSize bytes of buf.
//
// Parameters:
//   - buf: at least GPUSceneHeaderSize bytes
//
// Returns:
//   - GPUSceneHeader: the decoded header
func UnmarshalGPUSceneHeader(buf []byte) GPUSceneHeader {
	var g GPUSceneHeader
	for i := range 3 {
		g.Start[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		g.End[i] = int32(binary.LittleEndian.Uint32(buf[16+i*4:]))
	}
	g.Size = binary.LittleEndian.Uint32(buf[32:])
	return g
}
