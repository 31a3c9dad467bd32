package loader

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

type testModel struct {
	size   [3]uint32
	voxels [][4]uint8
}

func voxChunkBytes(id string, content, children []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(content)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(children)))
	buf.Write(content)
	buf.Write(children)
	return buf.Bytes()
}

func voxBytes(models ...testModel) []byte {
	var children bytes.Buffer
	pack := binary.LittleEndian.AppendUint32(nil, uint32(len(models)))
	children.Write(voxChunkBytes("PACK", pack, nil))
	for _, m := range models {
		var size []byte
		for _, s := range m.size {
			size = binary.LittleEndian.AppendUint32(size, s)
		}
		children.Write(voxChunkBytes("SIZE", size, nil))

		xyzi := binary.LittleEndian.AppendUint32(nil, uint32(len(m.voxels)))
		for _, v := range m.voxels {
			xyzi = append(xyzi, v[:]...)
		}
		children.Write(voxChunkBytes("XYZI", xyzi, nil))
	}
	children.Write(voxChunkBytes("nTRN", []byte{1, 2, 3, 4}, nil))

	var buf bytes.Buffer
	buf.WriteString("VOX ")
	_ = binary.Write(&buf, binary.LittleEndian, int32(150))
	buf.Write(voxChunkBytes("MAIN", nil, children.Bytes()))
	return buf.Bytes()
}

func dragon() []byte {
	return voxBytes(
		testModel{size: [3]uint32{4, 4, 4}, voxels: [][4]uint8{{0, 0, 0, 1}, {1, 2, 3, 7}}},
		testModel{size: [3]uint32{64, 64, 64}, voxels: [][4]uint8{{63, 17, 40, 2}}},
	)
}

func TestLoadBytesVox(t *testing.T) {
	l := NewLoader(WithLogger(zaptest.NewLogger(t).Sugar()))

	file, err := l.LoadBytes("dragon.vox", dragon(), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, FormatVox, file.Format)
	assert.Equal(t, CompressionNone, file.Compression)
	assert.Equal(t, int32(150), file.Version)
	require.Len(t, file.Models, 2)
	assert.Equal(t, [3]int32{4, 4, 4}, file.Models[0].Size)
	assert.Equal(t, []Voxel{{X: 0, Y: 0, Z: 0, ColorIndex: 1}, {X: 1, Y: 2, Z: 3, ColorIndex: 7}}, file.Models[0].Voxels)
	assert.Equal(t, []Voxel{{X: 63, Y: 17, Z: 40, ColorIndex: 2}}, file.Models[1].Voxels)

	assert.Same(t, file, l.Get("dragon.vox"))
	assert.Len(t, l.Models(), 1)
}

func TestBuildTreeSetsIntendedBit(t *testing.T) {
	l := NewLoader()
	file, err := l.LoadBytes("dragon.vox", dragon(), FormatVox)
	require.NoError(t, err)

	tree, err := l.BuildTree(file, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.VoxelCount())
	assert.True(t, tree.Occupied(common.VoxelCoord{}))
	assert.True(t, tree.Occupied(common.VoxelCoord{X: 1, Y: 2, Z: 3}))
	assert.False(t, tree.Occupied(common.VoxelCoord{X: 1}))

	// (1,2,3) and (0,0,0) share the leaf at the chunk origin: bits 1+4*2+16*3 and 0.
	var leaf uint64
	for i := 0; i < tree.Len(); i++ {
		if n := tree.Node(octree.NodeRef(i)); n.Occupancy != 0 {
			leaf = n.Occupancy
		}
	}
	assert.Equal(t, uint64(1)<<57|1, leaf)

	second, err := l.BuildTree(file, 1)
	require.NoError(t, err)
	assert.True(t, second.Occupied(common.VoxelCoord{X: 63, Y: 17, Z: 40}))
}

func TestBuildTreeSkipsOutOfRangeVoxels(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(WithLogger(zap.New(core).Sugar()))

	data := voxBytes(testModel{
		size:   [3]uint32{256, 256, 256},
		voxels: [][4]uint8{{64, 0, 0, 1}, {5, 200, 5, 1}, {5, 5, 5, 1}},
	})
	file, err := l.LoadBytes("big.vox", data, FormatAuto)
	require.NoError(t, err)

	tree, err := l.BuildTree(file, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.VoxelCount())
	assert.True(t, tree.Occupied(common.VoxelCoord{X: 5, Y: 5, Z: 5}))

	skipped := logs.FilterMessage("voxels outside chunk skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(2), skipped[0].ContextMap()["skipped"])
}

func TestBuildTreeErrors(t *testing.T) {
	l := NewLoader()

	_, err := l.BuildTree(nil, 0)
	assert.True(t, errors.Is(err, ErrNoModelLoaded))

	file, err := l.LoadBytes("dragon.vox", dragon(), FormatAuto)
	require.NoError(t, err)
	for _, idx := range []int{-1, 2, 9} {
		_, err = l.BuildTree(file, idx)
		assert.True(t, errors.Is(err, ErrModelIndexOutOfRange), "index %d", idx)
	}
}

func TestLoadFromDiskIsCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dragon.vox")
	require.NoError(t, os.WriteFile(path, dragon(), 0o644))

	l := NewLoader()
	first, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Name)
	require.Len(t, first.Models, 2)

	second, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zstPath := filepath.Join(dir, "dragon.vox.zst")
	require.NoError(t, os.WriteFile(zstPath, enc.EncodeAll(dragon(), nil), 0o644))
	require.NoError(t, enc.Close())

	l := NewLoader()
	file, err := l.Load(zstPath)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, file.Compression)
	assert.Equal(t, FormatVox, file.Format)
	assert.Len(t, file.Models, 2)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err = zw.Write(dragon())
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	file, err = l.LoadBytes("dragon.vox.gz", gz.Bytes(), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, CompressionGzip, file.Compression)
	assert.Len(t, file.Models, 2)
}

func TestLoadFailures(t *testing.T) {
	l := NewLoader()
	dir := t.TempDir()

	_, err := l.Load(filepath.Join(dir, "missing.vox"))
	assert.True(t, errors.Is(err, ErrLoad))

	_, err = l.LoadBytes("model.obj", dragon(), FormatAuto)
	assert.True(t, errors.Is(err, ErrLoad))

	_, err = l.LoadBytes("bad.vox", []byte("nope"), FormatAuto)
	assert.True(t, errors.Is(err, ErrLoad))

	truncated := dragon()
	_, err = l.LoadBytes("truncated.vox", truncated[:len(truncated)-20], FormatAuto)
	assert.True(t, errors.Is(err, ErrLoad))

	orphan := voxChunkBytes("XYZI", binary.LittleEndian.AppendUint32(nil, 0), nil)
	data := append([]byte("VOX \x96\x00\x00\x00"), voxChunkBytes("MAIN", nil, orphan)...)
	_, err = l.LoadBytes("orphan.vox", data, FormatAuto)
	assert.True(t, errors.Is(err, ErrLoad))

	_, err = l.LoadBytes("corrupt.vox.zst", []byte{0x28, 0xb5, 0x2f, 0xfd, 0, 0}, FormatAuto)
	assert.True(t, errors.Is(err, ErrLoad))

	assert.Empty(t, l.Models())
}

func TestLoadErrorKeepsCause(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.vox")
	_, err := NewLoader().Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoad))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Name)
	assert.Contains(t, err.Error(), ErrLoad.Error())
	assert.Contains(t, err.Error(), "missing.vox")
}

func pointsGLB(t *testing.T) []byte {
	t.Helper()
	doc := gltf.NewDocument()
	positions := [][3]float32{{0.5, 0.5, 0.5}, {1.2, 2.9, 3.0}, {-0.5, 0, 0}}
	posAccessor := modeler.WritePosition(doc, positions)
	prim := &gltf.Primitive{
		Attributes: gltf.PrimitiveAttributes{gltf.POSITION: posAccessor},
		Mode:       gltf.PrimitivePoints,
	}
	doc.Meshes = []*gltf.Mesh{
		{Name: "Points", Primitives: []*gltf.Primitive{prim}},
		{Primitives: []*gltf.Primitive{prim}},
	}
	doc.Nodes = []*gltf.Node{{Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	var out bytes.Buffer
	enc := gltf.NewEncoder(&out)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(doc))
	return out.Bytes()
}

func TestLoadGLTF(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	l := NewLoader(WithLogger(zap.New(core).Sugar()))

	file, err := l.LoadBytes("points.glb", pointsGLB(t), FormatAuto)
	require.NoError(t, err)
	assert.Equal(t, FormatGLTF, file.Format)
	require.Len(t, file.Models, 2)
	assert.Equal(t, "Points", file.Models[0].Name)
	assert.Equal(t, "mesh1", file.Models[1].Name)
	assert.Equal(t, []Voxel{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 2, Z: 3}, {X: -1, Y: 0, Z: 0}}, file.Models[0].Voxels)
	assert.Equal(t, [3]int32{2, 3, 4}, file.Models[0].Size)

	tree, err := l.BuildTree(file, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.VoxelCount())
	assert.Equal(t, 1, logs.Len())

	path := filepath.Join(t.TempDir(), "points.glb")
	require.NoError(t, os.WriteFile(path, pointsGLB(t), 0o644))
	fromDisk, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, file.Models, fromDisk.Models)
}

func TestFormatFromName(t *testing.T) {
	assert.Equal(t, FormatVox, formatFromName("a/B.VOX"))
	assert.Equal(t, FormatVox, formatFromName("b.vox.zst"))
	assert.Equal(t, FormatVox, formatFromName("b.vox.gz"))
	assert.Equal(t, FormatGLTF, formatFromName("c.gltf"))
	assert.Equal(t, FormatGLTF, formatFromName("c.glb.zst"))
	assert.Equal(t, FormatAuto, formatFromName("d.obj"))
}
