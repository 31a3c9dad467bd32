package renderer

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
	"github.com/Carmen-Shannon/oxy-svo/engine/scene"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

type fakeBuffer struct {
	label string
	size  uint64
	usage wgpu.BufferUsage
	data  []byte
}

type fakeBackend struct {
	buffers      map[*wgpu.Buffer]*fakeBuffer
	writes       []BufferWrite
	released     int
	failOnCreate int
	created      int
}

var _ RendererBackend = &fakeBackend{}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{buffers: make(map[*wgpu.Buffer]*fakeBuffer), failOnCreate: -1}
}

func (f *fakeBackend) Device() *wgpu.Device { return nil }

func (f *fakeBackend) Queue() *wgpu.Queue { return nil }

func (f *fakeBackend) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	if f.created == f.failOnCreate {
		return nil, errors.New("out of device memory")
	}
	f.created++
	buf := new(wgpu.Buffer)
	f.buffers[buf] = &fakeBuffer{label: label, size: size, usage: usage, data: make([]byte, size)}
	return buf, nil
}

func (f *fakeBackend) WriteBuffers(writes []BufferWrite) {
	for _, w := range writes {
		f.writes = append(f.writes, w)
		fb := f.buffers[w.Buffer]
		copy(fb.data[w.Offset:], w.Data)
	}
}

func (f *fakeBackend) ReleaseBuffer(buf *wgpu.Buffer) {
	if buf != nil {
		f.released++
	}
}

func stageOne(t *testing.T, voxels ...common.VoxelCoord) *stager.Staged {
	t.Helper()
	tree, err := octree.FromVoxels(voxels...)
	require.NoError(t, err)
	sc := scene.NewScene("world", scene.WithChunk(common.ChunkCoord{X: 3, Y: 3, Z: 3}, tree))
	region := common.NewRegion(common.ChunkCoord{}, common.ChunkCoord{X: 8, Y: 8, Z: 8})
	staged, err := stager.NewStager().Stage(sc, region)
	require.NoError(t, err)
	return staged
}

func TestNewWorldBuffersAllocates(t *testing.T) {
	backend := newFakeBackend()
	w, err := newWorldBuffers(backend, WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	header := backend.buffers[w.HeaderBuffer()]
	require.NotNil(t, header)
	assert.Equal(t, "SVO Header Buffer", header.label)
	assert.Equal(t, uint64(stager.GPUSceneHeaderSize), header.size)
	assert.Equal(t, wgpu.BufferUsageUniform, header.usage)

	nodes := backend.buffers[w.NodeBuffer()]
	require.NotNil(t, nodes)
	assert.Equal(t, "SVO Node Buffer", nodes.label)
	assert.Equal(t, DefaultNodeCapacity, nodes.size)
	assert.Equal(t, wgpu.BufferUsageStorage, nodes.usage)
	assert.Equal(t, DefaultNodeCapacity, w.Capacity())
	assert.Equal(t, uint64(0), w.NodeOffset())
}

func TestUploadWritesAndDedupes(t *testing.T) {
	backend := newFakeBackend()
	w, err := newWorldBuffers(backend, WithLabel("World"))
	require.NoError(t, err)

	staged := stageOne(t, common.VoxelCoord{})
	wrote, err := w.Upload(staged)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 1, w.Uploads())
	require.Len(t, backend.writes, 2)

	header := backend.buffers[w.HeaderBuffer()]
	assert.Equal(t, "World Header Buffer", header.label)
	assert.Equal(t, staged.HeaderBytes(), header.data)
	nodes := backend.buffers[w.NodeBuffer()]
	assert.Equal(t, staged.NodeBytes(), nodes.data[:staged.ByteSize()])

	sum, ok := w.Checksum()
	assert.True(t, ok)
	assert.Equal(t, staged.Checksum(), sum)

	wrote, err = w.Upload(stageOne(t, common.VoxelCoord{}))
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Len(t, backend.writes, 2)

	wrote, err = w.Upload(stageOne(t, common.VoxelCoord{X: 1}))
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 2, w.Uploads())
}

func TestUploadCapacityExceeded(t *testing.T) {
	backend := newFakeBackend()
	w, err := newWorldBuffers(backend, WithCapacity(64*stager.GPUNodeSize))
	require.NoError(t, err)

	_, err = w.Upload(stageOne(t, common.VoxelCoord{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, stager.ErrCapacityExceeded))
	var capErr *stager.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, uint64(640*stager.GPUNodeSize), capErr.Required)
	assert.Empty(t, backend.writes)

	_, ok := w.Checksum()
	assert.False(t, ok)
}

func TestUploadLegacyNodeOffset(t *testing.T) {
	staged := stageOne(t, common.VoxelCoord{})

	exact, err := newWorldBuffers(newFakeBackend(), WithCapacity(uint64(staged.ByteSize())), WithLegacyNodeOffset(true))
	require.NoError(t, err)
	_, err = exact.Upload(staged)
	assert.True(t, errors.Is(err, stager.ErrCapacityExceeded))

	backend := newFakeBackend()
	w, err := newWorldBuffers(backend, WithLegacyNodeOffset(true))
	require.NoError(t, err)
	assert.Equal(t, uint64(stager.GPUNodeSize), w.NodeOffset())

	_, err = w.Upload(staged)
	require.NoError(t, err)
	require.Len(t, backend.writes, 2)
	assert.Equal(t, uint64(stager.GPUNodeSize), backend.writes[1].Offset)

	nodes := backend.buffers[w.NodeBuffer()]
	assert.Equal(t, make([]byte, stager.GPUNodeSize), nodes.data[:stager.GPUNodeSize])
	assert.Equal(t, staged.NodeBytes(), nodes.data[stager.GPUNodeSize:stager.GPUNodeSize+staged.ByteSize()])
}

func TestWithCapacityRoundsToRecord(t *testing.T) {
	w, err := newWorldBuffers(newFakeBackend(), WithCapacity(17))
	require.NoError(t, err)
	assert.Equal(t, uint64(32), w.Capacity())
}

func TestUploadNil(t *testing.T) {
	w, err := newWorldBuffers(newFakeBackend())
	require.NoError(t, err)
	_, err = w.Upload(nil)
	assert.True(t, errors.Is(err, ErrNoStagedBuffer))
}

func TestCreateFailureReleasesHeader(t *testing.T) {
	backend := newFakeBackend()
	backend.failOnCreate = 1
	_, err := newWorldBuffers(backend)
	require.Error(t, err)
	assert.Equal(t, 1, backend.released)
}

func TestRelease(t *testing.T) {
	backend := newFakeBackend()
	w, err := newWorldBuffers(backend)
	require.NoError(t, err)
	w.Release()
	assert.Equal(t, 2, backend.released)
	assert.Nil(t, w.HeaderBuffer())
	assert.Nil(t, w.NodeBuffer())
}
