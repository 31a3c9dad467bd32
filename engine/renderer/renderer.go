// Package renderer is the GPU upload boundary of the voxel pipeline: it owns the header and node
// buffers read by the traversal shader and writes staged regions into them.
package renderer

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

// DefaultNodeCapacity is the default node buffer size in bytes (8192 records).
const DefaultNodeCapacity uint64 = 131072

// ErrNoStagedBuffer is returned by Upload when given nothing to upload.
var ErrNoStagedBuffer = errors.New("no staged buffer to upload")

// worldBuffers is the implementation of the WorldBuffers interface.
type worldBuffers struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend

	label        string
	capacity     uint64
	legacyOffset bool
	logger       *zap.SugaredLogger

	header *wgpu.Buffer
	nodes  *wgpu.Buffer

	uploaded     bool
	lastChecksum uint64
	uploads      int
}

// WorldBuffers owns the two GPU buffers of a staged world: a uniform buffer holding the
// stager.GPUSceneHeader and a fixed-capacity storage buffer holding the node records.
//
// Uploads are whole-buffer replacements. An upload whose checksum matches the previous upload
// is skipped; one that does not fit the node buffer is rejected, never truncated.
type WorldBuffers interface {
	// Upload writes the header and node records of a staged region to the GPU queue.
	//
	// Parameters:
	//   - staged: the output of stager.Stager.Stage
	//
	// Returns:
	//   - bool: true if buffers were written, false if the payload was identical to the last upload
	//   - error: a *stager.CapacityError (errors.Is stager.ErrCapacityExceeded) if the records do not fit,
	//     ErrNoStagedBuffer if staged is nil
	Upload(staged *stager.Staged) (bool, error)

	// HeaderBuffer returns the uniform buffer holding the scene header.
	//
	// Returns:
	//   - *wgpu.Buffer: the header buffer
	HeaderBuffer() *wgpu.Buffer

	// NodeBuffer returns the storage buffer holding the node records.
	//
	// Returns:
	//   - *wgpu.Buffer: the node buffer
	NodeBuffer() *wgpu.Buffer

	// Capacity returns the size of the node buffer in bytes.
	//
	// Returns:
	//   - uint64: node buffer size
	Capacity() uint64

	// NodeOffset returns the byte offset at which record 0 is written.
	//
	// Returns:
	//   - uint64: 0, or one record size when the legacy layout is enabled
	NodeOffset() uint64

	// Checksum returns the checksum of the last successful upload.
	//
	// Returns:
	//   - uint64: the checksum
	//   - bool: false if nothing was uploaded yet
	Checksum() (uint64, bool)

	// Uploads returns the number of uploads that wrote to the GPU.
	//
	// Returns:
	//   - int: write count
	Uploads() int

	// Release frees both GPU buffers.
	Release()
}

var _ WorldBuffers = &worldBuffers{}

// NewWorldBuffers creates the header and node buffers on the given device.
//
// Parameters:
//   - device: the GPU device allocating the buffers
//   - queue: the queue used for writes
//   - options: functional options to configure capacity, layout and logging
//
// Returns:
//   - WorldBuffers: the new buffers
//   - error: error if buffer creation fails
func NewWorldBuffers(device *wgpu.Device, queue *wgpu.Queue, options ...WorldBuffersBuilderOption) (WorldBuffers, error) {
	w, err := newWorldBuffers(newWGPURendererBackend(device, queue), options...)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func newWorldBuffers(backend RendererBackend, options ...WorldBuffersBuilderOption) (*worldBuffers, error) {
	w := &worldBuffers{
		mu:          &sync.Mutex{},
		backendType: BackendTypeWGPU,
		backend:     backend,
		capacity:    DefaultNodeCapacity,
		logger:      zap.NewNop().Sugar(),
	}

	for _, option := range options {
		option(w)
	}
	w.label = common.Coalesce(w.label, "SVO")

	header, err := backend.CreateBuffer(w.label+" Header Buffer", stager.GPUSceneHeaderSize, wgpu.BufferUsageUniform)
	if err != nil {
		return nil, errors.Wrap(err, "create header buffer")
	}
	nodes, err := backend.CreateBuffer(w.label+" Node Buffer", w.capacity, wgpu.BufferUsageStorage)
	if err != nil {
		backend.ReleaseBuffer(header)
		return nil, errors.Wrap(err, "create node buffer")
	}
	w.header = header
	w.nodes = nodes

	w.logger.Debugw("world buffers created", "label", w.label, "capacity", w.capacity, "nodeOffset", w.NodeOffset())
	return w, nil
}

func (w *worldBuffers) Upload(staged *stager.Staged) (bool, error) {
	if staged == nil {
		return false, ErrNoStagedBuffer
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	required := w.NodeOffset() + uint64(staged.ByteSize())
	if required > w.capacity {
		w.logger.Warnw("upload exceeds node buffer", "label", w.label, "bytes", required, "capacity", w.capacity)
		return false, &stager.CapacityError{Required: required, Capacity: w.capacity}
	}

	sum := staged.Checksum()
	if w.uploaded && sum == w.lastChecksum {
		w.logger.Debugw("upload skipped, buffers unchanged", "label", w.label, "checksum", sum)
		return false, nil
	}

	w.backend.WriteBuffers([]BufferWrite{
		{Buffer: w.header, Label: "header", Offset: 0, Data: staged.HeaderBytes()},
		{Buffer: w.nodes, Label: "nodes", Offset: w.NodeOffset(), Data: staged.NodeBytes()},
	})

	w.uploaded = true
	w.lastChecksum = sum
	w.uploads++
	w.logger.Debugw("world uploaded", "label", w.label, "records", len(staged.Nodes), "bytes", required, "checksum", sum)
	return true, nil
}

func (w *worldBuffers) HeaderBuffer() *wgpu.Buffer {
	return w.header
}

func (w *worldBuffers) NodeBuffer() *wgpu.Buffer {
	return w.nodes
}

func (w *worldBuffers) Capacity() uint64 {
	return w.capacity
}

func (w *worldBuffers) NodeOffset() uint64 {
	if w.legacyOffset {
		return stager.GPUNodeSize
	}
	return 0
}

func (w *worldBuffers) Checksum() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastChecksum, w.uploaded
}

func (w *worldBuffers) Uploads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploads
}

func (w *worldBuffers) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.backend.ReleaseBuffer(w.header)
	w.backend.ReleaseBuffer(w.nodes)
	w.header = nil
	w.nodes = nil
	w.uploaded = false
}
