package renderer

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/pkg/errors"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue

	// CreateBuffer allocates a GPU buffer that can be written from the CPU.
	//
	// Parameters:
	//   - label: debug label of the buffer
	//   - size: size in bytes
	//   - usage: usage flags, wgpu.BufferUsageCopyDst is always added
	//
	// Returns:
	//   - *wgpu.Buffer: the new buffer
	//   - error: error if the device rejects the allocation
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// WriteBuffers writes all staged buffer writes to the GPU queue.
	//
	// Parameters:
	//   - writes: the writes to enqueue, in order
	WriteBuffers(writes []BufferWrite)

	// ReleaseBuffer frees a buffer created by CreateBuffer.
	//
	// Parameters:
	//   - buf: the buffer to release, nil is ignored
	ReleaseBuffer(buf *wgpu.Buffer)
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(device *wgpu.Device, queue *wgpu.Queue) wgpuRendererBackend {
	return &wgpuRendererBackendImpl{
		mu:     &sync.Mutex{},
		device: device,
		queue:  queue,
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		if w.Buffer == nil || len(w.Data) == 0 {
			continue
		}
		b.queue.WriteBuffer(w.Buffer, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) ReleaseBuffer(buf *wgpu.Buffer) {
	if buf != nil {
		buf.Release()
	}
}

// HeadlessContext is a surface-less GPU device for uploading world buffers outside a window,
// e.g. from a command line tool.
type HeadlessContext struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

// NewHeadlessContext requests an adapter and device without a compatible surface.
//
// Parameters:
//   - forceFallbackAdapter: request the software fallback adapter
//
// Returns:
//   - *HeadlessContext: the device context, to be released by the caller
//   - error: error if no adapter or device is available
func NewHeadlessContext(forceFallbackAdapter bool) (*HeadlessContext, error) {
	instance := wgpu.CreateInstance(nil)

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
	})
	if err != nil {
		instance.Release()
		return nil, errors.Wrap(err, "request adapter")
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "SVO Device",
	})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, errors.Wrap(err, "request device")
	}

	return &HeadlessContext{
		Instance: instance,
		Adapter:  adapter,
		Device:   device,
		Queue:    device.GetQueue(),
	}, nil
}

// Release frees the queue, device, adapter and instance.
func (h *HeadlessContext) Release() {
	h.Queue.Release()
	h.Device.Release()
	h.Adapter.Release()
	h.Instance.Release()
}
