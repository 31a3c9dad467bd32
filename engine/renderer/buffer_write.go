package renderer

import "github.com/cogentcore/webgpu/wgpu"

// BufferWrite describes a single GPU buffer write operation at a given byte offset.
type BufferWrite struct {
	Buffer *wgpu.Buffer
	Label  string
	Offset uint64
	Data   []byte
}
