package renderer

// RendererBackendType identifies the GPU backend implementation used by WorldBuffers.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU RendererBackendType = iota
)

// RendererBackend is the top-level backend interface for WorldBuffers.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}
