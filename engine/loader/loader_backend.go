package loader

import "io"

// loaderBackend defines the generic interface for parsing voxel model files.
// Concrete implementations (voxLoaderBackend, gltfLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load parses an uncompressed model file from disk.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *ModelFile: the parsed models
	//   - error: error if reading or parsing fails
	Load(path string) (*ModelFile, error)

	// LoadReader parses a model from a reader stream.
	//
	// Parameters:
	//   - name: the name recorded on the returned ModelFile
	//   - r: the reader providing uncompressed model data
	//
	// Returns:
	//   - *ModelFile: the parsed models
	//   - error: error if parsing fails
	LoadReader(name string, r io.Reader) (*ModelFile, error)
}
