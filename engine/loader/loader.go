package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/octree"
)

// Format identifies the model file format backend to use.
type Format int

const (
	// FormatAuto resolves the backend from the file name extension.
	FormatAuto Format = iota
	// FormatVox selects the MagicaVoxel backend.
	FormatVox
	// FormatGLTF selects the glTF/GLB backend.
	FormatGLTF
)

func (f Format) String() string {
	switch f {
	case FormatVox:
		return "vox"
	case FormatGLTF:
		return "gltf"
	default:
		return "auto"
	}
}

var (
	// ErrLoad is returned when a model file cannot be read or parsed.
	ErrLoad = errors.New("failed to load voxel model")

	// ErrNoModelLoaded is returned by BuildTree when no model file was successfully loaded.
	ErrNoModelLoaded = errors.New("no model loaded")

	// ErrModelIndexOutOfRange is returned by BuildTree when the file has no model at the given index.
	ErrModelIndexOutOfRange = errors.New("model index out of range")
)

// Voxel is one occupied cell of a model. Coordinates are kept as parsed and may lie outside a chunk.
type Voxel struct {
	X, Y, Z    int32
	ColorIndex uint8
}

// VoxelModel is one model of a file: its declared extent and its voxels.
type VoxelModel struct {
	Name   string
	Size   [3]int32
	Voxels []Voxel
}

// ModelFile is the parsed content of one model file.
type ModelFile struct {
	Name        string
	Format      Format
	Version     int32
	Compression Compression
	Models      []VoxelModel

	// Palette holds the raw RGBA palette entries of a MagicaVoxel file, nil if absent.
	Palette []uint32
}

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	modelCache map[string]*ModelFile

	backends map[Format]loaderBackend

	logger *zap.SugaredLogger
}

// Loader defines the public-facing interface for loading voxel model files and building chunk trees.
// It abstracts the file format (MagicaVoxel, glTF, GLB) behind a backend chosen by extension and
// manages a cache of previously loaded files. The loader holds no tree state.
type Loader interface {
	// Load reads a model file and caches the result.
	// If the file is already cached (by path), the cached version is returned.
	// The backend is selected from the extension (.vox → MagicaVoxel, .gltf/.glb → glTF) after
	// stripping a .zst or .gz suffix; zstd and gzip payloads are detected by magic bytes.
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *ModelFile: the loaded and cached file
	//   - error: a *LoadError (errors.Is ErrLoad, unwrapping to the cause) if the file is unreadable or unparseable
	Load(path string) (*ModelFile, error)

	// LoadBytes parses a model held in memory and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key, also used to resolve the format when format is FormatAuto
	//   - data: the possibly compressed model payload
	//   - format: the backend to use
	//
	// Returns:
	//   - *ModelFile: the loaded file
	//   - error: a *LoadError (errors.Is ErrLoad, unwrapping to the cause) if parsing fails
	LoadBytes(name string, data []byte, format Format) (*ModelFile, error)

	// Get retrieves a cached file by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - *ModelFile: the cached file or nil
	Get(name string) *ModelFile

	// Models returns the full file cache.
	//
	// Returns:
	//   - map[string]*ModelFile: all cached files keyed by name
	Models() map[string]*ModelFile

	// BuildTree converts one model of a loaded file into a fresh chunk tree.
	// Voxels with any coordinate outside [0, common.ChunkSize) are skipped; the count is logged.
	//
	// Parameters:
	//   - handle: a file returned by Load or LoadBytes
	//   - modelIndex: index into handle.Models
	//
	// Returns:
	//   - *octree.Tree: the new tree, owned by the caller
	//   - error: ErrNoModelLoaded if handle is nil, ErrModelIndexOutOfRange if the index is not in the file
	BuildTree(handle *ModelFile, modelIndex int) (*octree.Tree, error)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with every format backend registered and options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:         sync.RWMutex{},
		modelCache: make(map[string]*ModelFile),
		logger:     zap.NewNop().Sugar(),
	}

	for _, option := range options {
		option(l)
	}

	l.backends = map[Format]loaderBackend{
		FormatVox:  newVoxLoaderBackend(l.logger),
		FormatGLTF: newGLTFLoaderBackend(),
	}
	return l
}

func (l *loader) Load(path string) (*ModelFile, error) {
	l.mu.RLock()
	if cached, ok := l.modelCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, format, err := l.resolveBackend(path, FormatAuto)
	if err != nil {
		return nil, loadError(path, err)
	}

	compression, err := peekCompression(path)
	if err != nil {
		return nil, loadError(path, err)
	}

	var file *ModelFile
	if compression == CompressionNone {
		file, err = backend.Load(path)
	} else {
		file, err = l.loadCompressed(backend, path)
	}
	if err != nil {
		return nil, loadError(path, err)
	}
	file.Format = format
	file.Compression = compression

	l.store(path, file)
	return file, nil
}

func (l *loader) loadCompressed(backend loaderBackend, path string) (*ModelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, _, err := decompress(data)
	if err != nil {
		return nil, err
	}
	return backend.LoadReader(path, bytes.NewReader(raw))
}

func (l *loader) LoadBytes(name string, data []byte, format Format) (*ModelFile, error) {
	l.mu.RLock()
	if cached, ok := l.modelCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, format, err := l.resolveBackend(name, format)
	if err != nil {
		return nil, loadError(name, err)
	}

	raw, compression, err := decompress(data)
	if err != nil {
		return nil, loadError(name, err)
	}

	file, err := backend.LoadReader(name, bytes.NewReader(raw))
	if err != nil {
		return nil, loadError(name, err)
	}
	file.Format = format
	file.Compression = compression

	l.store(name, file)
	return file, nil
}

func (l *loader) store(key string, file *ModelFile) {
	l.mu.Lock()
	l.modelCache[key] = file
	l.mu.Unlock()

	l.logger.Debugw("model file loaded", "name", key, "format", file.Format.String(),
		"compression", file.Compression.String(), "models", len(file.Models))
}

func (l *loader) Get(name string) *ModelFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[name]
}

func (l *loader) Models() map[string]*ModelFile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*ModelFile, len(l.modelCache))
	for k, v := range l.modelCache {
		result[k] = v
	}
	return result
}

func (l *loader) BuildTree(handle *ModelFile, modelIndex int) (*octree.Tree, error) {
	if handle == nil {
		return nil, ErrNoModelLoaded
	}
	if modelIndex < 0 || modelIndex >= len(handle.Models) {
		return nil, errors.Wrapf(ErrModelIndexOutOfRange, "model %d of %q (%d models)", modelIndex, handle.Name, len(handle.Models))
	}

	m := handle.Models[modelIndex]
	tree := octree.New()
	skipped := 0
	for _, v := range m.Voxels {
		if !inChunk(v) {
			skipped++
			continue
		}
		coord := common.VoxelCoord{X: uint8(v.X), Y: uint8(v.Y), Z: uint8(v.Z)}
		if err := tree.Insert(coord); err != nil {
			return nil, err
		}
	}

	if skipped > 0 {
		l.logger.Warnw("voxels outside chunk skipped", "file", handle.Name, "model", modelIndex, "skipped", skipped)
	}
	l.logger.Debugw("tree built", "file", handle.Name, "model", modelIndex, "voxels", tree.VoxelCount(), "nodes", tree.Len())
	return tree, nil
}

func inChunk(v Voxel) bool {
	return v.X >= 0 && v.X < common.ChunkSize &&
		v.Y >= 0 && v.Y < common.ChunkSize &&
		v.Z >= 0 && v.Z < common.ChunkSize
}

// resolveBackend selects a loader backend from the explicit format or, for FormatAuto, the
// file extension after any compression suffix is removed.
func (l *loader) resolveBackend(name string, format Format) (loaderBackend, Format, error) {
	if format == FormatAuto {
		format = formatFromName(name)
	}
	backend, ok := l.backends[format]
	if !ok {
		return nil, format, errors.Errorf("unsupported model format: %s", filepath.Ext(name))
	}
	return backend, format, nil
}

func formatFromName(name string) Format {
	lower := strings.ToLower(name)
	for _, suffix := range compressionSuffixes {
		lower = strings.TrimSuffix(lower, suffix)
	}
	switch filepath.Ext(lower) {
	case ".vox":
		return FormatVox
	case ".gltf", ".glb":
		return FormatGLTF
	default:
		return FormatAuto
	}
}

// LoadError reports a model file that could not be read or parsed. It matches ErrLoad and
// unwraps to its cause.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrLoad, e.Name, e.Err)
}

// Is allows errors.Is(err, ErrLoad).
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(name string, cause error) error {
	return &LoadError{Name: name, Err: cause}
}
