package loader

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	voxMagic       = "VOX "
	voxChunkHeader = 12
	voxPaletteSize = 256
)

// voxLoaderBackendImpl is the implementation of voxLoaderBackend.
type voxLoaderBackendImpl struct {
	logger *zap.SugaredLogger
}

// voxLoaderBackend is a loaderBackend implementation for MagicaVoxel .vox files.
// A file is a "VOX " magic and version followed by one MAIN chunk whose children are
// SIZE/XYZI pairs, one per model, optionally preceded by PACK. Unknown chunks are skipped.
type voxLoaderBackend interface {
	loaderBackend
}

var _ voxLoaderBackend = &voxLoaderBackendImpl{}

// newVoxLoaderBackend creates a new MagicaVoxel loader backend.
//
// Parameters:
//   - logger: logger for skipped chunks
//
// Returns:
//   - voxLoaderBackend: the loader backend for .vox files
func newVoxLoaderBackend(logger *zap.SugaredLogger) voxLoaderBackend {
	return &voxLoaderBackendImpl{logger: logger}
}

func (b *voxLoaderBackendImpl) Load(path string) (*ModelFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return b.LoadReader(path, f)
}

func (b *voxLoaderBackendImpl) LoadReader(name string, r io.Reader) (*ModelFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return b.parse(name, data)
}

// voxChunk is one RIFF-style chunk: a 4-byte id, its content and its nested children.
type voxChunk struct {
	id       string
	content  []byte
	children []byte
}

// readVoxChunk splits the next chunk off data and returns the remainder.
func readVoxChunk(data []byte) (voxChunk, []byte, error) {
	if len(data) < voxChunkHeader {
		return voxChunk{}, nil, errors.New("truncated chunk header")
	}
	id := string(data[0:4])
	n := uint64(binary.LittleEndian.Uint32(data[4:8]))
	m := uint64(binary.LittleEndian.Uint32(data[8:12]))
	rest := data[voxChunkHeader:]
	if n+m > uint64(len(rest)) {
		return voxChunk{}, nil, errors.Errorf("chunk %q overruns file: need %d bytes, have %d", id, n+m, len(rest))
	}
	return voxChunk{id: id, content: rest[:n], children: rest[n : n+m]}, rest[n+m:], nil
}

func (b *voxLoaderBackendImpl) parse(name string, data []byte) (*ModelFile, error) {
	if len(data) < 8 || string(data[0:4]) != voxMagic {
		return nil, errors.New("not a MagicaVoxel file")
	}
	file := &ModelFile{
		Name:    name,
		Format:  FormatVox,
		Version: int32(binary.LittleEndian.Uint32(data[4:8])),
	}

	main, _, err := readVoxChunk(data[8:])
	if err != nil {
		return nil, err
	}
	if main.id != "MAIN" {
		return nil, errors.Errorf("expected MAIN chunk, found %q", main.id)
	}

	declared := -1
	children := main.children
	for len(children) > 0 {
		var c voxChunk
		c, children, err = readVoxChunk(children)
		if err != nil {
			return nil, err
		}

		switch c.id {
		case "PACK":
			if len(c.content) < 4 {
				return nil, errors.New("truncated PACK chunk")
			}
			declared = int(binary.LittleEndian.Uint32(c.content))
		case "SIZE":
			if len(c.content) < 12 {
				return nil, errors.New("truncated SIZE chunk")
			}
			file.Models = append(file.Models, VoxelModel{
				Name: name,
				Size: [3]int32{
					int32(binary.LittleEndian.Uint32(c.content[0:4])),
					int32(binary.LittleEndian.Uint32(c.content[4:8])),
					int32(binary.LittleEndian.Uint32(c.content[8:12])),
				},
			})
		case "XYZI":
			if len(file.Models) == 0 {
				return nil, errors.New("XYZI chunk without preceding SIZE")
			}
			voxels, err := parseXYZI(c.content)
			if err != nil {
				return nil, err
			}
			m := &file.Models[len(file.Models)-1]
			m.Voxels = append(m.Voxels, voxels...)
		case "RGBA":
			if len(c.content) < voxPaletteSize*4 {
				return nil, errors.New("truncated RGBA chunk")
			}
			file.Palette = make([]uint32, voxPaletteSize)
			for i := range file.Palette {
				file.Palette[i] = binary.LittleEndian.Uint32(c.content[i*4:])
			}
		default:
			b.logger.Debugw("skipping vox chunk", "file", name, "chunk", c.id, "bytes", len(c.content))
		}
	}

	if declared >= 0 && declared != len(file.Models) {
		b.logger.Warnw("vox model count differs from PACK", "file", name, "declared", declared, "found", len(file.Models))
	}
	return file, nil
}

func parseXYZI(content []byte) ([]Voxel, error) {
	if len(content) < 4 {
		return nil, errors.New("truncated XYZI chunk")
	}
	count := uint64(binary.LittleEndian.Uint32(content))
	body := content[4:]
	if count*4 > uint64(len(body)) {
		return nil, errors.Errorf("XYZI declares %d voxels, chunk holds %d", count, len(body)/4)
	}

	voxels := make([]Voxel, count)
	for i := range voxels {
		p := body[i*4 : i*4+4]
		voxels[i] = Voxel{X: int32(p[0]), Y: int32(p[1]), Z: int32(p[2]), ColorIndex: p[3]}
	}
	return voxels, nil
}
