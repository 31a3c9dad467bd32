package loader

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Carmen-Shannon/oxy-svo/common"
)

// gltfLoaderBackendImpl is the implementation of gltfLoaderBackend.
type gltfLoaderBackendImpl struct{}

// gltfLoaderBackend is a loaderBackend implementation for glTF/GLB files.
// Each mesh becomes one model; the voxels of a mesh are the floored POSITION values of
// every primitive, so point clouds exported at voxel centres map one point to one voxel.
type gltfLoaderBackend interface {
	loaderBackend
}

var _ gltfLoaderBackend = &gltfLoaderBackendImpl{}

// newGLTFLoaderBackend creates a new glTF loader backend.
//
// Returns:
//   - gltfLoaderBackend: the loader backend for glTF/GLB files
func newGLTFLoaderBackend() gltfLoaderBackend {
	return &gltfLoaderBackendImpl{}
}

func (b *gltfLoaderBackendImpl) Load(path string) (*ModelFile, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	return gltfToModelFile(path, doc)
}

func (b *gltfLoaderBackendImpl) LoadReader(name string, r io.Reader) (*ModelFile, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, err
	}
	return gltfToModelFile(name, doc)
}

func gltfToModelFile(name string, doc *gltf.Document) (*ModelFile, error) {
	file := &ModelFile{Name: name, Format: FormatGLTF}

	for i, mesh := range doc.Meshes {
		m := VoxelModel{Name: common.Coalesce(mesh.Name, fmt.Sprintf("mesh%d", i))}
		var hi [3]int32
		for p, prim := range mesh.Primitives {
			idx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			if int(idx) >= len(doc.Accessors) {
				return nil, errors.Errorf("mesh %d primitive %d: POSITION accessor %d out of range", i, p, idx)
			}
			positions, err := modeler.ReadPosition(doc, doc.Accessors[idx], nil)
			if err != nil {
				return nil, errors.Wrapf(err, "mesh %d primitive %d", i, p)
			}
			for _, pos := range positions {
				v := Voxel{
					X: int32(math.Floor(float64(pos[0]))),
					Y: int32(math.Floor(float64(pos[1]))),
					Z: int32(math.Floor(float64(pos[2]))),
				}
				hi = [3]int32{max(hi[0], v.X+1), max(hi[1], v.Y+1), max(hi[2], v.Z+1)}
				m.Voxels = append(m.Voxels, v)
			}
		}
		m.Size = hi
		file.Models = append(file.Models, m)
	}
	return file, nil
}
