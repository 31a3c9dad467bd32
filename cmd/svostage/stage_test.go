package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/loader"
)

func riffChunk(id string, content, children []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(id)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(content)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(children)))
	buf.Write(content)
	buf.Write(children)
	return buf.Bytes()
}

// writeVox writes a single-model MagicaVoxel file holding the given voxels.
func writeVox(t *testing.T, dir, name string, voxels ...[4]uint8) string {
	t.Helper()

	size := binary.LittleEndian.AppendUint32(nil, 64)
	size = binary.LittleEndian.AppendUint32(size, 64)
	size = binary.LittleEndian.AppendUint32(size, 64)
	xyzi := binary.LittleEndian.AppendUint32(nil, uint32(len(voxels)))
	for _, v := range voxels {
		xyzi = append(xyzi, v[:]...)
	}

	var children bytes.Buffer
	children.Write(riffChunk("SIZE", size, nil))
	children.Write(riffChunk("XYZI", xyzi, nil))

	var buf bytes.Buffer
	buf.WriteString("VOX ")
	_ = binary.Write(&buf, binary.LittleEndian, int32(150))
	buf.Write(riffChunk("MAIN", nil, children.Bytes()))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestParsePlacement(t *testing.T) {
	p, err := parsePlacement("models/dragon.vox@1,-2,3")
	require.NoError(t, err)
	assert.Equal(t, "models/dragon.vox", p.path)
	assert.Equal(t, 0, p.model)
	assert.Equal(t, common.ChunkCoord{X: 1, Y: -2, Z: 3}, p.coord)

	p, err = parsePlacement("scene.glb#2@0, 0, 7")
	require.NoError(t, err)
	assert.Equal(t, "scene.glb", p.path)
	assert.Equal(t, 2, p.model)
	assert.Equal(t, common.ChunkCoord{X: 0, Y: 0, Z: 7}, p.coord)
}

func TestParsePlacementErrors(t *testing.T) {
	for _, s := range []string{
		"dragon.vox",
		"@1,2,3",
		"dragon.vox@1,2",
		"dragon.vox@a,b,c",
		"dragon.vox#x@1,2,3",
		"#1@1,2,3",
	} {
		_, err := parsePlacement(s)
		assert.Error(t, err, s)
	}
}

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("0,0,0:3,3,3")
	require.NoError(t, err)
	assert.Equal(t, common.NewRegion(common.ChunkCoord{}, common.ChunkCoord{X: 3, Y: 3, Z: 3}), r)

	_, err = parseRegion("0,0,0")
	assert.Error(t, err)
	_, err = parseRegion("0,0,0:1,1")
	assert.Error(t, err)
}

func TestLoadAllDeduplicatesAndCombinesErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeVox(t, dir, "good.vox", [4]uint8{1, 1, 1, 1})

	l := loader.NewLoader()
	err := loadAll(l, []placement{
		{path: good},
		{path: good, coord: common.ChunkCoord{X: 1}},
		{path: filepath.Join(dir, "missing.vox")},
		{path: filepath.Join(dir, "missing.glb")},
	}, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, loader.ErrLoad)
	assert.Len(t, l.Models(), 1)
	assert.NotNil(t, l.Get(good))
}

func TestStageCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeVox(t, dir, "pair.vox", [4]uint8{0, 0, 0, 1}, [4]uint8{63, 17, 40, 2})

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"svostage", "stage",
		"--place", path + "@0,0,0",
		"--place", path + "@2,0,0",
		"--region", "0,0,0:3,1,1",
	})
	require.NoError(t, err)

	report := out.String()
	assert.Contains(t, report, "region    (0,0,0)..(3,1,1)")
	assert.Contains(t, report, "slot 0 ")
	assert.Contains(t, report, "slot 2 ")
	assert.NotContains(t, report, "slot 1 ")
}

func TestStageCommandCapacityExceeded(t *testing.T) {
	dir := t.TempDir()
	path := writeVox(t, dir, "one.vox", [4]uint8{5, 5, 5, 1})

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"svostage", "stage", "--place", path + "@0,0,0", "--capacity", "16"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
}

func TestStageCommandBadPlacement(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"svostage", "stage", "--place", "nowhere"})
	assert.Error(t, err)
}
