package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

func TestRecordLogsAtInterval(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	clock := time.Unix(0, 0)
	p := NewProfiler(WithInterval(time.Second), WithLogger(zap.New(core).Sugar()))
	p.now = func() time.Time { return clock }
	p.lastTime = clock

	staged, err := stager.NewStager().Stage(nil, common.NewRegion(common.ChunkCoord{}, common.ChunkCoord{X: 2, Y: 2, Z: 2}))
	require.NoError(t, err)

	assert.False(t, p.Record(2*time.Millisecond, staged))
	assert.False(t, p.Record(4*time.Millisecond, nil))

	snap := p.Snapshot()
	assert.Equal(t, 2, snap.Stages)
	assert.Equal(t, 3*time.Millisecond, snap.Mean)
	assert.Equal(t, 4*time.Millisecond, snap.Max)
	assert.Equal(t, 8, snap.Records)
	assert.Equal(t, 8*stager.GPUNodeSize, snap.Bytes)
	assert.Equal(t, 8, snap.Stats.Roots)
	assert.Equal(t, 0, logs.Len())

	clock = clock.Add(1500 * time.Millisecond)
	assert.True(t, p.Record(time.Millisecond, nil))
	require.Equal(t, 1, logs.FilterMessage("stage profile").Len())
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["stages"])

	snap = p.Snapshot()
	assert.Equal(t, 0, snap.Stages)
	assert.Equal(t, time.Duration(0), snap.Mean)
	assert.Equal(t, 8, snap.Records)
}
