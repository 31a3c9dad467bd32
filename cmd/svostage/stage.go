package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Carmen-Shannon/oxy-svo/common"
	"github.com/Carmen-Shannon/oxy-svo/engine"
	"github.com/Carmen-Shannon/oxy-svo/engine/loader"
	"github.com/Carmen-Shannon/oxy-svo/engine/renderer"
	"github.com/Carmen-Shannon/oxy-svo/engine/scene"
	"github.com/Carmen-Shannon/oxy-svo/engine/stager"
)

const maxLoadWorkers = 64

// placement puts one model of a file at a chunk coordinate.
type placement struct {
	path  string
	model int
	coord common.ChunkCoord
}

// parsePlacement parses FILE[#MODEL]@X,Y,Z.
func parsePlacement(s string) (placement, error) {
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return placement{}, errors.Errorf("placement %q: expected FILE[#MODEL]@X,Y,Z", s)
	}
	coord, err := parseChunkCoord(s[at+1:])
	if err != nil {
		return placement{}, errors.Wrapf(err, "placement %q", s)
	}

	p := placement{path: s[:at], coord: coord}
	if hash := strings.LastIndex(p.path, "#"); hash >= 0 {
		idx, err := strconv.Atoi(p.path[hash+1:])
		if err != nil {
			return placement{}, errors.Wrapf(err, "placement %q: model index", s)
		}
		p.path, p.model = p.path[:hash], idx
	}
	if p.path == "" {
		return placement{}, errors.Errorf("placement %q: empty file name", s)
	}
	return p, nil
}

// parseRegion parses X,Y,Z:X,Y,Z.
func parseRegion(s string) (common.Region, error) {
	start, end, ok := strings.Cut(s, ":")
	if !ok {
		return common.Region{}, errors.Errorf("region %q: expected X,Y,Z:X,Y,Z", s)
	}
	a, err := parseChunkCoord(start)
	if err != nil {
		return common.Region{}, errors.Wrapf(err, "region %q", s)
	}
	b, err := parseChunkCoord(end)
	if err != nil {
		return common.Region{}, errors.Wrapf(err, "region %q", s)
	}
	return common.NewRegion(a, b), nil
}

func parseChunkCoord(s string) (common.ChunkCoord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return common.ChunkCoord{}, errors.Errorf("coordinate %q: expected X,Y,Z", s)
	}
	var v [3]int32
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return common.ChunkCoord{}, errors.Wrapf(err, "coordinate %q", s)
		}
		v[i] = int32(n)
	}
	return common.ChunkCoord{X: v[0], Y: v[1], Z: v[2]}, nil
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// StageAction loads every placed model, builds the scene and runs one engine update cycle.
func StageAction(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var placements []placement
	for _, s := range c.StringSlice(stageFlagPlace) {
		p, err := parsePlacement(s)
		if err != nil {
			return err
		}
		placements = append(placements, p)
	}

	l := loader.NewLoader(loader.WithLogger(logger))
	if err := loadAll(l, placements, common.Clamp(c.Int(stageFlagWorkers), 1, maxLoadWorkers)); err != nil {
		return err
	}

	sc := scene.NewScene("svostage", scene.WithLogger(logger))
	if err := placeAll(l, sc, placements); err != nil {
		return err
	}

	presence := stager.PresenceSparse
	if c.Bool(stageFlagFullMask) {
		presence = stager.PresenceFull
	}
	capacity := c.Uint64(stageFlagCapacity)
	st := stager.NewStager(
		stager.WithCapacity(capacity),
		stager.WithPresenceMode(presence),
		stager.WithLeafColorIndex(uint32(c.Uint(stageFlagColor))),
		stager.WithLogger(logger),
	)

	options := []engine.EngineBuilderOption{
		engine.WithScene(sc),
		engine.WithStager(st),
		engine.WithLogger(logger),
		engine.WithProfiling(c.Bool(flagDebug)),
	}
	if s := c.String(stageFlagRegion); s != "" {
		region, err := parseRegion(s)
		if err != nil {
			return err
		}
		options = append(options, engine.WithRegion(region))
	}

	if c.Bool(stageFlagGPU) {
		gpu, err := renderer.NewHeadlessContext(false)
		if err != nil {
			return err
		}
		defer gpu.Release()

		buffers, err := renderer.NewWorldBuffers(gpu.Device, gpu.Queue,
			renderer.WithCapacity(common.Coalesce(capacity, renderer.DefaultNodeCapacity)),
			renderer.WithLegacyNodeOffset(c.Bool(stageFlagLegacyOffset)),
			renderer.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer buffers.Release()
		options = append(options, engine.WithUploader(buffers))
	}

	e := engine.NewEngine(options...)
	start := time.Now()
	if _, err := e.Update(); err != nil {
		return err
	}
	logger.Debugw("stage finished", "elapsed", time.Since(start))

	report(c.App.Writer, e.Staged(), c.Int(stageFlagSlots))
	return nil
}

// loadAll loads every distinct file on a worker pool and returns the combined load errors.
func loadAll(l loader.Loader, placements []placement, workers int) error {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range placements {
		if !seen[p.path] {
			seen[p.path] = true
			paths = append(paths, p.path)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	pool := worker.NewDynamicWorkerPool(min(workers, len(paths)), 256, 1*time.Second)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i, path := range paths {
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				file, err := l.Load(path)
				if err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
					return nil, err
				}
				return file, nil
			},
		})
	}
	wg.Wait()
	return errs
}

// placeAll builds one tree per placement and adds it to the scene.
func placeAll(l loader.Loader, sc scene.Scene, placements []placement) error {
	var errs error
	for _, p := range placements {
		tree, err := l.BuildTree(l.Get(p.path), p.model)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s#%d", p.path, p.model))
			continue
		}
		sc.AddChunk(tree, p.coord)
	}
	return errs
}

func report(w io.Writer, staged *stager.Staged, maxSlots int) {
	stats := staged.Stats()
	fmt.Fprintf(w, "region    %s\n", staged.Region)
	fmt.Fprintf(w, "records   %d (%d roots, %d branches, %d leaves, %d empty)\n",
		len(staged.Nodes), stats.Roots, stats.Branches, stats.Leaves, stats.Empty)
	fmt.Fprintf(w, "bytes     %d\n", staged.ByteSize())
	fmt.Fprintf(w, "checksum  %016x\n", staged.Checksum())

	printed := 0
	staged.Region.Each(func(c common.ChunkCoord) {
		root, _ := staged.Root(c)
		if root.Mask() == 0 || printed >= maxSlots {
			return
		}
		printed++
		kind := "leaf"
		if !root.Terminal() {
			kind = "branch"
		}
		fmt.Fprintf(w, "slot %-6d %-12s %-6s base=%-6d mask=%016x\n",
			staged.Region.Offset(c), c, kind, root.Base, root.Mask())
	})
}
