// Package main is the svostage command: it loads voxel models, places them as chunks and stages a
// region into the GPU node buffer layout, optionally uploading it to a headless device.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	stageFlagPlace        = "place"
	stageFlagRegion       = "region"
	stageFlagCapacity     = "capacity"
	stageFlagFullMask     = "full-mask"
	stageFlagColor        = "color"
	stageFlagWorkers      = "workers"
	stageFlagGPU          = "gpu"
	stageFlagLegacyOffset = "legacy-offset"
	stageFlagSlots        = "slots"
	flagDebug             = "debug"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "svostage",
		Usage: "stage voxel models into a sparse voxel octree node buffer",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "stage",
				Usage:     "load models, place them as chunks and flatten a region",
				UsageText: fmt.Sprintf("svostage stage --%s FILE[#MODEL]@X,Y,Z [other options]", stageFlagPlace),
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     stageFlagPlace,
						Required: true,
						Usage:    "model placement FILE[#MODEL]@X,Y,Z, repeatable; .vox, .gltf and .glb, optionally .zst or .gz compressed",
					},
					&cli.StringFlag{
						Name:  stageFlagRegion,
						Usage: "chunk region X,Y,Z:X,Y,Z (inclusive start, exclusive end), defaults to the bounds of all placements",
					},
					&cli.Uint64Flag{
						Name:  stageFlagCapacity,
						Usage: "node buffer capacity in bytes, 0 to allow the full 32-bit record range",
					},
					&cli.BoolFlag{
						Name:  stageFlagFullMask,
						Usage: "set every presence bit on branch records",
					},
					&cli.UintFlag{
						Name:  stageFlagColor,
						Value: 10,
						Usage: "palette index written into leaf records",
					},
					&cli.IntFlag{
						Name:  stageFlagWorkers,
						Value: 4,
						Usage: "number of model files loaded in parallel",
					},
					&cli.BoolFlag{
						Name:  stageFlagGPU,
						Usage: "upload the staged buffers to a headless GPU device",
					},
					&cli.BoolFlag{
						Name:  stageFlagLegacyOffset,
						Usage: "write node records starting at offset one record",
					},
					&cli.IntFlag{
						Name:  stageFlagSlots,
						Value: 32,
						Usage: "maximum number of populated root slots to print",
					},
				},
				Action: StageAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
