// Command slice converts a triangle mesh (OBJ/STL/PLY/glTF) into a Cesium
// 3D Tiles tileset: a spatially-partitioned LOD pyramid of b3dm, i3dm,
// pnts, cmpt or glb tiles plus a tileset.json manifest.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
	"github.com/pspoerri/mesh3dtiles/internal/config"
	"github.com/pspoerri/mesh3dtiles/internal/manifest"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
	"github.com/pspoerri/mesh3dtiles/internal/pipeline"
)

// Exit codes, per spec.md §6: 0 success; 1 input-file unreadable or
// parse-failed; 2 configuration invalid; 3 output-path not writable;
// 4 cancelled; 5 internal error. CLI usage errors (missing/bad flags) are
// a degenerate case of invalid configuration, so they share exitConfigError.
const (
	exitOK            = 0
	exitInputError    = 1
	exitConfigError   = 2
	exitOutputError   = 3
	exitCancelled     = 4
	exitInternalError = 5
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		output      string
		strategy    string
		maxLevel    int
		tileSize    float64
		format      string
		parallel    int
		incremental bool
		texture     bool
		refineAdd   bool
		verbose     bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to a TOML slicing config file")
	flag.StringVar(&output, "output", "", "Output directory for the tileset")
	flag.StringVar(&strategy, "strategy", "", "Partition strategy: grid, octree, kd, adaptive")
	flag.IntVar(&maxLevel, "max-level", -1, "Deepest LOD level to generate (-1 = use config/default)")
	flag.Float64Var(&tileSize, "tile-size", -1, "Base tile size in model units (-1 = use config/default)")
	flag.StringVar(&format, "format", "", "Tile content format: b3dm, i3dm, pnts, cmpt, gltf")
	flag.IntVar(&parallel, "parallel", 0, "Worker count (0 = number of CPUs)")
	flag.BoolVar(&incremental, "incremental", false, "Only regenerate tiles whose content changed")
	flag.BoolVar(&texture, "texture", false, "Repack and embed textures")
	flag.BoolVar(&refineAdd, "refine-add", false, "Use ADD refinement instead of REPLACE")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slice [flags] <input-mesh>\n\n")
		fmt.Fprintf(os.Stderr, "Convert a triangle mesh into a Cesium 3D Tiles tileset.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("slice %s (commit %s)\n", version, commit)
		return exitOK
	}

	args := flag.Args()
	if len(args) != 1 {
		flag.Usage()
		return exitConfigError
	}
	inputPath := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return exitConfigError
	}

	overrides := config.Overrides{}
	if output != "" {
		overrides.Output = &output
	}
	if strategy != "" {
		overrides.Strategy = &strategy
	}
	if maxLevel >= 0 {
		overrides.MaxLevel = &maxLevel
	}
	if tileSize > 0 {
		overrides.TileSize = &tileSize
	}
	if format != "" {
		overrides.Format = &format
	}
	if parallel > 0 {
		overrides.Parallel = &parallel
	}
	if incremental {
		overrides.Incremental = &incremental
	}
	if texture {
		overrides.Texture = &texture
	}
	cfg = config.Overlay(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		log.Printf("config: %v", err)
		return exitConfigError
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Printf("reading %s: %v", inputPath, err)
		return exitInputError
	}

	m, err := mesh.Parse(inputPath, data)
	if err != nil {
		log.Printf("parsing %s: %v", inputPath, err)
		return exitInputError
	}
	if verbose {
		log.Printf("parsed %s: %d triangles, bounds %+v", inputPath, m.TriangleCount(), m.AABB())
	}

	store, err := blobstore.NewLocalFS(cfg.Output)
	if err != nil {
		log.Printf("opening output %s: %v", cfg.Output, err)
		return exitOutputError
	}

	refine := manifest.RefineReplace
	if refineAdd {
		refine = manifest.RefineAdd
	}

	parallelWorkers := cfg.Parallel
	if parallelWorkers <= 0 {
		parallelWorkers = runtime.NumCPU()
	}

	pcfg := pipeline.Config{
		Strategy:           cfg.Strategy,
		MaxLevel:           cfg.MaxLevel,
		TileSize:           cfg.TileSize,
		Format:             cfg.Format,
		Parallel:           parallelWorkers,
		Incremental:        cfg.Incremental,
		Texture:            cfg.Texture,
		BaseGeometricError: cfg.BaseGeometricError,
		Refine:             refine,
		Verbose:            verbose,
	}

	fmt.Printf("slice %s\n", version)
	fmt.Printf("  %-14s %s\n", "Strategy:", cfg.Strategy)
	fmt.Printf("  %-14s %d\n", "Max level:", cfg.MaxLevel)
	fmt.Printf("  %-14s %v\n", "Tile size:", cfg.TileSize)
	fmt.Printf("  %-14s %s\n", "Format:", cfg.Format)
	fmt.Printf("  %-14s %d\n", "Parallel:", parallelWorkers)
	fmt.Printf("  %-14s %v\n", "Incremental:", cfg.Incremental)
	fmt.Printf("  %-14s %s\n", "Output:", cfg.Output)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	notifyCancel(stop)

	start := time.Now()
	stats, err := pipeline.Run(ctx, m, store, pcfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("slicing: cancelled: %v", err)
			return exitCancelled
		}
		log.Printf("slicing: %v", err)
		return exitInternalError
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	fmt.Printf("Done: %d written, %d unchanged, %d swept, %s in %v → %s\n",
		stats.TilesWritten, stats.TilesUnchanged, stats.TilesSwept, humanSize(stats.TotalBytes), elapsed, cfg.Output)

	return exitOK
}

// notifyCancel arranges for stop to be called on SIGINT/SIGTERM, so an
// interrupted run surfaces as context.Canceled rather than being killed
// mid-write.
func notifyCancel(stop context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		stop()
	}()
}

func humanSize(n int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case n >= MB:
		return fmt.Sprintf("%.1f MB", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
