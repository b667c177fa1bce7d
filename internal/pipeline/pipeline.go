// Package pipeline orchestrates the full slicing run: build the spatial
// index, walk the LOD pyramid level by level proposing and encoding tiles
// with a worker pool (grounded on the teacher's tile.Generate), track
// content hashes for incremental runs, and emit the tileset manifest.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/gltfenc"
	"github.com/pspoerri/mesh3dtiles/internal/incremental"
	"github.com/pspoerri/mesh3dtiles/internal/manifest"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
	"github.com/pspoerri/mesh3dtiles/internal/partition"
	"github.com/pspoerri/mesh3dtiles/internal/spatial"
	"github.com/pspoerri/mesh3dtiles/internal/texture"
	"github.com/pspoerri/mesh3dtiles/internal/tiles3d"
)

// flushEvery controls how often the incremental tile index is checkpointed
// to the store mid-run, so a crash partway through a large level does not
// lose every hash computed since the previous level boundary.
const flushEvery = 50

// Config parameterizes one slicing run.
type Config struct {
	Strategy           string
	MaxLevel           int
	TileSize           float64
	Format             string // "b3dm", "i3dm", "pnts", "cmpt" or "gltf"; anything else encodes b3dm
	Parallel           int    // 0 means runtime.NumCPU()
	Incremental        bool
	Texture            bool
	BaseGeometricError float64
	Refine             manifest.Refine
	Verbose            bool
}

// Stats summarizes one run for the CLI to report.
type Stats struct {
	TilesWritten      int64
	TilesUnchanged    int64
	TilesSkippedEmpty int64
	TilesSwept        int64
	TotalBytes        int64
}

// Run executes the full pipeline: load_mesh is the caller's responsibility
// (m is already parsed); this builds the index, generates and encodes
// every level's tiles into store, sweeps obsolete tiles when running
// incrementally, and writes tileset.json.
func Run(ctx context.Context, m *mesh.Mesh, store blobstore.Store, cfg Config) (Stats, error) {
	if len(m.Triangles) == 0 {
		return Stats{}, fmt.Errorf("pipeline: mesh has no triangles")
	}

	if cfg.Texture {
		if err := repackMaterials(m); err != nil {
			return Stats{}, err
		}
	}

	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	idx := spatial.Build(m)
	counter := &indexCounter{idx: idx}

	strategy, err := partition.New(cfg.Strategy, partition.Config{TileSize: cfg.TileSize, MaxLevel: cfg.MaxLevel})
	if err != nil {
		return Stats{}, err
	}

	var prevIndex *incremental.TileIndex
	if cfg.Incremental {
		prevIndex, err = incremental.LoadTileIndex(ctx, store)
		if err != nil {
			return Stats{}, err
		}
	} else {
		prevIndex = incremental.NewTileIndex()
	}

	var stats Stats
	touched := make(map[string]struct{})
	var added, updated []incremental.Entry
	var levelNodes [][]*manifest.Node

	cancel := ctxDone(ctx)

	for level := 0; level <= cfg.MaxLevel; level++ {
		select {
		case <-cancel:
			return stats, ctx.Err()
		default:
		}

		descriptors := strategy.GenerateTiles(level, idx.ModelAABB(), counter, cancel)
		if cfg.Verbose {
			log.Printf("pipeline: level %d: %d candidate tiles", level, len(descriptors))
		}
		if len(descriptors) == 0 {
			continue
		}

		lr, err := processLevel(ctx, m, idx, store, prevIndex, descriptors, cfg, parallel, touched, &stats)
		if err != nil {
			return stats, err
		}
		// linkHierarchy assumes levelNodes[i] holds level i's nodes with no
		// gaps; a level with candidate descriptors always yields at least
		// one non-empty tile for a non-degenerate mesh, so this holds in
		// practice for grid/octree/KD/adaptive alike.
		levelNodes = append(levelNodes, lr.nodes)
		added = append(added, lr.added...)
		updated = append(updated, lr.updated...)

		if err := prevIndex.Persist(ctx, store); err != nil {
			return stats, fmt.Errorf("pipeline: checkpointing index at level %d: %w", level, err)
		}
	}

	root, err := linkHierarchy(levelNodes)
	if err != nil {
		return stats, err
	}

	tilesetJSON, err := manifest.BuildTileset(root, manifest.Config{
		BaseGeometricError: cfg.BaseGeometricError,
		MaxLevel:           cfg.MaxLevel,
		Refine:             cfg.Refine,
	})
	if err != nil {
		return stats, err
	}
	if err := store.Put(ctx, "tileset.json", tilesetJSON); err != nil {
		return stats, fmt.Errorf("pipeline: writing tileset.json: %w", err)
	}

	if cfg.Incremental {
		obsolete := incremental.ObsoleteKeys(prevIndex, touched)
		cs := incremental.Compute(added, updated, obsolete)
		swept, err := incremental.Sweep(ctx, store, prevIndex, obsolete)
		if err != nil {
			return stats, err
		}
		stats.TilesSwept = int64(swept)
		if err := incremental.WriteDelta(ctx, store, cs); err != nil {
			return stats, err
		}
		if err := prevIndex.Persist(ctx, store); err != nil {
			return stats, fmt.Errorf("pipeline: persisting final index: %w", err)
		}
	}

	return stats, nil
}

// repackMaterials downscales and WebP-recompresses every material texture
// in place, so every tile level embeds the repacked (not the source)
// texture bytes.
func repackMaterials(m *mesh.Mesh) error {
	opts := texture.DefaultOptions()
	for name, mat := range m.Materials {
		if mat.Texture == nil || len(mat.Texture.Data) == 0 {
			continue
		}
		repacked, err := texture.Repack(mat.Texture, opts)
		if err != nil {
			return fmt.Errorf("pipeline: repacking texture for material %q: %w", name, err)
		}
		mat.Texture = repacked
		m.Materials[name] = mat
	}
	return nil
}

type tileJob struct {
	descriptor partition.TileDescriptor
}

type tileResult struct {
	node          *manifest.Node
	unchanged     bool
	existedBefore bool
	skipped       bool
	bytes         int
	key           string
	entry         incremental.Entry
}

// levelResult bundles one level's manifest nodes with the added/updated
// entries classified while encoding its tiles.
type levelResult struct {
	nodes   []*manifest.Node
	added   []incremental.Entry
	updated []incremental.Entry
}

// processLevel runs one LOD level's tiles through a worker pool, grounded
// on the teacher's job-channel + WaitGroup + atomic-counters pattern in
// tile.Generate.
func processLevel(
	ctx context.Context,
	m *mesh.Mesh,
	idx *spatial.Index,
	store blobstore.Store,
	prevIndex *incremental.TileIndex,
	descriptors []partition.TileDescriptor,
	cfg Config,
	parallel int,
	touched map[string]struct{},
	stats *Stats,
) (levelResult, error) {
	cancel := ctxDone(ctx)

	jobs := make(chan tileJob, parallel*2)
	results := make(chan tileResult, parallel*2)
	errCh := make(chan error, 1)

	var wg sync.WaitGroup
	var written, unchanged, skippedEmpty, totalBytes atomic.Int64

	// Workers look tiles up in a snapshot of the index, so the collector
	// loop below can Update prevIndex without racing their reads.
	prev := incremental.NewTileIndex()
	for k, e := range prevIndex.Entries {
		prev.Entries[k] = e
	}

	for w := 0; w < parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := encodeTile(ctx, m, idx, store, prev, job.descriptor, cfg, cancel)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				if res.skipped {
					skippedEmpty.Add(1)
					continue
				}
				if res.unchanged {
					unchanged.Add(1)
				} else {
					written.Add(1)
					totalBytes.Add(int64(res.bytes))
				}
				results <- *res
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, d := range descriptors {
			select {
			case <-cancel:
				return
			case jobs <- tileJob{descriptor: d}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var lr levelResult
	flushCounter := 0
	for res := range results {
		touched[res.key] = struct{}{}
		prevIndex.Update(res.entry)
		lr.nodes = append(lr.nodes, res.node)
		if !res.unchanged {
			if res.existedBefore {
				lr.updated = append(lr.updated, res.entry)
			} else {
				lr.added = append(lr.added, res.entry)
			}
		}

		flushCounter++
		if flushCounter%flushEvery == 0 {
			if err := prevIndex.Persist(ctx, store); err != nil {
				return levelResult{}, fmt.Errorf("pipeline: mid-level checkpoint: %w", err)
			}
		}
	}

	select {
	case err := <-errCh:
		return levelResult{}, err
	default:
	}

	stats.TilesWritten += written.Load()
	stats.TilesUnchanged += unchanged.Load()
	stats.TilesSkippedEmpty += skippedEmpty.Load()
	stats.TotalBytes += totalBytes.Load()

	return lr, nil
}

func encodeTile(
	ctx context.Context,
	m *mesh.Mesh,
	idx *spatial.Index,
	store blobstore.Store,
	prevIndex *incremental.TileIndex,
	d partition.TileDescriptor,
	cfg Config,
	cancel <-chan struct{},
) (*tileResult, error) {
	triIndices := idx.Query(d.AABB, cancel)
	if len(triIndices) == 0 {
		return &tileResult{skipped: true}, nil
	}

	sub := subMesh(m, triIndices)

	glb, err := gltfenc.Encode(sub)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encoding tile %+v: %w", d.Coord, err)
	}

	ext, tileBytes, err := wrapTile(glb, sub, cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("pipeline: wrapping tile %+v: %w", d.Coord, err)
	}

	key := fmt.Sprintf("%d/%d/%d/%d.%s", d.Coord.Level, d.Coord.X, d.Coord.Y, d.Coord.Z, ext)
	entry := incremental.HashTile(key, tileBytes, len(triIndices))

	existedBefore := prevIndex.Exists(key)
	unchanged := prevIndex.Unchanged(entry)
	if !unchanged {
		if err := store.Put(ctx, key, tileBytes); err != nil {
			return nil, fmt.Errorf("pipeline: writing tile %s: %w", key, err)
		}
	}

	node := &manifest.Node{Coord: d.Coord, AABB: d.AABB, URI: key}

	return &tileResult{
		node:          node,
		unchanged:     unchanged,
		existedBefore: existedBefore,
		bytes:         len(tileBytes),
		key:           key,
		entry:         entry,
	}, nil
}

// wrapTile dispatches a tile's encoded GLB to the configured 3D Tiles
// payload format, per spec.md §4.6 and the output_format set in §6.
func wrapTile(glb []byte, sub *mesh.Mesh, format string) (ext string, data []byte, err error) {
	switch format {
	case "i3dm":
		centroid := meshCentroid(sub)
		data, err = tiles3d.EncodeI3DM(glb, []tiles3d.Instance{{Position: centroid}})
		return "i3dm", data, err
	case "pnts":
		points := make([]geom.Vec3, 0, len(sub.Triangles)*3)
		for _, tri := range sub.Triangles {
			points = append(points, tri.V0, tri.V1, tri.V2)
		}
		data, err = tiles3d.EncodePNTS(points, nil)
		return "pnts", data, err
	case "cmpt":
		inner, encErr := tiles3d.EncodeB3DM(glb, len(sub.Materials), nil)
		if encErr != nil {
			return "", nil, encErr
		}
		data, err = tiles3d.EncodeCMPT([][]byte{inner})
		return "cmpt", data, err
	case "gltf":
		// Embedded-buffer binary glTF, stored directly as tile content
		// (3D Tiles 1.1 content.uri may reference a glTF asset without a
		// b3dm/i3dm/pnts wrapper); external-URI gltf is out of scope.
		return "glb", glb, nil
	default:
		data, err = tiles3d.EncodeB3DM(glb, len(sub.Materials), nil)
		return "b3dm", data, err
	}
}

func meshCentroid(m *mesh.Mesh) geom.Vec3 {
	var sum geom.Vec3
	n := 0
	for _, tri := range m.Triangles {
		sum = sum.Add(tri.Centroid())
		n++
	}
	if n == 0 {
		return geom.Vec3{}
	}
	return sum.Scale(1 / float64(n))
}

// subMesh extracts the triangles named by indices into a standalone mesh.
// geom.Triangle owns its own vertex coordinates, so no vertex remapping is
// needed — only the triangle slice and material table are copied.
func subMesh(m *mesh.Mesh, indices []int) *mesh.Mesh {
	tris := make([]geom.Triangle, len(indices))
	for i, idx := range indices {
		tris[i] = m.Triangles[idx]
	}
	return &mesh.Mesh{
		Triangles: tris,
		Materials: m.Materials,
	}
}

// linkHierarchy attaches each level's nodes to their spatial parent in the
// level above via AABB containment, since partition strategies do not all
// use the same coordinate addressing scheme across levels.
func linkHierarchy(levelNodes [][]*manifest.Node) (*manifest.Node, error) {
	if len(levelNodes) == 0 || len(levelNodes[0]) == 0 {
		return nil, fmt.Errorf("pipeline: no tiles were generated at any level")
	}

	for lvl := 1; lvl < len(levelNodes); lvl++ {
		parents := levelNodes[lvl-1]
		for _, child := range levelNodes[lvl] {
			parent := findContainingParent(parents, child)
			if parent != nil {
				parent.Children = append(parent.Children, child)
			}
		}
	}

	roots := levelNodes[0]
	if len(roots) == 1 {
		return roots[0], nil
	}
	// Multiple level-0 tiles (possible for strategies that immediately
	// terminate several disjoint branches): wrap them under a synthetic,
	// content-less root spanning their union.
	union := roots[0].AABB
	for _, r := range roots[1:] {
		union = union.Union(r.AABB)
	}
	return &manifest.Node{AABB: union, Children: roots}, nil
}

func findContainingParent(parents []*manifest.Node, child *manifest.Node) *manifest.Node {
	center := child.AABB.Center()
	for _, p := range parents {
		if p.AABB.ContainsPoint(center, 1e-6) {
			return p
		}
	}
	return nil
}

// indexCounter adapts *spatial.Index to partition.TriangleCounter.
type indexCounter struct {
	idx *spatial.Index
}

func (c *indexCounter) CountInAABB(box geom.AABB) int {
	return len(c.idx.Query(box, nil))
}

func (c *indexCounter) TrianglesInAABB(box geom.AABB) []partition.TriangleSample {
	indices := c.idx.Query(box, nil)
	m := c.idx.Mesh()
	out := make([]partition.TriangleSample, len(indices))
	for i, triIdx := range indices {
		tri := m.Triangles[triIdx]
		out[i] = partition.TriangleSample{
			Centroid: tri.Centroid(),
			Normal:   tri.Normal(),
			Area:     tri.Area(),
		}
	}
	return out
}

func ctxDone(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	return ctx.Done()
}
