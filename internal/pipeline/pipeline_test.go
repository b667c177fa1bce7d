package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pspoerri/mesh3dtiles/internal/blobstore"
	"github.com/pspoerri/mesh3dtiles/internal/geom"
	"github.com/pspoerri/mesh3dtiles/internal/manifest"
	"github.com/pspoerri/mesh3dtiles/internal/mesh"
)

func cubeMesh() *mesh.Mesh {
	tris := []geom.Triangle{
		{V0: geom.Vec3{X: 0, Y: 0, Z: 0}, V1: geom.Vec3{X: 1, Y: 0, Z: 0}, V2: geom.Vec3{X: 1, Y: 1, Z: 0}},
		{V0: geom.Vec3{X: 0, Y: 0, Z: 0}, V1: geom.Vec3{X: 1, Y: 1, Z: 0}, V2: geom.Vec3{X: 0, Y: 1, Z: 0}},
		{V0: geom.Vec3{X: 0, Y: 0, Z: 1}, V1: geom.Vec3{X: 1, Y: 0, Z: 1}, V2: geom.Vec3{X: 1, Y: 1, Z: 1}},
		{V0: geom.Vec3{X: 0, Y: 0, Z: 1}, V1: geom.Vec3{X: 1, Y: 1, Z: 1}, V2: geom.Vec3{X: 0, Y: 1, Z: 1}},
	}
	return &mesh.Mesh{Triangles: tris, Materials: map[string]mesh.Material{}}
}

func TestRunGridProducesTilesetAndTiles(t *testing.T) {
	store, err := blobstore.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS() error = %v", err)
	}

	cfg := Config{
		Strategy:           "grid",
		MaxLevel:           1,
		TileSize:           1,
		Format:             "b3dm",
		Parallel:           2,
		BaseGeometricError: 4,
		Refine:             manifest.RefineReplace,
	}

	stats, err := Run(context.Background(), cubeMesh(), store, cfg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TilesWritten == 0 {
		t.Fatal("Run() wrote zero tiles")
	}

	raw, err := store.Get(context.Background(), "tileset.json")
	if err != nil {
		t.Fatalf("reading tileset.json: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("tileset.json is empty")
	}
}

func TestRunEmptyMeshErrors(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	_, err := Run(context.Background(), &mesh.Mesh{}, store, Config{Strategy: "grid", MaxLevel: 0, TileSize: 1})
	if err == nil {
		t.Fatal("Run() on empty mesh: want error, got nil")
	}
}

func TestRunIncrementalSkipsUnchangedTiles(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	cfg := Config{
		Strategy:           "grid",
		MaxLevel:           0,
		TileSize:           1,
		Format:             "b3dm",
		Parallel:           1,
		Incremental:        true,
		BaseGeometricError: 2,
	}

	ctx := context.Background()
	if _, err := Run(ctx, cubeMesh(), store, cfg); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	stats, err := Run(ctx, cubeMesh(), store, cfg)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if stats.TilesUnchanged == 0 {
		t.Errorf("second Run() reported 0 unchanged tiles, want > 0")
	}

	// Incremental law (spec.md §8): rerunning on unchanged input produces
	// an empty incremental_index.json delta.
	raw, err := store.Get(ctx, "incremental_index.json")
	if err != nil {
		t.Fatalf("reading incremental_index.json: %v", err)
	}
	var cs struct {
		Added   []json.RawMessage `json:"added"`
		Updated []json.RawMessage `json:"updated"`
		Deleted []string          `json:"deleted"`
	}
	if err := json.Unmarshal(raw, &cs); err != nil {
		t.Fatalf("parsing incremental_index.json: %v", err)
	}
	if len(cs.Added) != 0 || len(cs.Updated) != 0 || len(cs.Deleted) != 0 {
		t.Errorf("no-op rerun delta = %+v, want added/updated/deleted all empty", cs)
	}
}

func TestRunIncrementalMutationReportsUpdated(t *testing.T) {
	store, _ := blobstore.NewLocalFS(t.TempDir())
	cfg := Config{
		Strategy:           "grid",
		MaxLevel:           0,
		TileSize:           1,
		Format:             "b3dm",
		Parallel:           1,
		Incremental:        true,
		BaseGeometricError: 2,
	}
	ctx := context.Background()

	m := cubeMesh()
	if _, err := Run(ctx, m, store, cfg); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	m.Triangles[0].V0.X += 0.001
	if _, err := Run(ctx, m, store, cfg); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	raw, err := store.Get(ctx, "incremental_index.json")
	if err != nil {
		t.Fatalf("reading incremental_index.json: %v", err)
	}
	var cs struct {
		Added   []json.RawMessage `json:"added"`
		Updated []json.RawMessage `json:"updated"`
		Deleted []string          `json:"deleted"`
	}
	if err := json.Unmarshal(raw, &cs); err != nil {
		t.Fatalf("parsing incremental_index.json: %v", err)
	}
	if len(cs.Added) != 0 {
		t.Errorf("Added = %v, want empty", cs.Added)
	}
	if len(cs.Updated) != 1 {
		t.Errorf("Updated = %v, want exactly one entry", cs.Updated)
	}
	if len(cs.Deleted) != 0 {
		t.Errorf("Deleted = %v, want empty", cs.Deleted)
	}
}

func TestRunCmptAndGltfFormats(t *testing.T) {
	for _, format := range []string{"cmpt", "gltf"} {
		store, _ := blobstore.NewLocalFS(t.TempDir())
		cfg := Config{
			Strategy:           "grid",
			MaxLevel:           0,
			TileSize:           1,
			Format:             format,
			Parallel:           1,
			BaseGeometricError: 1,
		}
		stats, err := Run(context.Background(), cubeMesh(), store, cfg)
		if err != nil {
			t.Fatalf("Run(format=%s) error = %v", format, err)
		}
		if stats.TilesWritten == 0 {
			t.Errorf("Run(format=%s) wrote zero tiles", format)
		}
	}
}
