package partition

import (
	"math"
	"testing"

	"github.com/pspoerri/mesh3dtiles/internal/geom"
)

// fakeCounter returns a fixed set of samples for any query, so tests can
// pin down exactly what measureCell/descriptorsFromCells compute without
// depending on internal/spatial.
type fakeCounter struct {
	samples []TriangleSample
}

func (f fakeCounter) CountInAABB(geom.AABB) int { return len(f.samples) }
func (f fakeCounter) TrianglesInAABB(geom.AABB) []TriangleSample {
	return f.samples
}

func TestSigmoidUsesFactorFive(t *testing.T) {
	// spec.md §4.4.4: density = sigmoid(5*(score-0.5)) + min(curvature*0.2, 0.1).
	// At score=0.5 the sigmoid term alone must be exactly 0.5.
	got := sigmoid(5 * (0.5 - 0.5))
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("sigmoid(0) = %v, want 0.5", got)
	}
	// A factor of 4 (the old, wrong value) would give a different curve;
	// spot-check a point where the two disagree measurably.
	factor5 := sigmoid(5 * (0.9 - 0.5))
	factor4 := 1 / (1 + math.Exp(-4*(0.9-0.5)))
	if math.Abs(factor5-factor4) < 1e-6 {
		t.Errorf("sigmoid(5*x) indistinguishable from sigmoid(4*x); factor-5 steepness not exercised")
	}
}

func TestAdaptiveWeightsBaseline(t *testing.T) {
	w := adaptiveWeights(0, 0, 0)
	want := [4]float64{0.30, 0.30, 0.25, 0.15}
	if w != want {
		t.Errorf("adaptiveWeights(no signals) = %v, want %v", w, want)
	}
}

func TestAdaptiveWeightsTransferAndRenormalize(t *testing.T) {
	// Only the vertex-density signal fires: +0.10 to weight 0, -0.05 from
	// the other three, then renormalize to sum 1.
	w := adaptiveWeights(90, 0, 0)
	var sum float64
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum = %v, want 1", sum)
	}
	if w[0] <= 0.30 {
		t.Errorf("w[0] = %v, want > baseline 0.30 after vertex-density transfer", w[0])
	}
}

func TestAdaptiveWeightsNeverNegative(t *testing.T) {
	// All three strong signals fire at once: each transfer takes 0.05 from
	// every other weight. The lowest value reached is 0.05 (area, after the
	// vertex-density and curvature transfers); the result must still be
	// non-negative and sum to 1.
	w := adaptiveWeights(90, 0.9, 900)
	for i, v := range w {
		if v < 0 {
			t.Errorf("w[%d] = %v, want >= 0", i, v)
		}
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum = %v, want 1", sum)
	}
}

func TestMeasureCellCurvatureInUnitRange(t *testing.T) {
	samples := []TriangleSample{
		{Normal: geom.Vec3{X: 0, Y: 0, Z: 1}, Area: 1},
		{Normal: geom.Vec3{X: 1, Y: 0, Z: 0}, Area: 1},
	}
	box := geom.AABB{Min: geom.Vec3{}, Max: geom.Vec3{X: 1, Y: 1, Z: 1}}
	m := measureCell(TileCoord{}, box, samples)
	if m.curvature < 0 || m.curvature > 1 {
		t.Errorf("curvature = %v, want within [0,1]", m.curvature)
	}
}

func TestDescriptorsFromCellsExpandsHighDensityCell(t *testing.T) {
	box := geom.AABB{Min: geom.Vec3{}, Max: geom.Vec3{X: 1, Y: 1, Z: 1}}
	// Many coincident-normal samples packed into a tiny box drive vertex and
	// triangle density to their clamp ceilings, pushing score (and hence
	// density) comfortably above the 0.8 expansion threshold.
	samples := make([]TriangleSample, 200)
	for i := range samples {
		samples[i] = TriangleSample{Normal: geom.Vec3{X: 0, Y: 0, Z: 1}, Area: 10}
	}
	cells := []cellMetrics{measureCell(TileCoord{}, box, samples)}

	out := descriptorsFromCells(cells, Config{TileSize: 1})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	got := out[0]
	if got.Density <= 0.8 {
		t.Fatalf("density = %v, want > 0.8 for this fixture", got.Density)
	}
	if got.AABB.Extent().X <= box.Extent().X {
		t.Errorf("AABB not expanded for high-density cell: extent.X = %v, want > %v", got.AABB.Extent().X, box.Extent().X)
	}
}

func TestDescriptorsFromCellsVerticalStretchOnHighArea(t *testing.T) {
	box := geom.AABB{Min: geom.Vec3{}, Max: geom.Vec3{X: 1, Y: 1, Z: 1}}
	samples := []TriangleSample{{Normal: geom.Vec3{X: 0, Y: 0, Z: 1}, Area: 600}}
	cells := []cellMetrics{measureCell(TileCoord{}, box, samples)}

	out := descriptorsFromCells(cells, Config{TileSize: 1})
	got := out[0].AABB

	wantZExtent := box.Extent().Z + 2*(1*0.2)
	if math.Abs(got.Extent().Z-wantZExtent) > 1e-6 {
		t.Errorf("Z extent = %v, want %v (vertical-only stretch for area > 500)", got.Extent().Z, wantZExtent)
	}
	if math.Abs(got.Extent().X-box.Extent().X) > 1e-6 {
		t.Errorf("X extent = %v, want unchanged %v (vertical stretch must not touch X/Y)", got.Extent().X, box.Extent().X)
	}
}

func TestDescriptorsFromCellsRoundsToSixDecimals(t *testing.T) {
	box := geom.AABB{Min: geom.Vec3{X: 0.1234567, Y: 0, Z: 0}, Max: geom.Vec3{X: 1.1234567, Y: 1, Z: 1}}
	samples := []TriangleSample{{Normal: geom.Vec3{X: 0, Y: 0, Z: 1}, Area: 1}}
	cells := []cellMetrics{measureCell(TileCoord{}, box, samples)}

	out := descriptorsFromCells(cells, Config{TileSize: 1})
	scale := math.Pow10(6)
	rounded := math.Round(out[0].AABB.Min.X*scale) / scale
	if out[0].AABB.Min.X != rounded {
		t.Errorf("Min.X = %v, not rounded to 6 decimals", out[0].AABB.Min.X)
	}
}

func TestDescriptorsFromCellsEnforcesMinExtent(t *testing.T) {
	// A degenerate sliver (zero Z extent) must be grown to tile_size*0.01.
	box := geom.AABB{Min: geom.Vec3{X: 0, Y: 0, Z: 0.5}, Max: geom.Vec3{X: 1, Y: 1, Z: 0.5}}
	samples := []TriangleSample{{Normal: geom.Vec3{X: 0, Y: 0, Z: 1}, Area: 1}}
	cells := []cellMetrics{measureCell(TileCoord{}, box, samples)}

	out := descriptorsFromCells(cells, Config{TileSize: 10})
	wantMin := 10 * 0.01
	if out[0].AABB.Extent().Z < wantMin-1e-9 {
		t.Errorf("Z extent = %v, want >= %v", out[0].AABB.Extent().Z, wantMin)
	}
}

func TestAdaptiveStrategyGenerateTilesSkipsEmptyCells(t *testing.T) {
	s := &AdaptiveStrategy{cfg: Config{TileSize: 1, MaxLevel: 0}}
	counter := fakeCounter{samples: nil}
	modelAABB := geom.AABB{Min: geom.Vec3{}, Max: geom.Vec3{X: 1, Y: 1, Z: 1}}

	out := s.GenerateTiles(0, modelAABB, counter, nil)
	if len(out) != 0 {
		t.Errorf("GenerateTiles() with no triangles anywhere = %d descriptors, want 0", len(out))
	}
}
