package geom

import (
	"math"
	"testing"
)

func TestAABBIsValid(t *testing.T) {
	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"normal", AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}, true},
		{"degenerate", AABB{Min: Vec3{1, 1, 1}, Max: Vec3{1, 1, 1}}, true},
		{"inverted x", AABB{Min: Vec3{2, 0, 0}, Max: Vec3{1, 1, 1}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAABBBoxCorners(t *testing.T) {
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}
	corners := box.BoxCorners()
	want := [12]float64{0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0.5, 0, 0, 0, 0.5}
	if corners != want {
		t.Errorf("BoxCorners() = %v, want %v", corners, want)
	}
}

func TestAABBUnion(t *testing.T) {
	a := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}
	b := AABB{Min: Vec3{-1, 2, 0}, Max: Vec3{0.5, 3, 5}}
	u := a.Union(b)
	want := AABB{Min: Vec3{-1, 0, 0}, Max: Vec3{1, 3, 5}}
	if u != want {
		t.Errorf("Union() = %+v, want %+v", u, want)
	}
}

func TestTriangleAABBAndCentroid(t *testing.T) {
	tri := Triangle{V0: Vec3{0, 0, 0}, V1: Vec3{2, 0, 0}, V2: Vec3{0, 2, 0}}
	box := tri.AABB()
	if box.Min != (Vec3{0, 0, 0}) || box.Max != (Vec3{2, 2, 0}) {
		t.Errorf("AABB() = %+v", box)
	}
	c := tri.Centroid()
	wantC := Vec3{2.0 / 3, 2.0 / 3, 0}
	if math.Abs(c.X-wantC.X) > 1e-9 || math.Abs(c.Y-wantC.Y) > 1e-9 {
		t.Errorf("Centroid() = %+v, want %+v", c, wantC)
	}
}

func TestTriangleArea(t *testing.T) {
	tri := Triangle{V0: Vec3{0, 0, 0}, V1: Vec3{1, 0, 0}, V2: Vec3{0, 1, 0}}
	if got := tri.Area(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Area() = %v, want 0.5", got)
	}
}

func TestSegmentIntersectsAABB(t *testing.T) {
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}
	tests := []struct {
		name       string
		p0, p1     Vec3
		tolerance  float64
		want       bool
	}{
		{"crosses box", Vec3{-1, 0.5, 0.5}, Vec3{2, 0.5, 0.5}, 0, true},
		{"misses box", Vec3{-1, 5, 5}, Vec3{2, 5, 5}, 0, false},
		{"touches with tolerance", Vec3{-1, 1.05, 0.5}, Vec3{2, 1.05, 0.5}, 0.1, true},
		{"fully inside", Vec3{0.2, 0.2, 0.2}, Vec3{0.8, 0.8, 0.8}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentIntersectsAABB(tt.p0, tt.p1, box, tt.tolerance); got != tt.want {
				t.Errorf("SegmentIntersectsAABB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriangleIntersectsAABB(t *testing.T) {
	box := AABB{Min: Vec3{0, 0, 0}, Max: Vec3{1, 1, 1}}

	vertexInside := Triangle{V0: Vec3{0.5, 0.5, 0.5}, V1: Vec3{5, 5, 5}, V2: Vec3{6, 6, 6}}
	if !TriangleIntersectsAABB(vertexInside, box, 0) {
		t.Error("expected vertex-inside triangle to intersect")
	}

	edgeCrossing := Triangle{V0: Vec3{-1, 0.5, 0.5}, V1: Vec3{2, 0.5, 0.5}, V2: Vec3{2, 0.5, 2}}
	if !TriangleIntersectsAABB(edgeCrossing, box, 0) {
		t.Error("expected edge-crossing triangle to intersect")
	}

	disjoint := Triangle{V0: Vec3{10, 10, 10}, V1: Vec3{11, 10, 10}, V2: Vec3{10, 11, 10}}
	if TriangleIntersectsAABB(disjoint, box, 0) {
		t.Error("expected disjoint triangle to not intersect")
	}
}
