package geom

import "math"

// SegmentIntersectsAABB tests a line segment p0→p1 against box using the
// Liang–Barsky slab method, expanded by tolerance on every face. This is the
// edge test used by the tile-triangle query (§4.3 step 3): each triangle
// edge is clipped against the six slab planes in turn, tracking the
// entering/leaving parametric interval [tEnter, tExit] along the segment.
func SegmentIntersectsAABB(p0, p1 Vec3, box AABB, tolerance float64) bool {
	d := p1.Sub(p0)
	tEnter, tExit := 0.0, 1.0

	lo := box.Min.Sub(Vec3{tolerance, tolerance, tolerance})
	hi := box.Max.Add(Vec3{tolerance, tolerance, tolerance})

	for axis := 0; axis < 3; axis++ {
		origin := p0.Component(axis)
		dir := d.Component(axis)
		min := lo.Component(axis)
		max := hi.Component(axis)

		if math.Abs(dir) < 1e-12 {
			// Segment is parallel to this slab; it must already lie within it.
			if origin < min || origin > max {
				return false
			}
			continue
		}

		t1 := (min - origin) / dir
		t2 := (max - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tEnter {
			tEnter = t1
		}
		if t2 < tExit {
			tExit = t2
		}
		if tEnter > tExit {
			return false
		}
	}

	return true
}

// TriangleIntersectsAABB implements the precise triangle-vs-tile test from
// spec.md §4.3 step 3: a vertex-inside test, then the three edges via the
// slab method, then a centroid fallback. The first positive test wins.
func TriangleIntersectsAABB(t Triangle, box AABB, tolerance float64) bool {
	expanded := box.Expand(tolerance)

	if expanded.ContainsPoint(t.V0, 0) || expanded.ContainsPoint(t.V1, 0) || expanded.ContainsPoint(t.V2, 0) {
		return true
	}

	for _, e := range t.Edges() {
		if SegmentIntersectsAABB(e[0], e[1], box, tolerance) {
			return true
		}
	}

	if expanded.ContainsPoint(t.Centroid(), 0) {
		return true
	}

	return false
}
