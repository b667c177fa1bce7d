package geom

import "math"

// AABB is an axis-aligned bounding box. The zero value is degenerate
// (min=max=origin); use EmptyAABB as the identity for Expand/Union chains.
type AABB struct {
	Min, Max Vec3
}

// EmptyAABB returns an AABB with min at +inf and max at -inf, the identity
// element for Union — unioning it with any AABB yields the other AABB
// unchanged.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// IsValid reports whether min <= max on every axis. A degenerate box
// (min == max) is valid; only min > max on some axis is invalid.
func (b AABB) IsValid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Extent returns max-min per axis.
func (b AABB) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns the box's midpoint.
func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// MaxExtent returns the largest of the three axis extents.
func (b AABB) MaxExtent() float64 {
	e := b.Extent()
	return math.Max(e.X, math.Max(e.Y, e.Z))
}

// Union returns the smallest AABB containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)}
}

// ExpandPoint grows b, if necessary, to contain p.
func (b AABB) ExpandPoint(p Vec3) AABB {
	return AABB{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Expand grows the box by a uniform margin on every side.
func (b AABB) Expand(margin float64) AABB {
	m := Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Intersects reports whether b and o overlap, inclusive of touching faces,
// within the given tolerance (tolerance is added to the effective overlap
// test on each axis).
func (b AABB) Intersects(o AABB, tolerance float64) bool {
	return b.Min.X-tolerance <= o.Max.X && b.Max.X+tolerance >= o.Min.X &&
		b.Min.Y-tolerance <= o.Max.Y && b.Max.Y+tolerance >= o.Min.Y &&
		b.Min.Z-tolerance <= o.Max.Z && b.Max.Z+tolerance >= o.Min.Z
}

// ContainsPoint reports whether p lies within b (inclusive), expanded by
// tolerance.
func (b AABB) ContainsPoint(p Vec3, tolerance float64) bool {
	return p.X >= b.Min.X-tolerance && p.X <= b.Max.X+tolerance &&
		p.Y >= b.Min.Y-tolerance && p.Y <= b.Max.Y+tolerance &&
		p.Z >= b.Min.Z-tolerance && p.Z <= b.Max.Z+tolerance
}

// Contains reports whether o is fully contained within b (inclusive).
func (b AABB) Contains(o AABB) bool {
	return o.Min.X >= b.Min.X && o.Max.X <= b.Max.X &&
		o.Min.Y >= b.Min.Y && o.Max.Y <= b.Max.Y &&
		o.Min.Z >= b.Min.Z && o.Max.Z <= b.Max.Z
}

// FromPoints computes the bounding box of a set of points. Returns an
// invalid (empty) AABB for zero points.
func FromPoints(pts []Vec3) AABB {
	box := EmptyAABB()
	for _, p := range pts {
		box = box.ExpandPoint(p)
	}
	return box
}

// BoxCorners returns the 12-float [center, half-axis-x, half-axis-y,
// half-axis-z] representation used by the 3D Tiles `boundingVolume.box`.
func (b AABB) BoxCorners() [12]float64 {
	c := b.Center()
	e := b.Extent().Scale(0.5)
	return [12]float64{
		c.X, c.Y, c.Z,
		e.X, 0, 0,
		0, e.Y, 0,
		0, 0, e.Z,
	}
}
