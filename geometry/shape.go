package geometry

import (
	"math"
)

const intersectEpsilon = 1e-9

// Ray is a bounded ray going From a point To another one. Intersection results
// are expressed as a parametric t in [0, 1] along it.
type Ray struct {
	From Vector3
	To   Vector3
}

func NewRay(origin Vector3, direction Vector3, length float64) Ray {
	return Ray{
		From: origin,
		To:   origin.Add(direction.Normalized().Mul(length)),
	}
}

func (r Ray) Direction() Vector3 {
	return r.To.Sub(r.From)
}

func (r Ray) PointAt(t float64) Vector3 {
	return Lerp(r.From, r.To, t)
}

// Bounds is an axis aligned rectangle on the XZ plane.
type Bounds struct {
	Min Vector3
	Max Vector3
}

func NewBounds(points ...Vector3) Bounds {
	if len(points) == 0 {
		return Bounds{}
	}

	b := Bounds{Min: points[0].Flat(), Max: points[0].Flat()}
	for _, p := range points[1:] {
		b = b.Encapsulate(p)
	}
	return b
}

func (b Bounds) Encapsulate(p Vector3) Bounds {
	return Bounds{
		Min: Vector3{math.Min(b.Min.X, p.X), 0, math.Min(b.Min.Z, p.Z)},
		Max: Vector3{math.Max(b.Max.X, p.X), 0, math.Max(b.Max.Z, p.Z)},
	}
}

func (b Bounds) Union(o Bounds) Bounds {
	return b.Encapsulate(o.Min).Encapsulate(o.Max)
}

func (b Bounds) Contains(p Vector3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b Bounds) Overlaps(o Bounds) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Shape is a planar obstacle footprint that rays can hit.
type Shape interface {
	Intersect(r Ray) (bool, float64)
	Bounds() Bounds
}

// Segment is a wall between A and B. Height is ignored.
type Segment struct {
	A Vector3
	B Vector3
}

func (s Segment) Bounds() Bounds {
	return NewBounds(s.A, s.B)
}

func (s Segment) Intersect(r Ray) (bool, float64) {
	return IntersectSegment(r, s)
}

// Box is an axis aligned block on the XZ plane.
type Box struct {
	Center  Vector3
	Extents Vector3 // Half-Extents!
}

func (b Box) Bounds() Bounds {
	return Bounds{
		Min: Vector3{b.Center.X - math.Abs(b.Extents.X), 0, b.Center.Z - math.Abs(b.Extents.Z)},
		Max: Vector3{b.Center.X + math.Abs(b.Extents.X), 0, b.Center.Z + math.Abs(b.Extents.Z)},
	}
}

func (b Box) Intersect(r Ray) (bool, float64) {
	return IntersectBox(r, b)
}

// Circle is a round pillar on the XZ plane.
type Circle struct {
	Center Vector3
	Radius float64
}

func (c Circle) Bounds() Bounds {
	return Bounds{
		Min: Vector3{c.Center.X - c.Radius, 0, c.Center.Z - c.Radius},
		Max: Vector3{c.Center.X + c.Radius, 0, c.Center.Z + c.Radius},
	}
}

func (c Circle) Intersect(r Ray) (bool, float64) {
	return IntersectCircle(r, c)
}

// IntersectSegment solves origin + t*dir = A + u*(B-A) on the XZ plane.
func IntersectSegment(r Ray, s Segment) (bool, float64) {
	dx := r.To.X - r.From.X
	dz := r.To.Z - r.From.Z
	sx := s.B.X - s.A.X
	sz := s.B.Z - s.A.Z

	denominator := dx*sz - dz*sx
	if math.Abs(denominator) < intersectEpsilon {
		// parallel or degenerate
		return false, -1
	}

	ox := s.A.X - r.From.X
	oz := s.A.Z - r.From.Z

	t := (ox*sz - oz*sx) / denominator
	u := (ox*dz - oz*dx) / denominator

	if t >= 0 && t <= 1 && InRangeWithEpsilon(u, 0, 1, intersectEpsilon) {
		return true, t
	}
	return false, -1
}

// IntersectBox is a slab test. A ray starting inside the box hits it at t=0.
func IntersectBox(r Ray, b Box) (bool, float64) {
	bounds := b.Bounds()
	dir := r.Direction()

	tMin := 0.0
	tMax := 1.0

	slab := func(origin, d, min, max float64) bool {
		if math.Abs(d) < intersectEpsilon {
			return origin >= min && origin <= max
		}
		t1 := (min - origin) / d
		t2 := (max - origin) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		return tMin <= tMax
	}

	if !slab(r.From.X, dir.X, bounds.Min.X, bounds.Max.X) {
		return false, -1
	}
	if !slab(r.From.Z, dir.Z, bounds.Min.Z, bounds.Max.Z) {
		return false, -1
	}
	return true, tMin
}

// IntersectCircle returns the first crossing of the circle boundary. A ray
// starting inside the circle hits it at t=0.
func IntersectCircle(r Ray, c Circle) (bool, float64) {
	dx := r.To.X - r.From.X
	dz := r.To.Z - r.From.Z
	fx := r.From.X - c.Center.X
	fz := r.From.Z - c.Center.Z

	a := dx*dx + dz*dz
	cc := fx*fx + fz*fz - c.Radius*c.Radius
	if cc <= 0 {
		return true, 0
	}
	if a < intersectEpsilon {
		return false, -1
	}

	b := 2 * (fx*dx + fz*dz)
	discriminant := b*b - 4*a*cc
	if discriminant < 0 {
		return false, -1
	}

	t := (-b - math.Sqrt(discriminant)) / (2 * a)
	if t >= 0 && t <= 1 {
		return true, t
	}
	return false, -1
}
