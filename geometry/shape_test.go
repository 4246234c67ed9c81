package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntersectSegment(t *testing.T) {
	wall := Segment{A: Vector3{-1, 0, 5}, B: Vector3{1, 0, 5}}

	t.Run("hit", func(t *testing.T) {
		hit, d := IntersectSegment(Ray{From: Zero, To: Vector3{0, 0, 10}}, wall)
		require.True(t, hit)
		require.InDelta(t, 0.5, d, 1e-12)
	})

	t.Run("hit on endpoint", func(t *testing.T) {
		hit, _ := IntersectSegment(Ray{From: Zero, To: Vector3{2, 0, 10}}, wall)
		require.True(t, hit)
	})

	t.Run("too short", func(t *testing.T) {
		hit, d := IntersectSegment(Ray{From: Zero, To: Vector3{0, 0, 4}}, wall)
		require.False(t, hit)
		require.Equal(t, float64(-1), d)
	})

	t.Run("miss beside", func(t *testing.T) {
		hit, _ := IntersectSegment(Ray{From: Zero, To: Vector3{5, 0, 10}}, wall)
		require.False(t, hit)
	})

	t.Run("parallel", func(t *testing.T) {
		hit, _ := IntersectSegment(Ray{From: Vector3{-5, 0, 5}, To: Vector3{5, 0, 5}}, wall)
		require.False(t, hit)
	})

	t.Run("height is ignored", func(t *testing.T) {
		hit, _ := IntersectSegment(Ray{From: Vector3{0, 3, 0}, To: Vector3{0, -7, 10}}, wall)
		require.True(t, hit)
	})
}

func TestIntersectBox(t *testing.T) {
	box := Box{Center: Vector3{0, 0, 5}, Extents: Vector3{1, 0, 1}}

	hit, d := IntersectBox(Ray{From: Zero, To: Vector3{0, 0, 10}}, box)
	require.True(t, hit)
	require.InDelta(t, 0.4, d, 1e-12)

	hit, _ = IntersectBox(Ray{From: Zero, To: Vector3{10, 0, 0}}, box)
	require.False(t, hit)

	hit, d = IntersectBox(Ray{From: Vector3{0, 0, 5}, To: Vector3{0, 0, 10}}, box)
	require.True(t, hit)
	require.Equal(t, float64(0), d)

	require.Equal(t, Bounds{Min: Vector3{-1, 0, 4}, Max: Vector3{1, 0, 6}}, box.Bounds())
}

func TestIntersectCircle(t *testing.T) {
	pillar := Circle{Center: Vector3{0, 0, 5}, Radius: 1}

	hit, d := IntersectCircle(Ray{From: Zero, To: Vector3{0, 0, 10}}, pillar)
	require.True(t, hit)
	require.InDelta(t, 0.4, d, 1e-12)

	hit, _ = IntersectCircle(Ray{From: Zero, To: Vector3{0, 0, 3}}, pillar)
	require.False(t, hit)

	hit, _ = IntersectCircle(Ray{From: Zero, To: Vector3{10, 0, 0}}, pillar)
	require.False(t, hit)

	hit, d = IntersectCircle(Ray{From: Vector3{0, 0, 5}, To: Vector3{10, 0, 5}}, pillar)
	require.True(t, hit)
	require.Equal(t, float64(0), d)
}

func TestBounds(t *testing.T) {
	b := NewBounds(Vector3{1, 5, 2}, Vector3{-1, 0, 4})
	require.Equal(t, Vector3{-1, 0, 2}, b.Min)
	require.Equal(t, Vector3{1, 0, 4}, b.Max)
	require.True(t, b.Contains(Vector3{0, 100, 3}))
	require.False(t, b.Contains(Vector3{2, 0, 3}))

	require.True(t, b.Overlaps(Bounds{Min: Vector3{1, 0, 4}, Max: Vector3{2, 0, 5}}))
	require.False(t, b.Overlaps(Bounds{Min: Vector3{1.5, 0, 4}, Max: Vector3{2, 0, 5}}))

	u := b.Union(Bounds{Min: Vector3{5, 0, 5}, Max: Vector3{6, 0, 6}})
	require.Equal(t, Vector3{6, 0, 6}, u.Max)

	require.Equal(t, Bounds{}, NewBounds())
}

func TestNewRay(t *testing.T) {
	r := NewRay(Vector3{1, 0, 1}, Vector3{0, 0, 2}, 5)
	require.True(t, Vector3{1, 0, 6}.EqualWithEpsilon(r.To, 1e-12))
	require.True(t, Vector3{1, 0, 3.5}.EqualWithEpsilon(r.PointAt(0.5), 1e-12))
}
