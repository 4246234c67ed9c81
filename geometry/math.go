package geometry

import (
	"math"
)

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// Vector3 is a point or a direction in a Y-up world. Planar computations only
// look at the X and Z components.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

var (
	Zero    = Vector3{}
	Up      = Vector3{0, 1, 0}
	Forward = Vector3{0, 0, 1}
	Right   = Vector3{1, 0, 0}
)

func NewVector3(x, y, z float64) Vector3 {
	return Vector3{x, y, z}
}

func (v1 Vector3) EqualWithEpsilon(v2 Vector3, epsilon float64) bool {
	return math.Abs(v1.X-v2.X) <= epsilon &&
		math.Abs(v1.Y-v2.Y) <= epsilon &&
		math.Abs(v1.Z-v2.Z) <= epsilon
}

func (v1 Vector3) Equal(v2 Vector3) bool {
	return v1.X == v2.X && v1.Y == v2.Y && v1.Z == v2.Z
}

func (v1 Vector3) Add(v2 Vector3) Vector3 {
	return Vector3{v1.X + v2.X, v1.Y + v2.Y, v1.Z + v2.Z}
}

func (v1 Vector3) Sub(v2 Vector3) Vector3 {
	return Vector3{v1.X - v2.X, v1.Y - v2.Y, v1.Z - v2.Z}
}

func (v Vector3) Mul(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vector3) Normalized() Vector3 {
	length := v.Length()
	if length == 0 {
		return v
	}
	return Vector3{v.X / length, v.Y / length, v.Z / length}
}

func (v1 Vector3) Dot(v2 Vector3) float64 {
	return v1.X*v2.X + v1.Y*v2.Y + v1.Z*v2.Z
}

// Flat drops the Y component.
func (v Vector3) Flat() Vector3 {
	return Vector3{v.X, 0, v.Z}
}

func Cross(a Vector3, b Vector3) Vector3 {
	return Vector3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

func Distance(a Vector3, b Vector3) float64 {
	return b.Sub(a).Length()
}

// Angle returns the unsigned angle in degrees between a and b. It is computed
// from atan2 rather than acos so that right and half-right angles come out
// exact.
func Angle(a Vector3, b Vector3) float64 {
	if a.Length() == 0 || b.Length() == 0 {
		return 0
	}
	return math.Atan2(Cross(a, b).Length(), a.Dot(b)) * 180 / math.Pi
}

// Heading returns the clockwise angle in degrees between the world forward
// axis (+Z) and v projected on the XZ plane.
func Heading(v Vector3) float64 {
	return math.Atan2(v.X, v.Z) * 180 / math.Pi
}

func Lerp(a Vector3, b Vector3, t float64) Vector3 {
	return a.Add(b.Sub(a).Mul(t))
}
