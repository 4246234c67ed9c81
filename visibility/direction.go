package visibility

import (
	"math"

	"github.com/aukilabs/fieldofview/geometry"
)

// GlobalDirection returns the unit direction of a heading in degrees. 0 points
// along +Z and angles grow clockwise when seen from above.
func GlobalDirection(angle float64) geometry.Vector3 {
	rad := angle * math.Pi / 180
	return geometry.Vector3{
		X: math.Sin(rad),
		Z: math.Cos(rad),
	}
}

// RelativeDirection returns the direction of an angle measured from the given
// heading.
func RelativeDirection(angle float64, heading float64) geometry.Vector3 {
	return GlobalDirection(angle + heading)
}

// Observer is a snapshot of the viewer transform, taken once per evaluation.
type Observer struct {
	Position geometry.Vector3 `json:"position"`

	// Yaw in degrees.
	Heading float64 `json:"heading"`
}

// MaxCoordinate bounds the observer values accepted from clients.
const MaxCoordinate = 1e9

// Valid reports whether the observer position and heading are finite numbers
// within MaxCoordinate.
func (o Observer) Valid() bool {
	for _, v := range []float64{o.Position.X, o.Position.Y, o.Position.Z, o.Heading} {
		if math.IsNaN(v) || math.Abs(v) > MaxCoordinate {
			return false
		}
	}
	return true
}

// normalized reduces the heading to (-360, 360) so that sample angles keep
// their precision.
func (o Observer) normalized() Observer {
	o.Heading = math.Mod(o.Heading, 360)
	return o
}

func (o Observer) Forward() geometry.Vector3 {
	return GlobalDirection(o.Heading)
}

func (o Observer) Direction(angle float64) geometry.Vector3 {
	return RelativeDirection(angle, o.Heading)
}

// InverseTransformPoint converts a world position into the observer local
// space, where the observer sits at the origin looking along +Z.
func (o Observer) InverseTransformPoint(p geometry.Vector3) geometry.Vector3 {
	d := p.Sub(o.Position)
	rad := o.Heading * math.Pi / 180
	sin, cos := math.Sincos(rad)

	return geometry.Vector3{
		X: d.X*cos - d.Z*sin,
		Y: d.Y,
		Z: d.X*sin + d.Z*cos,
	}
}

// TransformPoint is the inverse of InverseTransformPoint.
func (o Observer) TransformPoint(p geometry.Vector3) geometry.Vector3 {
	rad := o.Heading * math.Pi / 180
	sin, cos := math.Sincos(rad)

	return geometry.Vector3{
		X: o.Position.X + p.X*cos + p.Z*sin,
		Y: o.Position.Y + p.Y,
		Z: o.Position.Z - p.X*sin + p.Z*cos,
	}
}
