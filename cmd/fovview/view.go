package main

import (
	"math"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
)

const (
	minScale = 0.5
	maxScale = 16

	// Terminal cells are about twice as tall as wide.
	cellAspect = 2
)

// viewport maps terminal cells to the XZ plane. +Z is up on screen and the
// observer stays at the center.
type viewport struct {
	width  int
	height int

	// Cells per meter along X.
	scale  float64
	center geometry.Vector3
}

func (v viewport) toWorld(col, row int) geometry.Vector3 {
	return geometry.Vector3{
		X: v.center.X + (float64(col)-float64(v.width)/2)/v.scale,
		Z: v.center.Z + (float64(v.height)/2-float64(row))*cellAspect/v.scale,
	}
}

func (v viewport) toScreen(p geometry.Vector3) (col, row int, ok bool) {
	col = int(math.Floor((p.X-v.center.X)*v.scale + float64(v.width)/2))
	row = int(math.Floor(float64(v.height)/2 - (p.Z-v.center.Z)*v.scale/cellAspect))
	ok = col >= 0 && col < v.width && row >= 0 && row < v.height
	return col, row, ok
}

func (v viewport) zoom(factor float64) viewport {
	v.scale = math.Min(math.Max(v.scale*factor, minScale), maxScale)
	return v
}

// insideFan reports whether p is in the area swept by the view casts of the
// mesh.
func insideFan(o visibility.Observer, c visibility.Config, mesh visibility.Mesh, p geometry.Vector3) bool {
	n := len(mesh.ViewCasts)
	if n == 0 {
		return false
	}

	toPoint := p.Sub(o.Position).Flat()
	distance := toPoint.Length()
	if distance == 0 {
		return true
	}

	relative := normalizeAngle(geometry.Heading(toPoint) - o.Heading)
	if math.Abs(relative) > c.ViewAngle/2 {
		return false
	}

	step := c.ViewAngle / float64(n)
	i := 0
	if step > 0 {
		i = int(math.Round((relative + c.ViewAngle/2) / step))
	}
	i = min(max(i, 0), n-1)
	return distance <= mesh.ViewCasts[i].Distance
}

// normalizeAngle brings an angle in degrees into [-180, 180).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+180, 360)
	if a < 0 {
		a += 360
	}
	return a - 180
}

// obstacleCells returns the cells covered by an obstacle.
func obstacleCells(v viewport, o scene.Obstacle) [][2]int {
	shape, err := o.Shape()
	if err != nil {
		return nil
	}

	var cells [][2]int
	add := func(p geometry.Vector3) {
		if col, row, ok := v.toScreen(p); ok {
			cells = append(cells, [2]int{col, row})
		}
	}

	switch s := shape.(type) {
	case geometry.Segment:
		length := geometry.Distance(s.A.Flat(), s.B.Flat())
		steps := max(int(math.Ceil(length*v.scale*2)), 1)
		for k := 0; k <= steps; k++ {
			add(geometry.Lerp(s.A, s.B, float64(k)/float64(steps)))
		}

	default:
		b := shape.Bounds()
		minCol, maxRow, _ := v.toScreen(b.Min)
		maxCol, minRow, _ := v.toScreen(b.Max)
		for row := max(minRow, 0); row <= min(maxRow, v.height-1); row++ {
			for col := max(minCol, 0); col <= min(maxCol, v.width-1); col++ {
				p := v.toWorld(col, row)
				if c, ok := s.(geometry.Circle); ok && geometry.Distance(p, c.Center.Flat()) > c.Radius {
					continue
				}
				cells = append(cells, [2]int{col, row})
			}
		}
	}
	return cells
}
