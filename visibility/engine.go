package visibility

import (
	"iter"
	"math"
	"time"

	"github.com/aukilabs/fieldofview/geometry"
)

// ViewCast is the result of a single probe along a global angle.
type ViewCast struct {
	Hit      bool             `json:"hit"`
	Point    geometry.Vector3 `json:"point"`
	Distance float64          `json:"distance"`
	Angle    float64          `json:"angle"`
}

// EdgeInfo holds the points found on both sides of a silhouette edge. A nil
// point means the bisection never landed on that side.
type EdgeInfo struct {
	PointA *geometry.Vector3 `json:"point_a,omitempty"`
	PointB *geometry.Vector3 `json:"point_b,omitempty"`

	// The angle interval the edge was narrowed down to.
	MinAngle float64 `json:"min_angle"`
	MaxAngle float64 `json:"max_angle"`
}

type Triangle [3]int

// Mesh is a triangle fan in observer local space. Vertex 0 is the observer.
type Mesh struct {
	Vertices  []geometry.Vector3 `json:"vertices"`
	Triangles []Triangle         `json:"triangles"`

	ViewCasts []ViewCast `json:"view_casts,omitempty"`
	Edges     []EdgeInfo `json:"edges,omitempty"`
}

// Indices returns the triangles as a flat index list.
func (m Mesh) Indices() []int {
	indices := make([]int, 0, len(m.Triangles)*3)
	for _, t := range m.Triangles {
		indices = append(indices, t[0], t[1], t[2])
	}
	return indices
}

// Engine computes fields of view against a query service. A nil Query
// behaves as an empty scene. Engines hold no state between evaluations and
// are safe for concurrent use.
type Engine struct {
	Config Config
	Query  QueryService
}

func NewEngine(c Config, q QueryService) *Engine {
	return &Engine{
		Config: c,
		Query:  q,
	}
}

// ViewCast probes the scene from the observer along a global angle.
func (e *Engine) ViewCast(o Observer, angle float64) ViewCast {
	return e.viewCast(e.Config.normalized(), o, angle)
}

func (e *Engine) viewCast(c Config, o Observer, angle float64) ViewCast {
	direction := GlobalDirection(angle)

	if e.Query != nil {
		if hit, ok := e.Query.Raycast(o.Position, direction, c.ViewRadius, c.ObstacleMask); ok && hit.Distance <= c.ViewRadius {
			return ViewCast{
				Hit:      true,
				Point:    hit.Point,
				Distance: hit.Distance,
				Angle:    angle,
			}
		}
	}

	return ViewCast{
		Hit:      false,
		Point:    o.Position.Add(direction.Mul(c.ViewRadius)),
		Distance: c.ViewRadius,
		Angle:    angle,
	}
}

// Samples returns the view casts that split the view angle in equal steps,
// ordered by increasing angle. Casts are performed lazily.
func (e *Engine) Samples(o Observer) iter.Seq2[int, ViewCast] {
	return e.samples(e.Config.normalized(), o)
}

func (e *Engine) samples(c Config, o Observer) iter.Seq2[int, ViewCast] {
	return func(yield func(int, ViewCast) bool) {
		stepCount := c.stepCount()
		stepAngleSize := c.stepAngleSize()
		start := o.normalized().Heading - c.ViewAngle/2

		for i := 0; i < stepCount; i++ {
			if !yield(i, e.viewCast(c, o, start+stepAngleSize*float64(i))) {
				return
			}
		}
	}
}

// FindEdge bisects the angle interval between two view casts for a fixed
// number of iterations.
func (e *Engine) FindEdge(o Observer, min, max ViewCast) EdgeInfo {
	return e.findEdge(e.Config.normalized(), o, min, max)
}

func (e *Engine) findEdge(c Config, o Observer, min, max ViewCast) EdgeInfo {
	edge := EdgeInfo{
		MinAngle: min.Angle,
		MaxAngle: max.Angle,
	}

	for i := 0; i < c.EdgeResolveIterations; i++ {
		angle := (edge.MinAngle + edge.MaxAngle) / 2
		cast := e.viewCast(c, o, angle)
		point := cast.Point

		if cast.Hit == min.Hit && !exceedsThreshold(c, min, cast) {
			edge.MinAngle = angle
			edge.PointA = &point
		} else {
			edge.MaxAngle = angle
			edge.PointB = &point
		}
	}
	return edge
}

func isEdge(c Config, prev, curr ViewCast) bool {
	if prev.Hit != curr.Hit {
		return true
	}
	return prev.Hit && curr.Hit && exceedsThreshold(c, prev, curr)
}

func exceedsThreshold(c Config, a, b ViewCast) bool {
	return math.Abs(a.Distance-b.Distance) > c.EdgeDistanceThreshold
}

// ComputeVisibilityPolygon builds the visibility fan of the observer.
func (e *Engine) ComputeVisibilityPolygon(o Observer) Mesh {
	start := time.Now()
	c := e.Config.normalized()
	o = o.normalized()

	var mesh Mesh
	points := make([]geometry.Vector3, 0, c.stepCount())

	var prev ViewCast
	for i, cast := range e.samples(c, o) {
		if i > 0 && c.EdgeResolveIterations > 0 && isEdge(c, prev, cast) {
			edge := e.findEdge(c, o, prev, cast)
			mesh.Edges = append(mesh.Edges, edge)

			if edge.PointA != nil {
				points = append(points, *edge.PointA)
			}
			if edge.PointB != nil {
				points = append(points, *edge.PointB)
			}
		}

		points = append(points, cast.Point)
		mesh.ViewCasts = append(mesh.ViewCasts, cast)
		prev = cast
	}

	mesh.Vertices = make([]geometry.Vector3, len(points)+1)
	for k, p := range points {
		mesh.Vertices[k+1] = o.InverseTransformPoint(p)
	}

	mesh.Triangles = make([]Triangle, 0, max(len(points)-1, 0))
	for k := 0; k < len(points)-1; k++ {
		mesh.Triangles = append(mesh.Triangles, Triangle{0, k + 1, k + 2})
	}

	instrumentPolygon(len(mesh.ViewCasts), len(mesh.Edges), len(mesh.Vertices), time.Since(start))
	return mesh
}

// ComputeVisibleTargets returns the targets in the view cone that no obstacle
// hides, in the order the query service reported them.
func (e *Engine) ComputeVisibleTargets(o Observer) []TargetHandle {
	if e.Query == nil {
		return nil
	}

	start := time.Now()
	c := e.Config.normalized()
	forward := o.normalized().Forward()
	candidates := e.Query.Overlap(o.Position, c.ViewRadius, c.TargetMask)

	visible := make([]TargetHandle, 0, len(candidates))
	for _, t := range candidates {
		toTarget := t.Position.Sub(o.Position)
		direction := toTarget.Normalized()

		if geometry.Angle(forward, direction) >= c.ViewAngle/2 {
			continue
		}

		if _, hit := e.Query.Raycast(o.Position, direction, toTarget.Length(), c.ObstacleMask); hit {
			continue
		}
		visible = append(visible, t.Handle)
	}

	instrumentTargetScan(len(candidates), len(visible), time.Since(start))
	return visible
}
