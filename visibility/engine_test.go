package visibility

import (
	"math"
	"testing"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/stretchr/testify/require"
)

type fakeObstacle struct {
	id    string
	layer int
	shape geometry.Shape
}

type fakeScene struct {
	obstacles []fakeObstacle
	targets   []Target
}

func (s *fakeScene) Raycast(origin, direction geometry.Vector3, maxDistance float64, mask LayerMask) (RaycastHit, bool) {
	if direction.Length() == 0 || maxDistance <= 0 {
		return RaycastHit{}, false
	}

	r := geometry.NewRay(origin, direction, maxDistance)
	best := math.Inf(1)
	var bestID string

	for _, o := range s.obstacles {
		if !mask.Contains(o.layer) {
			continue
		}
		if hit, t := o.shape.Intersect(r); hit && t < best {
			best = t
			bestID = o.id
		}
	}

	if math.IsInf(best, 1) {
		return RaycastHit{}, false
	}
	return RaycastHit{
		Point:      r.PointAt(best),
		Distance:   best * maxDistance,
		ObstacleID: bestID,
	}, true
}

func (s *fakeScene) Overlap(position geometry.Vector3, radius float64, mask LayerMask) []Target {
	var targets []Target
	for _, t := range s.targets {
		if geometry.Distance(position, t.Position) <= radius {
			targets = append(targets, t)
		}
	}
	return targets
}

// rayFunc answers raycasts with a function and has no targets.
type rayFunc func(origin, direction geometry.Vector3, maxDistance float64) (RaycastHit, bool)

func (f rayFunc) Raycast(origin, direction geometry.Vector3, maxDistance float64, mask LayerMask) (RaycastHit, bool) {
	return f(origin, direction, maxDistance)
}

func (f rayFunc) Overlap(position geometry.Vector3, radius float64, mask LayerMask) []Target {
	return nil
}

func testConfig() Config {
	return Config{
		ViewRadius:            10,
		ViewAngle:             90,
		MeshResolution:        1,
		EdgeResolveIterations: 20,
		EdgeDistanceThreshold: 0.5,
		TargetMask:            AllLayers,
		ObstacleMask:          AllLayers,
	}
}

// edgeAngle is the heading of the left end of the wall used in edge tests.
const edgeAngle = 10.3

func wallScene() *fakeScene {
	x := 5 * math.Tan(edgeAngle*math.Pi/180)

	return &fakeScene{
		obstacles: []fakeObstacle{
			{
				id: "wall",
				shape: geometry.Segment{
					A: geometry.Vector3{X: x, Z: 5},
					B: geometry.Vector3{X: 100, Z: 5},
				},
			},
		},
	}
}

func requireFan(t *testing.T, m Mesh) {
	require.NotEmpty(t, m.Vertices)
	require.Equal(t, geometry.Zero, m.Vertices[0])

	points := len(m.Vertices) - 1
	require.Len(t, m.Triangles, max(points-1, 0))
	for k, tri := range m.Triangles {
		require.Equal(t, Triangle{0, k + 1, k + 2}, tri)
	}
}

func TestViewCast(t *testing.T) {
	e := NewEngine(testConfig(), wallScene())
	o := Observer{}

	t.Run("hit", func(t *testing.T) {
		cast := e.ViewCast(o, 45)
		require.True(t, cast.Hit)
		require.Equal(t, float64(45), cast.Angle)
		require.InDelta(t, 5*math.Sqrt2, cast.Distance, 1e-9)
		require.InDelta(t, 5, cast.Point.Z, 1e-9)
	})

	t.Run("miss", func(t *testing.T) {
		cast := e.ViewCast(o, -45)
		require.False(t, cast.Hit)
		require.Equal(t, float64(10), cast.Distance)
		require.InDelta(t, 10, cast.Point.Length(), 1e-9)
	})

	t.Run("miss is relative to the observer position", func(t *testing.T) {
		cast := e.ViewCast(Observer{Position: geometry.Vector3{X: 1, Y: 2, Z: -20}}, 0)
		require.False(t, cast.Hit)
		require.True(t, geometry.Vector3{X: 1, Y: 2, Z: -10}.EqualWithEpsilon(cast.Point, 1e-9))
	})

	t.Run("nil query service", func(t *testing.T) {
		cast := NewEngine(testConfig(), nil).ViewCast(o, 45)
		require.False(t, cast.Hit)
	})
}

func TestSamples(t *testing.T) {
	t.Run("angles are evenly spread and increasing", func(t *testing.T) {
		e := NewEngine(testConfig(), nil)
		o := Observer{Heading: 30}

		var angles []float64
		for i, cast := range e.Samples(o) {
			require.Equal(t, len(angles), i)
			angles = append(angles, cast.Angle)
		}

		require.Len(t, angles, 90)
		require.Equal(t, float64(-15), angles[0])
		require.Equal(t, float64(74), angles[89])
		for i := 1; i < len(angles); i++ {
			require.Greater(t, angles[i], angles[i-1])
		}
	})

	t.Run("large headings are reduced to a single turn", func(t *testing.T) {
		e := NewEngine(testConfig(), nil)

		var angles []float64
		for _, cast := range e.Samples(Observer{Heading: 1e17}) {
			angles = append(angles, cast.Angle)
		}

		require.Len(t, angles, 90)
		require.Equal(t, float64(235), angles[0])
		for i := 1; i < len(angles); i++ {
			require.Greater(t, angles[i], angles[i-1])
		}

		require.Equal(t,
			e.ComputeVisibilityPolygon(Observer{Heading: 280}),
			e.ComputeVisibilityPolygon(Observer{Heading: 1e17}))
	})

	t.Run("samples are lazy", func(t *testing.T) {
		calls := 0
		e := NewEngine(testConfig(), rayFunc(func(origin, direction geometry.Vector3, maxDistance float64) (RaycastHit, bool) {
			calls++
			return RaycastHit{}, false
		}))

		for i := range e.Samples(Observer{}) {
			if i == 2 {
				break
			}
		}
		require.Equal(t, 3, calls)
	})

	t.Run("step count is clamped to one", func(t *testing.T) {
		c := testConfig()
		c.ViewAngle = 0

		count := 0
		for _, cast := range NewEngine(c, nil).Samples(Observer{Heading: 12}) {
			require.Equal(t, float64(12), cast.Angle)
			count++
		}
		require.Equal(t, 1, count)

		c = testConfig()
		c.MeshResolution = 0.001
		require.Equal(t, 1, c.stepCount())
	})

	t.Run("step count rounds half to even", func(t *testing.T) {
		c := testConfig()
		c.ViewAngle = 5
		c.MeshResolution = 0.5
		require.Equal(t, 2, c.stepCount())

		c.ViewAngle = 7
		require.Equal(t, 4, c.stepCount())
	})
}

func TestFindEdge(t *testing.T) {
	o := Observer{}

	t.Run("converges to the edge", func(t *testing.T) {
		e := NewEngine(testConfig(), wallScene())
		edge := e.FindEdge(o, e.ViewCast(o, 10), e.ViewCast(o, 11))

		require.NotNil(t, edge.PointA)
		require.NotNil(t, edge.PointB)
		require.InDelta(t, 1/math.Pow(2, 20), edge.MaxAngle-edge.MinAngle, 1e-12)

		tolerance := 90 / math.Pow(2, 20)
		require.InDelta(t, edgeAngle, edge.MinAngle, tolerance)
		require.InDelta(t, edgeAngle, edge.MaxAngle, tolerance)
	})

	t.Run("points stay unset when a side is never reached", func(t *testing.T) {
		c := testConfig()
		c.EdgeResolveIterations = 1

		e := NewEngine(c, wallScene())
		edge := e.FindEdge(o, e.ViewCast(o, 10), e.ViewCast(o, 11))
		require.Nil(t, edge.PointA)
		require.NotNil(t, edge.PointB)
	})

	t.Run("zero iterations", func(t *testing.T) {
		c := testConfig()
		c.EdgeResolveIterations = 0

		e := NewEngine(c, wallScene())
		edge := e.FindEdge(o, e.ViewCast(o, 10), e.ViewCast(o, 11))
		require.Nil(t, edge.PointA)
		require.Nil(t, edge.PointB)
	})
}

func TestComputeVisibilityPolygon(t *testing.T) {
	t.Run("no obstacle sector", func(t *testing.T) {
		e := NewEngine(testConfig(), &fakeScene{})
		m := e.ComputeVisibilityPolygon(Observer{
			Position: geometry.Vector3{X: 3, Y: 1, Z: -7},
			Heading:  123,
		})

		requireFan(t, m)
		require.Len(t, m.Vertices, 91)
		require.Empty(t, m.Edges)

		for _, v := range m.Vertices[1:] {
			require.InDelta(t, 10, v.Length(), 1e-9)
			require.InDelta(t, 0, geometry.Heading(v), 45+1e-9)
		}
		require.InDelta(t, -45, geometry.Heading(m.Vertices[1]), 1e-9)
		require.InDelta(t, 44, geometry.Heading(m.Vertices[90]), 1e-9)
	})

	t.Run("single edge convergence", func(t *testing.T) {
		e := NewEngine(testConfig(), wallScene())
		m := e.ComputeVisibilityPolygon(Observer{})

		requireFan(t, m)
		require.Len(t, m.Edges, 1)
		require.Len(t, m.Vertices, 93)

		tolerance := 90 / math.Pow(2, 20)
		edge := m.Edges[0]
		require.InDelta(t, edgeAngle, geometry.Heading(*edge.PointA), tolerance)
		require.InDelta(t, edgeAngle, geometry.Heading(*edge.PointB), tolerance)

		// samples at -45..10 come first, then the edge points.
		require.Equal(t, *edge.PointA, m.Vertices[57])
		require.Equal(t, *edge.PointB, m.Vertices[58])
		require.InDelta(t, 11, geometry.Heading(m.Vertices[59]), 1e-9)
	})

	t.Run("depth discontinuity", func(t *testing.T) {
		scene := &fakeScene{
			obstacles: []fakeObstacle{
				{shape: geometry.Segment{A: geometry.Vector3{X: -20, Z: 8}, B: geometry.Vector3{X: 20, Z: 8}}},
				{shape: geometry.Segment{A: geometry.Vector3{X: -20, Z: 3}, B: geometry.Vector3{X: 0, Z: 3}}},
			},
		}
		c := testConfig()
		c.ViewRadius = 20

		m := NewEngine(c, scene).ComputeVisibilityPolygon(Observer{})

		requireFan(t, m)
		require.Len(t, m.Edges, 1)
		require.InDelta(t, 0, m.Edges[0].MinAngle, 1e-5)
		require.InDelta(t, 0, m.Edges[0].MaxAngle, 1e-5)
	})

	t.Run("disabled edge refinement", func(t *testing.T) {
		c := testConfig()
		c.EdgeResolveIterations = 0

		m := NewEngine(c, wallScene()).ComputeVisibilityPolygon(Observer{})
		requireFan(t, m)
		require.Empty(t, m.Edges)
		require.Len(t, m.Vertices, 91)
	})

	t.Run("edge point at the observer is kept", func(t *testing.T) {
		c := testConfig()
		c.EdgeResolveIterations = 3

		// everything right of the heading is hit at the observer itself.
		e := NewEngine(c, rayFunc(func(origin, direction geometry.Vector3, maxDistance float64) (RaycastHit, bool) {
			if direction.X > 1e-12 {
				return RaycastHit{Point: origin}, true
			}
			return RaycastHit{}, false
		}))
		m := e.ComputeVisibilityPolygon(Observer{})

		requireFan(t, m)
		require.Len(t, m.Edges, 1)
		require.Nil(t, m.Edges[0].PointA)
		require.NotNil(t, m.Edges[0].PointB)
		require.Len(t, m.Vertices, 92)
		require.Equal(t, geometry.Zero, m.Vertices[47])
	})

	t.Run("single sample", func(t *testing.T) {
		c := testConfig()
		c.ViewAngle = 0

		m := NewEngine(c, nil).ComputeVisibilityPolygon(Observer{})
		requireFan(t, m)
		require.Len(t, m.Vertices, 2)
		require.Empty(t, m.Triangles)
	})

	t.Run("determinism", func(t *testing.T) {
		e := NewEngine(testConfig(), wallScene())
		o := Observer{Position: geometry.Vector3{X: 0.5, Z: -1}, Heading: 17}
		require.Equal(t, e.ComputeVisibilityPolygon(o), e.ComputeVisibilityPolygon(o))
	})

	t.Run("indices", func(t *testing.T) {
		m := Mesh{Triangles: []Triangle{{0, 1, 2}, {0, 2, 3}}}
		require.Equal(t, []int{0, 1, 2, 0, 2, 3}, m.Indices())
	})
}

func TestComputeVisibleTargets(t *testing.T) {
	t.Run("boundary is excluded", func(t *testing.T) {
		scene := &fakeScene{
			targets: []Target{
				{Handle: "on-boundary", Position: geometry.Vector3{X: 1, Z: 1}},
				{Handle: "inside", Position: geometry.Vector3{X: 1, Z: 1.01}},
				{Handle: "behind", Position: geometry.Vector3{Z: -2}},
				{Handle: "too-far", Position: geometry.Vector3{Z: 11}},
			},
		}

		visible := NewEngine(testConfig(), scene).ComputeVisibleTargets(Observer{})
		require.Equal(t, []TargetHandle{"inside"}, visible)
	})

	t.Run("occlusion", func(t *testing.T) {
		scene := wallScene()
		scene.targets = []Target{
			{Handle: "hidden", Position: geometry.Vector3{X: 2, Z: 8}},
			{Handle: "in-front", Position: geometry.Vector3{X: 2, Z: 4}},
			{Handle: "beside", Position: geometry.Vector3{X: -2, Z: 8}},
		}
		e := NewEngine(testConfig(), scene)

		require.Equal(t, []TargetHandle{"in-front", "beside"}, e.ComputeVisibleTargets(Observer{}))

		scene.obstacles = nil
		require.Equal(t, []TargetHandle{"hidden", "in-front", "beside"}, e.ComputeVisibleTargets(Observer{}))
	})

	t.Run("obstacle mask", func(t *testing.T) {
		scene := wallScene()
		scene.obstacles[0].layer = 3
		scene.targets = []Target{{Handle: "hidden", Position: geometry.Vector3{X: 2, Z: 8}}}

		c := testConfig()
		c.ObstacleMask = LayerMaskOf(0, 1)
		require.Equal(t, []TargetHandle{"hidden"}, NewEngine(c, scene).ComputeVisibleTargets(Observer{}))

		c.ObstacleMask = LayerMaskOf(3)
		require.Empty(t, NewEngine(c, scene).ComputeVisibleTargets(Observer{}))
	})

	t.Run("heading", func(t *testing.T) {
		scene := &fakeScene{
			targets: []Target{{Handle: "east", Position: geometry.Vector3{X: 5}}},
		}
		e := NewEngine(testConfig(), scene)

		require.Empty(t, e.ComputeVisibleTargets(Observer{}))
		require.Equal(t, []TargetHandle{"east"}, e.ComputeVisibleTargets(Observer{Heading: 90}))
	})

	t.Run("nil query service", func(t *testing.T) {
		require.Empty(t, NewEngine(testConfig(), nil).ComputeVisibleTargets(Observer{}))
	})
}
