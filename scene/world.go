package scene

import (
	"math"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/visibility"
)

type worldObstacle struct {
	id     string
	layer  int
	shape  geometry.Shape
	bounds geometry.Bounds
}

// World is an immutable, indexed state of a scene. It answers the queries of
// the visibility engine and is safe for concurrent use.
type World struct {
	version         uint64
	obstacles       []worldObstacle
	targets         []Target
	maxTargetRadius float64
	bounds          geometry.Bounds
	obstacleGrid    SpatialPartition
	targetGrid      SpatialPartition
}

func NewWorld(doc Document) (*World, error) {
	return newWorld(doc, 0)
}

func newWorld(doc Document, version uint64) (*World, error) {
	w := &World{
		version:   version,
		obstacles: make([]worldObstacle, 0, len(doc.Obstacles)),
		targets:   make([]Target, len(doc.Targets)),
	}
	copy(w.targets, doc.Targets)

	var points []geometry.Vector3
	for _, o := range doc.Obstacles {
		shape, err := o.Shape()
		if err != nil {
			return nil, err
		}

		bounds := shape.Bounds()
		w.obstacles = append(w.obstacles, worldObstacle{
			id:     o.ID,
			layer:  o.Layer,
			shape:  shape,
			bounds: bounds,
		})
		points = append(points, bounds.Min, bounds.Max)
	}

	for _, t := range w.targets {
		b := targetBounds(t)
		w.maxTargetRadius = math.Max(w.maxTargetRadius, t.Radius)
		points = append(points, b.Min, b.Max)
	}

	w.bounds = geometry.NewBounds(points...)
	w.obstacleGrid = NewRegularGrid(w.bounds, doc.GridResolution)
	w.targetGrid = NewRegularGrid(w.bounds, doc.GridResolution)

	for i, o := range w.obstacles {
		w.obstacleGrid.Insert(i, o.bounds)
	}
	for i, t := range w.targets {
		w.targetGrid.Insert(i, targetBounds(t))
	}
	return w, nil
}

func targetBounds(t Target) geometry.Bounds {
	r := geometry.Vector3{X: t.Radius, Z: t.Radius}
	return geometry.NewBounds(t.Position.Sub(r), t.Position.Add(r))
}

// Version is incremented each time the owning scene changes.
func (w *World) Version() uint64 {
	return w.version
}

func (w *World) Bounds() geometry.Bounds {
	return w.bounds
}

func (w *World) ObstacleCount() int {
	return len(w.obstacles)
}

func (w *World) Targets() []Target {
	targets := make([]Target, len(w.targets))
	copy(targets, w.targets)
	return targets
}

// Raycast returns the nearest obstacle hit by the ray.
func (w *World) Raycast(origin, direction geometry.Vector3, maxDistance float64, mask visibility.LayerMask) (visibility.RaycastHit, bool) {
	if maxDistance <= 0 || direction.Length() == 0 || len(w.obstacles) == 0 {
		return visibility.RaycastHit{}, false
	}

	r := geometry.NewRay(origin, direction, maxDistance)
	best := math.Inf(1)
	bestIdx := -1

	w.obstacleGrid.Walk(r, func(items []int, tExit float64) bool {
		for _, i := range items {
			o := w.obstacles[i]
			if !mask.Contains(o.layer) {
				continue
			}

			if hit, t := o.shape.Intersect(r); hit && (t < best || (t == best && i < bestIdx)) {
				best = t
				bestIdx = i
			}
		}

		// Hits in the next cells are further away.
		return best > tExit
	})

	if bestIdx < 0 {
		return visibility.RaycastHit{}, false
	}
	return visibility.RaycastHit{
		Point:      r.PointAt(best),
		Distance:   best * maxDistance,
		ObstacleID: w.obstacles[bestIdx].id,
	}, true
}

// Overlap returns the targets touching the sphere, in document order.
func (w *World) Overlap(position geometry.Vector3, radius float64, mask visibility.LayerMask) []visibility.Target {
	if radius < 0 || len(w.targets) == 0 {
		return nil
	}

	reach := radius + w.maxTargetRadius
	min := geometry.Vector3{X: position.X - reach, Z: position.Z - reach}
	max := geometry.Vector3{X: position.X + reach, Z: position.Z + reach}

	var targets []visibility.Target
	for _, i := range w.targetGrid.GetRegion(min, max) {
		t := w.targets[i]
		if !mask.Contains(t.Layer) {
			continue
		}
		if geometry.Distance(position, t.Position) > radius+t.Radius {
			continue
		}

		targets = append(targets, visibility.Target{
			Handle:   visibility.TargetHandle(t.Handle),
			Position: t.Position,
		})
	}
	return targets
}

type DebugInfo struct {
	Version   uint64           `json:"version"`
	Obstacles SpatialDebugInfo `json:"obstacles"`
	Targets   SpatialDebugInfo `json:"targets"`
}

func (w *World) GetDebugInfo() DebugInfo {
	return DebugInfo{
		Version:   w.version,
		Obstacles: w.obstacleGrid.GetDebugInfo(),
		Targets:   w.targetGrid.GetDebugInfo(),
	}
}
