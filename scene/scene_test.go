package scene

import (
	"sync"
	"testing"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNewScene(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := NewScene("room", testDocument())
		require.NoError(t, err)
		require.Equal(t, "room", s.ID)
		require.Equal(t, uint64(1), s.Version())
		require.Equal(t, testDocument(), s.Document())
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := NewScene("not a valid id", testDocument())
		require.Error(t, err)
	})

	t.Run("invalid document", func(t *testing.T) {
		doc := testDocument()
		doc.Obstacles = append(doc.Obstacles, Obstacle{ID: "wall", Kind: Circle, Center: vec(0, 0), Radius: 1})

		_, err := NewScene("room", doc)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidSceneDocument))
	})
}

func TestSceneMutations(t *testing.T) {
	s, err := NewScene("room", testDocument())
	require.NoError(t, err)

	t.Run("add obstacle", func(t *testing.T) {
		before := s.Snapshot()

		err := s.AddObstacle(Obstacle{ID: "door", Kind: Segment, A: vec(-1, 2), B: vec(1, 2)})
		require.NoError(t, err)
		require.Equal(t, uint64(2), s.Version())
		require.Equal(t, 5, s.Snapshot().ObstacleCount())

		// snapshots taken before a mutation are untouched.
		require.Equal(t, 4, before.ObstacleCount())
		require.Equal(t, uint64(1), before.Version())
	})

	t.Run("replace obstacle", func(t *testing.T) {
		err := s.AddObstacle(Obstacle{ID: "door", Kind: Segment, A: vec(-1, 1), B: vec(1, 1)})
		require.NoError(t, err)
		require.Equal(t, 5, s.Snapshot().ObstacleCount())

		hit, ok := s.Snapshot().Raycast(geometry.Zero, geometry.Forward, 20, visibility.AllLayers)
		require.True(t, ok)
		require.Equal(t, "door", hit.ObstacleID)
		require.InDelta(t, 1, hit.Distance, 1e-12)
	})

	t.Run("invalid obstacle", func(t *testing.T) {
		version := s.Version()

		err := s.AddObstacle(Obstacle{ID: "broken", Kind: Circle, Center: vec(0, 0)})
		require.Error(t, err)
		require.Equal(t, version, s.Version())
	})

	t.Run("remove obstacle", func(t *testing.T) {
		require.True(t, s.RemoveObstacle("door"))
		require.False(t, s.RemoveObstacle("door"))
		require.Equal(t, 4, s.Snapshot().ObstacleCount())
	})

	t.Run("targets", func(t *testing.T) {
		require.NoError(t, s.SetTarget(Target{Handle: "d", Position: geometry.Vector3{X: 1, Z: 1}}))
		require.Len(t, s.Snapshot().Targets(), 4)

		require.NoError(t, s.SetTarget(Target{Handle: "d", Position: geometry.Vector3{X: 2, Z: 1}}))
		require.Len(t, s.Snapshot().Targets(), 4)
		require.Equal(t, float64(2), s.Document().Targets[3].Position.X)

		require.True(t, s.RemoveTarget("d"))
		require.False(t, s.RemoveTarget("d"))
		require.Len(t, s.Snapshot().Targets(), 3)
	})

	t.Run("document copies are detached", func(t *testing.T) {
		doc := s.Document()
		doc.Obstacles[0].ID = "changed"
		require.Equal(t, "wall", s.Document().Obstacles[0].ID)
	})
}

func TestSceneOcclusion(t *testing.T) {
	s, err := NewScene("room", testDocument())
	require.NoError(t, err)

	compute := func() []visibility.TargetHandle {
		return visibility.NewEngine(visibility.DefaultConfig(), s.Snapshot()).
			ComputeVisibleTargets(visibility.Observer{})
	}

	require.Equal(t, []visibility.TargetHandle{"b"}, compute())

	require.True(t, s.RemoveObstacle("wall"))
	require.Equal(t, []visibility.TargetHandle{"a", "b"}, compute())
}

func TestSceneConcurrentReads(t *testing.T) {
	s, err := NewScene("room", testDocument())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				e := visibility.NewEngine(visibility.DefaultConfig(), s.Snapshot())
				m := e.ComputeVisibilityPolygon(visibility.Observer{Heading: float64(j)})
				require.Len(t, m.Triangles, len(m.Vertices)-2)
			}
		}()
	}

	for j := 0; j < 50; j++ {
		require.NoError(t, s.SetTarget(Target{Handle: "moving", Position: geometry.Vector3{X: float64(j % 5), Z: 2}}))
	}
	wg.Wait()
}
