package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualWithEpsilon(t *testing.T) {
	require.True(t, EqualWithEpsilon(0.1, 0.2, 0.11))
	require.False(t, EqualWithEpsilon(0.1, 0.3, 0.11))
}

func TestDot(t *testing.T) {
	require.Equal(t, float64(0), Right.Dot(Up))
	require.Equal(t, float64(1), Forward.Dot(Forward))
}

func TestCross(t *testing.T) {
	require.True(t, Forward.Equal(Cross(Right, Up)))
}

func TestVectorClass(t *testing.T) {
	zeroVector := Vector3{0, 0, 0}
	oneVector := Vector3{1, 1, 1}

	require.True(t, zeroVector.Equal(Zero))
	require.True(t, oneVector.EqualWithEpsilon(Vector3{0.9, 1.1, 1}, 0.11))

	require.True(t, oneVector.Equal(zeroVector.Add(oneVector)))
	require.True(t, oneVector.Equal(oneVector.Sub(zeroVector)))
	require.True(t, zeroVector.Equal(oneVector.Mul(0)))

	require.Equal(t, float64(1), Right.Length())
	require.InDelta(t, 1, oneVector.Normalized().Length(), 1e-12)
	require.True(t, zeroVector.Normalized().Equal(zeroVector))

	require.Equal(t, float64(5), Distance(Vector3{0, 0, 0}, Vector3{3, 0, 4}))
	require.True(t, Vector3{1, 0, 3}.Equal(Vector3{1, 2, 3}.Flat()))
}

func TestAngle(t *testing.T) {
	t.Run("right angle is exact", func(t *testing.T) {
		require.Equal(t, float64(90), Angle(Forward, Right))
	})

	t.Run("half right angle is exact", func(t *testing.T) {
		require.Equal(t, float64(45), Angle(Forward, Vector3{1, 0, 1}))
		require.Equal(t, float64(45), Angle(Forward, Vector3{-3, 0, 3}))
	})

	t.Run("angle is unsigned", func(t *testing.T) {
		require.InDelta(t, 30, Angle(Forward, Vector3{-math.Sin(math.Pi / 6), 0, math.Cos(math.Pi / 6)}), 1e-9)
	})

	t.Run("zero vector", func(t *testing.T) {
		require.Equal(t, float64(0), Angle(Zero, Forward))
	})
}

func TestHeading(t *testing.T) {
	require.Equal(t, float64(0), Heading(Forward))
	require.Equal(t, float64(90), Heading(Right))
	require.Equal(t, float64(-90), Heading(Vector3{-1, 0, 0}))
}

func TestLerp(t *testing.T) {
	require.True(t, Vector3{5, 0, 0}.Equal(Lerp(Zero, Vector3{10, 0, 0}, 0.5)))
}
