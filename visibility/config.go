package visibility

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeInvalidViewConfig = "invalid-view-config"

	// MaxStepCount caps the number of samples of a single evaluation.
	MaxStepCount = 1 << 16

	// MaxEdgeResolveIterations caps the bisection depth. Doubles stop
	// splitting an angle interval long before that.
	MaxEdgeResolveIterations = 64
)

// LayerMask is a bitmask of scene layers, from 0 to 31.
type LayerMask uint32

const AllLayers LayerMask = math.MaxUint32

func LayerMaskOf(layers ...int) LayerMask {
	var m LayerMask
	for _, l := range layers {
		if l >= 0 && l < 32 {
			m |= 1 << l
		}
	}
	return m
}

func (m LayerMask) Contains(layer int) bool {
	if layer < 0 || layer >= 32 {
		return false
	}
	return m&(1<<layer) != 0
}

// Config holds the parameters of a field of view.
type Config struct {
	// The maximum distance of a view cast, in meters.
	ViewRadius float64 `json:"view_radius" yaml:"view_radius"`

	// The total angular width of the view, in degrees.
	ViewAngle float64 `json:"view_angle" yaml:"view_angle"`

	// The number of view casts per degree.
	MeshResolution float64 `json:"mesh_resolution" yaml:"mesh_resolution"`

	EdgeResolveIterations int     `json:"edge_resolve_iterations" yaml:"edge_resolve_iterations"`
	EdgeDistanceThreshold float64 `json:"edge_distance_threshold" yaml:"edge_distance_threshold"`

	TargetMask   LayerMask `json:"target_mask" yaml:"target_mask"`
	ObstacleMask LayerMask `json:"obstacle_mask" yaml:"obstacle_mask"`
}

func DefaultConfig() Config {
	return Config{
		ViewRadius:            10,
		ViewAngle:             90,
		MeshResolution:        1,
		EdgeResolveIterations: 6,
		EdgeDistanceThreshold: 0.5,
		TargetMask:            AllLayers,
		ObstacleMask:          AllLayers,
	}
}

// Validate reports the first parameter that is out of its range.
func (c Config) Validate() error {
	switch {
	case !isFinite(c.ViewRadius) || c.ViewRadius <= 0:
		return invalidConfig("view radius must be greater than 0", "view_radius", c.ViewRadius)

	case !isFinite(c.ViewAngle) || c.ViewAngle < 0 || c.ViewAngle > 360:
		return invalidConfig("view angle must be between 0 and 360", "view_angle", c.ViewAngle)

	case !isFinite(c.MeshResolution) || c.MeshResolution <= 0:
		return invalidConfig("mesh resolution must be greater than 0", "mesh_resolution", c.MeshResolution)

	case c.ViewAngle*c.MeshResolution > MaxStepCount:
		return invalidConfig("too many view casts", "step_count", c.ViewAngle*c.MeshResolution)

	case c.EdgeResolveIterations < 0 || c.EdgeResolveIterations > MaxEdgeResolveIterations:
		return invalidConfig("edge resolve iterations out of range", "edge_resolve_iterations", c.EdgeResolveIterations)

	case !isFinite(c.EdgeDistanceThreshold) || c.EdgeDistanceThreshold < 0:
		return invalidConfig("edge distance threshold must not be negative", "edge_distance_threshold", c.EdgeDistanceThreshold)

	default:
		return nil
	}
}

// normalized clamps every parameter into its range. The engine works on
// normalized configs only and never fails on degenerate values.
func (c Config) normalized() Config {
	if !isFinite(c.ViewRadius) || c.ViewRadius < 0 {
		c.ViewRadius = 0
	}

	if math.IsNaN(c.ViewAngle) {
		c.ViewAngle = 0
	}
	c.ViewAngle = math.Min(math.Max(c.ViewAngle, 0), 360)

	if !isFinite(c.MeshResolution) || c.MeshResolution < 0 {
		c.MeshResolution = 0
	}

	if c.EdgeResolveIterations < 0 {
		c.EdgeResolveIterations = 0
	} else if c.EdgeResolveIterations > MaxEdgeResolveIterations {
		c.EdgeResolveIterations = MaxEdgeResolveIterations
	}

	if math.IsNaN(c.EdgeDistanceThreshold) || c.EdgeDistanceThreshold < 0 {
		c.EdgeDistanceThreshold = 0
	}
	return c
}

// stepCount rounds half to even and never returns less than 1.
func (c Config) stepCount() int {
	n := math.RoundToEven(c.ViewAngle * c.MeshResolution)
	if n < 1 {
		return 1
	}
	if n > MaxStepCount {
		return MaxStepCount
	}
	return int(n)
}

func (c Config) stepAngleSize() float64 {
	return c.ViewAngle / float64(c.stepCount())
}

func invalidConfig(msg string, key string, value any) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidViewConfig).
		WithTag(key, value)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
