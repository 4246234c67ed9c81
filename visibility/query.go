package visibility

import "github.com/aukilabs/fieldofview/geometry"

// TargetHandle identifies a target in a scene.
type TargetHandle string

type Target struct {
	Handle   TargetHandle     `json:"handle"`
	Position geometry.Vector3 `json:"position"`
}

type RaycastHit struct {
	Point    geometry.Vector3 `json:"point"`
	Distance float64          `json:"distance"`

	// The ID of the obstacle that was hit, when known.
	ObstacleID string `json:"obstacle_id,omitempty"`
}

// QueryService answers the scene queries the engine relies on. Implementations
// must return results from a single consistent state of the scene for the
// duration of an evaluation.
type QueryService interface {
	// Raycast returns the nearest obstacle within mask that the ray crosses
	// before maxDistance.
	Raycast(origin, direction geometry.Vector3, maxDistance float64, mask LayerMask) (RaycastHit, bool)

	// Overlap returns the targets within mask that are inside the sphere.
	Overlap(position geometry.Vector3, radius float64, mask LayerMask) []Target
}
