package probe

import (
	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
)

const (
	MsgTypeRaycastRequest   protocol.MsgType = "probe_raycast_request"
	MsgTypeRaycastResponse  protocol.MsgType = "probe_raycast_response"
	MsgTypeOverlapRequest   protocol.MsgType = "probe_overlap_request"
	MsgTypeOverlapResponse  protocol.MsgType = "probe_overlap_response"
	MsgTypeViewCastRequest  protocol.MsgType = "probe_view_cast_request"
	MsgTypeViewCastResponse protocol.MsgType = "probe_view_cast_response"
	MsgTypeDebugRequest     protocol.MsgType = "probe_debug_request"
	MsgTypeDebugResponse    protocol.MsgType = "probe_debug_response"
)

// RaycastRequest casts a ray in the joined scene. Mask defaults to the
// obstacle mask of the participant view config.
type RaycastRequest struct {
	protocol.Header
	Origin      geometry.Vector3      `json:"origin"`
	Direction   geometry.Vector3      `json:"direction"`
	MaxDistance float64               `json:"max_distance"`
	Mask        *visibility.LayerMask `json:"mask,omitempty"`
}

type RaycastResponse struct {
	protocol.Header
	SceneVersion uint64                 `json:"scene_version"`
	Hit          *visibility.RaycastHit `json:"hit,omitempty"`
}

// OverlapRequest lists the targets inside a sphere. Mask defaults to the
// target mask of the participant view config.
type OverlapRequest struct {
	protocol.Header
	Position geometry.Vector3      `json:"position"`
	Radius   float64               `json:"radius"`
	Mask     *visibility.LayerMask `json:"mask,omitempty"`
}

type OverlapResponse struct {
	protocol.Header
	SceneVersion uint64              `json:"scene_version"`
	Targets      []visibility.Target `json:"targets"`
}

// ViewCastRequest probes the scene along a global angle from the participant
// observer.
type ViewCastRequest struct {
	protocol.Header
	Angle float64 `json:"angle"`
}

type ViewCastResponse struct {
	protocol.Header
	SceneVersion uint64              `json:"scene_version"`
	ViewCast     visibility.ViewCast `json:"view_cast"`
}

type DebugRequest struct {
	protocol.Header
}

type DebugResponse struct {
	protocol.Header
	SceneID      string                     `json:"scene_id"`
	SessionUUID  string                     `json:"session_uuid"`
	Participants []uint32                   `json:"participants"`
	Scene        scene.DebugInfo            `json:"scene"`
	Probes       map[protocol.MsgType]int64 `json:"probes"`
}
