package protocol

import (
	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/visibility"
)

type ErrorCode string

const (
	ErrorCodeBadRequest            ErrorCode = "bad_request"
	ErrorCodeNotFound              ErrorCode = "not_found"
	ErrorCodeSessionAlreadyJoined  ErrorCode = "session_already_joined"
	ErrorCodeSessionNotJoined      ErrorCode = "session_not_joined"
	ErrorCodeInvalidViewConfig     ErrorCode = "invalid_view_config"
	ErrorCodeInternalServerError   ErrorCode = "internal_server_error"
	ErrorCodeTooManyParticipants   ErrorCode = "too_many_participants"
	ErrorCodeUnsupportedMsgType    ErrorCode = "unsupported_msg_type"
	ErrorCodeMsgHandledByNoModules ErrorCode = "msg_handled_by_no_modules"
)

// Request is a message that carries no other data than its header.
type Request struct {
	Header
}

type Response struct {
	Header
}

type ErrorResponse struct {
	Header
	Code   ErrorCode `json:"code"`
	Reason string    `json:"reason,omitempty"`
}

func NewErrorResponse(requestID uint32, code ErrorCode, reason string) *ErrorResponse {
	return &ErrorResponse{
		Header: NewHeader(MsgTypeErrorResponse, requestID),
		Code:   code,
		Reason: reason,
	}
}

type SyncClock struct {
	Header
}

type SceneJoinRequest struct {
	Header
	SceneID string `json:"scene_id"`

	// Optional initial state.
	Observer   *visibility.Observer `json:"observer,omitempty"`
	ViewConfig *visibility.Config   `json:"view_config,omitempty"`
}

type SceneJoinResponse struct {
	Header
	SceneID       string            `json:"scene_id"`
	SceneVersion  uint64            `json:"scene_version"`
	SessionUUID   string            `json:"session_uuid"`
	ParticipantID uint32            `json:"participant_id"`
	ViewConfig    visibility.Config `json:"view_config"`
}

// ParticipantBroadcast tells the participants of a session that another
// participant joined or left.
type ParticipantBroadcast struct {
	Header
	ParticipantID uint32 `json:"participant_id"`
}

// ObserverUpdate moves the observer of the sending participant.
type ObserverUpdate struct {
	Header
	Observer visibility.Observer `json:"observer"`
}

type ViewConfigUpdateRequest struct {
	Header
	ViewConfig visibility.Config `json:"view_config"`
}

type ViewConfigUpdateResponse struct {
	Header
	ViewConfig visibility.Config `json:"view_config"`
}

// FieldOfView is pushed to a participant each frame its view changed. Vertices
// are in observer local space and Indices is a flat triangle list.
type FieldOfView struct {
	Header
	SceneVersion uint64              `json:"scene_version"`
	Observer     visibility.Observer `json:"observer"`
	Vertices     []geometry.Vector3  `json:"vertices"`
	Indices      []int               `json:"indices"`
	EdgeCount    int                 `json:"edge_count"`
}

// VisibleTargets is pushed to a participant each time the set of targets it
// sees changes.
type VisibleTargets struct {
	Header
	SceneVersion uint64                    `json:"scene_version"`
	Targets      []visibility.TargetHandle `json:"targets"`
	Entered      []visibility.TargetHandle `json:"entered,omitempty"`
	Exited       []visibility.TargetHandle `json:"exited,omitempty"`
}

// DiffTargets returns the handles of next missing from prev and the handles of
// prev missing from next. Order of appearance is preserved.
func DiffTargets(prev, next []visibility.TargetHandle) (entered, exited []visibility.TargetHandle) {
	in := func(set []visibility.TargetHandle, h visibility.TargetHandle) bool {
		for _, s := range set {
			if s == h {
				return true
			}
		}
		return false
	}

	for _, h := range next {
		if !in(prev, h) {
			entered = append(entered, h)
		}
	}
	for _, h := range prev {
		if !in(next, h) {
			exited = append(exited, h)
		}
	}
	return entered, exited
}
