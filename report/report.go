package report

import (
	"math"
	"time"

	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
)

const ErrTypeInvalidReport = "invalid-report"

// Report records a change of the targets a realtime participant sees.
type Report struct {
	SceneID       string                    `json:"scene_id"`
	SceneVersion  uint64                    `json:"scene_version"`
	SessionUUID   string                    `json:"session_uuid"`
	ParticipantID uint32                    `json:"participant_id"`
	ClientID      string                    `json:"client_id,omitempty"`
	Observer      visibility.Observer       `json:"observer"`
	Targets       []visibility.TargetHandle `json:"targets"`
	Entered       []visibility.TargetHandle `json:"entered,omitempty"`
	Exited        []visibility.TargetHandle `json:"exited,omitempty"`
	Timestamp     time.Time                 `json:"timestamp"`
}

func (r Report) Validate() error {
	if !scene.IsValidRef(r.SceneID) {
		return invalidReport("invalid scene id", "scene_id", r.SceneID)
	}
	if _, err := uuid.Parse(r.SessionUUID); err != nil {
		return errors.New("invalid session uuid").
			WithType(ErrTypeInvalidReport).
			WithTag("session_uuid", r.SessionUUID).
			Wrap(err)
	}
	if r.ParticipantID == 0 {
		return invalidReport("participant id is missing", "participant_id", r.ParticipantID)
	}
	if r.Timestamp.IsZero() {
		return invalidReport("timestamp is missing", "timestamp", r.Timestamp)
	}

	p := r.Observer.Position
	for _, v := range []float64{p.X, p.Y, p.Z, r.Observer.Heading} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidReport("observer is not finite", "observer", r.Observer)
		}
	}
	return nil
}

func invalidReport(msg string, key string, value any) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidReport).
		WithTag(key, value)
}
