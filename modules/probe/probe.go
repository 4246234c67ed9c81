// Package probe answers scene queries on behalf of realtime clients: raycasts,
// overlaps, single view casts and scene debug info.
package probe

import (
	"context"
	"math"

	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// The maximum radius or distance a probe may query.
const MaxProbeDistance = 1e4

type Module struct {
	currentSession     *models.Session
	currentParticipant *models.Participant
	state              *State
}

func (m *Module) Name() string {
	return "probe"
}

func (m *Module) Init(s *models.Session, p *models.Participant) {
	m.currentSession = s
	m.currentParticipant = p

	m.state = s.LoadOrStoreModuleState(m.Name(), func() any {
		return &State{}
	}).(*State)
}

func (m *Module) HandleMsg(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	switch msg.Type {
	case MsgTypeRaycastRequest, MsgTypeOverlapRequest, MsgTypeViewCastRequest, MsgTypeDebugRequest:
	default:
		return modules.ErrSkip(msg)
	}

	if m.currentSession == nil || m.currentParticipant == nil || m.currentSession.Scene == nil {
		return errors.New("session not joined").
			WithType(protocol.ErrTypeMsgSkip).
			WithTag("msg_type", msg.Type)
	}

	var err error

	switch msg.Type {
	case MsgTypeRaycastRequest:
		err = m.handleRaycast(respond, msg)

	case MsgTypeOverlapRequest:
		err = m.handleOverlap(respond, msg)

	case MsgTypeViewCastRequest:
		err = m.handleViewCast(respond, msg)

	case MsgTypeDebugRequest:
		err = m.handleDebug(respond, msg)
	}

	if err == nil {
		m.state.Inc(msg.Type)
	}
	return err
}

func (m *Module) HandleDisconnect() {
	m.currentSession = nil
	m.currentParticipant = nil
	m.state = nil
}

func (m *Module) handleRaycast(respond protocol.ResponseSender, msg protocol.Msg) error {
	var req RaycastRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if !validDistance(req.MaxDistance) || req.Direction.Length() == 0 {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeBadRequest, "invalid ray"))
		return nil
	}

	mask := m.currentParticipant.ViewConfig().ObstacleMask
	if req.Mask != nil {
		mask = *req.Mask
	}

	world := m.currentSession.Scene.Snapshot()
	res := &RaycastResponse{
		Header:       protocol.NewHeader(MsgTypeRaycastResponse, req.RequestID),
		SceneVersion: world.Version(),
	}

	if hit, ok := world.Raycast(req.Origin, req.Direction, req.MaxDistance, mask); ok {
		res.Hit = &hit
	}

	respond.Send(res)
	return nil
}

func (m *Module) handleOverlap(respond protocol.ResponseSender, msg protocol.Msg) error {
	var req OverlapRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if !validDistance(req.Radius) {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeBadRequest, "invalid radius"))
		return nil
	}

	mask := m.currentParticipant.ViewConfig().TargetMask
	if req.Mask != nil {
		mask = *req.Mask
	}

	world := m.currentSession.Scene.Snapshot()
	targets := world.Overlap(req.Position, req.Radius, mask)
	if targets == nil {
		targets = []visibility.Target{}
	}

	respond.Send(&OverlapResponse{
		Header:       protocol.NewHeader(MsgTypeOverlapResponse, req.RequestID),
		SceneVersion: world.Version(),
		Targets:      targets,
	})
	return nil
}

func (m *Module) handleViewCast(respond protocol.ResponseSender, msg protocol.Msg) error {
	var req ViewCastRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if math.IsNaN(req.Angle) || math.IsInf(req.Angle, 0) {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeBadRequest, "invalid angle"))
		return nil
	}

	observer, config := m.currentParticipant.View()
	world := m.currentSession.Scene.Snapshot()

	respond.Send(&ViewCastResponse{
		Header:       protocol.NewHeader(MsgTypeViewCastResponse, req.RequestID),
		SceneVersion: world.Version(),
		ViewCast:     visibility.NewEngine(config, world).ViewCast(observer, req.Angle),
	})
	return nil
}

func (m *Module) handleDebug(respond protocol.ResponseSender, msg protocol.Msg) error {
	var req DebugRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participants := m.currentSession.GetParticipants()
	ids := make([]uint32, len(participants))
	for i, p := range participants {
		ids[i] = p.ID
	}

	respond.Send(&DebugResponse{
		Header:       protocol.NewHeader(MsgTypeDebugResponse, req.RequestID),
		SceneID:      m.currentSession.SceneID(),
		SessionUUID:  m.currentSession.SessionUUID,
		Participants: ids,
		Scene:        m.currentSession.Scene.Snapshot().GetDebugInfo(),
		Probes:       m.state.Counts(),
	})
	return nil
}

func validDistance(d float64) bool {
	return d > 0 && d <= MaxProbeDistance && !math.IsNaN(d)
}
