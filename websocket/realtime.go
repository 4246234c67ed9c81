package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/fieldofview/featureflag"
	fovhttp "github.com/aukilabs/fieldofview/http"
	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/report"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

const ErrTypeSessionNotJoined = "session-not-joined"

// RealtimeHandler serves a client that observes a scene: it keeps the client
// observer and view config, and pushes its field of view each frame and its
// visible targets each scan.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The duration of a frame.
	FrameDuration time.Duration

	// The interval between two target scans.
	ScanInterval time.Duration

	// The scenes clients can join.
	Scenes *scene.Store

	// The store that contains all the server sessions.
	Sessions *models.SessionStore

	// The view config of participants that do not provide one.
	DefaultViewConfig visibility.Config

	// The modules that expand the server features.
	Modules []modules.Module

	FeatureFlags featureflag.FeatureFlag

	// Receives a report each time the visible targets of a participant
	// change.
	ReportChan chan<- report.Report

	conn               *websocket.Conn
	currentSession     *models.Session
	currentParticipant *models.Participant

	stopFrameHandling func()
	stopScanHandling  func()

	lastFrame  frameState
	framed     bool
	targetSent bool

	clientID string
}

// frameState is what a field of view depends on.
type frameState struct {
	observer     visibility.Observer
	config       visibility.Config
	sceneVersion uint64
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(fovhttp.HeaderClientID)
	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(&protocol.Response{
		Header: protocol.NewHeader(protocol.MsgTypePingResponse, req.RequestID),
	})
	return nil
}

func (h *RealtimeHandler) HandleSceneJoin(ctx context.Context, handleFrame, handleScan func(), respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.SceneJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentSession != nil && h.currentSession.SceneID() == req.SceneID {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeSessionAlreadyJoined, ""))
		return nil
	}

	sc, ok := h.Scenes.Get(req.SceneID)
	if !ok {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeNotFound, "scene not found"))
		return nil
	}

	config := h.DefaultViewConfig
	if req.ViewConfig != nil {
		if err := req.ViewConfig.Validate(); err != nil {
			respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeInvalidViewConfig, err.Error()))
			return nil
		}
		config = *req.ViewConfig
	}

	var observer visibility.Observer
	if req.Observer != nil {
		if !req.Observer.Valid() {
			respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeBadRequest, "invalid observer"))
			return nil
		}
		observer = *req.Observer
	}

	if h.currentParticipant != nil {
		h.leaveSession()
	}

	session, participant, created := h.Sessions.Join(sc.ID,
		func(id uint32) *models.Session {
			return models.NewSession(id, sc, h.FrameDuration, h.ScanInterval)
		},
		func(id uint32) *models.Participant {
			p := models.NewParticipant(id, respond, config)
			p.SetObserver(observer)
			return p
		},
	)
	if created {
		go session.StartDispatchFrames()
		go session.StartDispatchScans()
	}

	h.currentSession = session
	h.currentParticipant = participant
	h.framed = false
	h.targetSent = false

	respond.Send(&protocol.SceneJoinResponse{
		Header:        protocol.NewHeader(protocol.MsgTypeSceneJoinResponse, req.RequestID),
		SceneID:       sc.ID,
		SceneVersion:  sc.Version(),
		SessionUUID:   session.SessionUUID,
		ParticipantID: participant.ID,
		ViewConfig:    config,
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantBroadcasts, func() {
		session.Broadcast(participant, &protocol.ParticipantBroadcast{
			Header:        protocol.NewHeader(protocol.MsgTypeParticipantJoinBroadcast, 0),
			ParticipantID: participant.ID,
		})
	})

	h.stopFrameHandling = session.HandleFrame(handleFrame)
	h.stopScanHandling = session.HandleScan(handleScan)

	for _, m := range h.Modules {
		m.Init(session, participant)
	}

	return nil
}

func (h *RealtimeHandler) HandleSceneLeave(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentParticipant == nil {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeSessionNotJoined, ""))
		return nil
	}

	h.leaveSession()
	respond.Send(&protocol.Response{
		Header: protocol.NewHeader(protocol.MsgTypeSceneLeaveResponse, req.RequestID),
	})
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveSession()
	}
}

func (h *RealtimeHandler) HandleObserverUpdate(ctx context.Context, msg protocol.Msg) error {
	var req protocol.ObserverUpdate
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	if participant == nil {
		return errors.New("session not joined").
			WithType(ErrTypeSessionNotJoined).
			WithTag("msg_type", msg.Type)
	}

	if !req.Observer.Valid() {
		return errors.New("invalid observer").
			WithType(protocol.ErrTypeMsgInvalid).
			WithTag("observer", req.Observer)
	}

	participant.SetObserver(req.Observer)
	return nil
}

func (h *RealtimeHandler) HandleViewConfigUpdate(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.ViewConfigUpdateRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	if participant == nil {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeSessionNotJoined, ""))
		return nil
	}

	if err := req.ViewConfig.Validate(); err != nil {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeInvalidViewConfig, err.Error()))
		return nil
	}

	participant.SetViewConfig(req.ViewConfig)
	respond.Send(&protocol.ViewConfigUpdateResponse{
		Header:     protocol.NewHeader(protocol.MsgTypeViewConfigUpdateResponse, req.RequestID),
		ViewConfig: req.ViewConfig,
	})
	return nil
}

func (h *RealtimeHandler) HandleFrame(ctx context.Context, respond protocol.ResponseSender) error {
	participant := h.currentParticipant
	session := h.currentSession
	if participant == nil || session == nil || h.FeatureFlags.IsSet(featureflag.FlagDisableFieldOfViewBroadcast) {
		return nil
	}

	observer, config := participant.View()
	world := session.Scene.Snapshot()

	state := frameState{
		observer:     observer,
		config:       config,
		sceneVersion: world.Version(),
	}
	if h.framed && state == h.lastFrame {
		return nil
	}

	h.FeatureFlags.IfSet(featureflag.FlagDisableEdgeRefinement, func() {
		config.EdgeResolveIterations = 0
	})

	mesh := visibility.NewEngine(config, world).ComputeVisibilityPolygon(observer)
	h.lastFrame = state
	h.framed = true

	respond.Send(&protocol.FieldOfView{
		Header:       protocol.NewHeader(protocol.MsgTypeFieldOfView, 0),
		SceneVersion: world.Version(),
		Observer:     observer,
		Vertices:     mesh.Vertices,
		Indices:      mesh.Indices(),
		EdgeCount:    len(mesh.Edges),
	})
	return nil
}

func (h *RealtimeHandler) HandleTargetScan(ctx context.Context, respond protocol.ResponseSender) error {
	participant := h.currentParticipant
	session := h.currentSession
	if participant == nil || session == nil || h.FeatureFlags.IsSet(featureflag.FlagDisableTargetScan) {
		return nil
	}

	observer, config := participant.View()
	world := session.Scene.Snapshot()

	visible := visibility.NewEngine(config, world).ComputeVisibleTargets(observer)
	if visible == nil {
		visible = []visibility.TargetHandle{}
	}

	entered, exited := participant.SetVisibleTargets(visible)
	if h.targetSent && len(entered) == 0 && len(exited) == 0 {
		return nil
	}
	h.targetSent = true

	now := time.Now()
	respond.Send(&protocol.VisibleTargets{
		Header: protocol.Header{
			Type:      protocol.MsgTypeVisibleTargets,
			Timestamp: now,
		},
		SceneVersion: world.Version(),
		Targets:      visible,
		Entered:      entered,
		Exited:       exited,
	})

	if h.ReportChan == nil || h.FeatureFlags.IsSet(featureflag.FlagDisableVisibilityReports) {
		return nil
	}

	select {
	case h.ReportChan <- report.Report{
		SceneID:       session.SceneID(),
		SceneVersion:  world.Version(),
		SessionUUID:   session.SessionUUID,
		ParticipantID: participant.ID,
		ClientID:      h.clientID,
		Observer:      observer,
		Targets:       visible,
		Entered:       entered,
		Exited:        exited,
		Timestamp:     now,
	}:
	default:
		report.InstrumentDropped()
	}
	return nil
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error {
	if h.CurrentParticipant() == nil || h.CurrentSession() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, protocol.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error {
	respond.Send(&protocol.SyncClock{
		Header: protocol.NewHeader(protocol.MsgTypeSyncClock, 0),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() protocol.Receiver {
	return protocol.NewReceiver(h.conn)
}

func (h *RealtimeHandler) Sender() protocol.Sender {
	return protocol.NewSender(h.conn)
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetSessions() *models.SessionStore {
	return h.Sessions
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentSession() *models.Session {
	return h.currentSession
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) leaveSession() {
	session := h.currentSession
	participant := h.currentParticipant

	if participant == nil || session == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	if h.stopFrameHandling != nil {
		h.stopFrameHandling()
		h.stopFrameHandling = nil
	}
	if h.stopScanHandling != nil {
		h.stopScanHandling()
		h.stopScanHandling = nil
	}

	if !h.Sessions.Leave(session, participant) {
		h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantBroadcasts, func() {
			session.Broadcast(participant, &protocol.ParticipantBroadcast{
				Header:        protocol.NewHeader(protocol.MsgTypeParticipantLeaveBroadcast, 0),
				ParticipantID: participant.ID,
			})
		})
	}

	h.currentParticipant = nil
	h.currentSession = nil
}
