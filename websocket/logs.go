package websocket

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	fovhttp "github.com/aukilabs/fieldofview/http"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	clientIDTag      = "client_id"
	sceneIDTag       = "scene_id"
	sessionUUIDTag   = "session_uuid"
	participantIDTag = "participant_id"
)

// HandlerWithLogs logs the life cycle of a client and periodically logs a
// summary of the messages it received.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	// Read by the summary worker.
	tagsMutex     sync.RWMutex
	sceneID       string
	sessionUUID   string
	participantID uint32
}

func (h *handlerWithLogs) entry() logs.Entry {
	h.tagsMutex.RLock()
	defer h.tagsMutex.RUnlock()

	return logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag(sceneIDTag, h.sceneID).
		WithTag(sessionUUIDTag, h.sessionUUID).
		WithTag(participantIDTag, h.participantID)
}

func (h *handlerWithLogs) setSession(sceneID, sessionUUID string, participantID uint32) {
	h.tagsMutex.Lock()
	defer h.tagsMutex.Unlock()

	h.sceneID = sceneID
	h.sessionUUID = sessionUUID
	h.participantID = participantID
}

func (h *handlerWithLogs) httpHeaders() any {
	req := h.originalRequest
	if req == nil {
		return nil
	}

	return struct {
		UserAgent     string `json:"user_agent,omitempty"`
		XForwardedFor string `json:"x_forwarded_for,omitempty"`
	}{
		UserAgent:     req.UserAgent(),
		XForwardedFor: req.Header.Get(fovhttp.HeaderXForwardedFor),
	}
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	h.entry().
		WithTag("http_headers", h.httpHeaders()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleSceneJoin(ctx context.Context, handleFrame, handleScan func(), respond protocol.ResponseSender, msg protocol.Msg) error {
	previous := h.CurrentParticipant()

	if err := h.Handler.HandleSceneJoin(ctx, handleFrame, handleScan, respond, msg); err != nil {
		return err
	}

	participant := h.CurrentParticipant()
	if participant == nil || participant == previous {
		var req protocol.SceneJoinRequest
		// Decoding already succeeded in h.Handler.HandleSceneJoin.
		_ = msg.DataTo(&req)

		h.entry().
			WithTag("requested_scene_id", req.SceneID).
			WithTag("request_id", req.RequestID).
			Info("participant failed to join a scene")
		return nil
	}

	session := h.CurrentSession()
	h.setSession(session.SceneID(), session.SessionUUID, participant.ID)

	h.entry().
		WithTag("http_headers", h.httpHeaders()).
		WithTag("participant_count", session.ParticipantCount()).
		Info("participant joined a scene")
	return nil
}

func (h *handlerWithLogs) HandleSceneLeave(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	joined := h.CurrentParticipant() != nil

	if err := h.Handler.HandleSceneLeave(ctx, respond, msg); err != nil {
		return err
	}

	if joined && h.CurrentParticipant() == nil {
		h.entry().Info("participant left a scene")
		h.setSession("", "", 0)
	}
	return nil
}

func (h *handlerWithLogs) HandleViewConfigUpdate(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	if err := h.Handler.HandleViewConfigUpdate(ctx, respond, msg); err != nil {
		return err
	}

	if p := h.CurrentParticipant(); p != nil {
		h.entry().
			WithTag("view_config", p.ViewConfig()).
			Debug("view config updated")
	}
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := h.entry()
	if err != nil && !stderrors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() protocol.Receiver {
	receive := h.Handler.Receiver()

	return func() (protocol.Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !stderrors.Is(err, io.EOF) && !stderrors.Is(err, net.ErrClosed) {
			h.entry().Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() protocol.Sender {
	sender := h.Handler.Sender()

	return func(msg protocol.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil && !stderrors.Is(err, net.ErrClosed) {
			h.entry().
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := h.entry().WithTag("time_interval", h.summaryInterval)
	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
