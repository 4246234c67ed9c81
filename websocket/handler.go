package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize     = 512
	dispatchChanSize = 64
)

// Handler represents a field of view realtime handler.
type Handler interface {
	// Handles a ping request.
	HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to join the session of a scene. handleFrame and
	// handleScan schedule a frame and a target scan on the client loop.
	HandleSceneJoin(ctx context.Context, handleFrame, handleScan func(), respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a request to leave the current session.
	HandleSceneLeave(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles an observer move.
	HandleObserverUpdate(ctx context.Context, msg protocol.Msg) error

	// Handles a request to change the view config of the participant.
	HandleViewConfigUpdate(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Rebuilds and pushes the field of view of the participant.
	HandleFrame(ctx context.Context, respond protocol.ResponseSender) error

	// Recomputes and pushes the visible targets of the participant.
	HandleTargetScan(ctx context.Context, respond protocol.ResponseSender) error

	// Handles a message with the given module.
	HandleWithModule(ctx context.Context, module modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error

	// Sends a sync clock message.
	SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error

	// Returns the function that reads messages from the client.
	Receiver() protocol.Receiver

	// Returns the function that writes messages to the client.
	Sender() protocol.Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The interval between each sync clock message sent to the connected
	// client.
	SyncClockInterval() time.Duration

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the session store.
	GetSessions() *models.SessionStore

	// Returns the modules.
	GetModules() []modules.Module

	// The currently joined session.
	CurrentSession() *models.Session

	// The current participant.
	CurrentParticipant() *models.Participant

	GetClientID() string
}

// Handle runs the client loop of the given connection until the client
// disconnects or ctx is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	conn.MaxPayloadBytes = protocol.MaxMsgSize

	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The realtime handler.
	Handler Handler

	done           <-chan struct{}
	sendChan       chan protocol.Msg
	sender         protocol.Sender
	dispatcher     protocol.Dispatcher
	consumer       protocol.Consumer
	receiver       protocol.Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.done = ctx.Done()
	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan protocol.Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	scheduler := protocol.NewScheduler(dispatchChanSize)
	h.dispatcher = scheduler
	h.consumer = scheduler
	defer scheduler.Close()

	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	syncClockTicker := time.NewTicker(h.Handler.SyncClockInterval())
	defer syncClockTicker.Stop()

	var responder = responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.handleDisconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case <-syncClockTicker.C:
			if err := h.Handler.SendSyncClock(ctx, responder); err != nil {
				h.disconnect(errors.New("sending sync clock failed").Wrap(err))
			}

		case msg := <-h.consumer.Messages():
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case <-h.consumer.Frames():
			if err := h.Handler.HandleFrame(ctx, responder); err != nil {
				h.disconnect(errors.New("handling frame failed").Wrap(err))
			}

		case <-h.consumer.Scans():
			if err := h.Handler.HandleTargetScan(ctx, responder); err != nil {
				h.disconnect(errors.New("handling target scan failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(p protocol.Payload) {
	msg, err := protocol.MsgFromPayload(p)
	if err != nil {
		logs.WithTag("message", p).
			WithTag("client_id", h.Handler.GetClientID()).
			Debug(err)
		return
	}
	h.sendMsg(msg)
}

// sendMsg queues a message. It is called from other client loops when
// broadcasting, so it gives up once this client is gone.
func (h *handler) sendMsg(msg protocol.Msg) {
	select {
	case h.sendChan <- msg:
	case <-h.done:
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if errors.IsType(err, protocol.ErrTypeMsgInvalid) {
				h.send(protocol.NewErrorResponse(0, protocol.ErrorCodeBadRequest, "malformed message"))
				continue
			}
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			if err = h.dispatcher.Dispatch(ctx, msg); err != nil {
				h.disconnect(errors.New("dispatching message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg protocol.Msg, responder protocol.ResponseSender) error {
	var err error

	switch msg.Type {
	case protocol.MsgTypePingRequest:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case protocol.MsgTypeSceneJoinRequest:
		err = h.Handler.HandleSceneJoin(ctx,
			h.dispatcher.HandleFrame,
			h.dispatcher.HandleScan,
			responder,
			msg,
		)

	case protocol.MsgTypeSceneLeaveRequest:
		err = h.Handler.HandleSceneLeave(ctx, responder, msg)

	case protocol.MsgTypeObserverUpdate:
		err = h.Handler.HandleObserverUpdate(ctx, msg)

	case protocol.MsgTypeViewConfigUpdateRequest:
		err = h.Handler.HandleViewConfigUpdate(ctx, responder, msg)
	}

	if err != nil {
		return err
	}

	if h.Handler.CurrentParticipant() == nil || h.Handler.CurrentSession() == nil {
		return nil
	}

	for _, m := range h.Handler.GetModules() {
		if err = h.Handler.HandleWithModule(ctx, m, responder, msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(protocol.Payload)
	sendMsg func(protocol.Msg)
}

func (r responseSender) Send(p protocol.Payload) {
	r.send(p)
}

func (r responseSender) SendMsg(msg protocol.Msg) {
	r.sendMsg(msg)
}
