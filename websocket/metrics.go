package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	moduleLabel         = "module"
	publicEndpointLabel = "public_endpoint"

	defaultModule = "fieldofview"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{
		publicEndpointLabel,
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occurred while receiving a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occurred while sending a websocket message.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
		moduleLabel,
	})
)

// HandlerWithMetrics instruments the given handler with Prometheus metrics
// labeled with the public endpoint of the server.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.
		With(prometheus.Labels{
			publicEndpointLabel: h.publicEndpoint,
		}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, defaultModule, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleSceneJoin(ctx context.Context, handleFrame, handleScan func(), respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, defaultModule, func() error {
		return h.Handler.HandleSceneJoin(ctx, handleFrame, handleScan, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleSceneLeave(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, defaultModule, func() error {
		return h.Handler.HandleSceneLeave(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.
		With(prometheus.Labels{
			publicEndpointLabel: h.publicEndpoint,
		}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleObserverUpdate(ctx context.Context, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, defaultModule, func() error {
		return h.Handler.HandleObserverUpdate(ctx, msg)
	})
}

func (h *handlerWithMetrics) HandleViewConfigUpdate(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, defaultModule, func() error {
		return h.Handler.HandleViewConfigUpdate(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleFrame(ctx context.Context, respond protocol.ResponseSender) error {
	return h.measureLatency(protocol.MsgTypeFieldOfView, defaultModule, func() error {
		return h.Handler.HandleFrame(ctx, respond)
	})
}

func (h *handlerWithMetrics) HandleTargetScan(ctx context.Context, respond protocol.ResponseSender) error {
	return h.measureLatency(protocol.MsgTypeVisibleTargets, defaultModule, func() error {
		return h.Handler.HandleTargetScan(ctx, respond)
	})
}

func (h *handlerWithMetrics) HandleWithModule(ctx context.Context, module modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.Type, module.Name(), func() error {
		return h.Handler.HandleWithModule(ctx, module, respond, msg)
	})
}

func (h *handlerWithMetrics) SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error {
	return h.measureLatency(protocol.MsgTypeSyncClock, defaultModule, func() error {
		return h.Handler.SendSyncClock(ctx, respond)
	})
}

func (h *handlerWithMetrics) Receiver() protocol.Receiver {
	receive := h.Handler.Receiver()

	return func() (protocol.Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msg.TypeString(),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() protocol.Sender {
	sender := h.Handler.Sender()

	return func(msg protocol.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil {
			wsSendError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			wsSentMsgs.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
				}).
				Inc()
			wsSentBytes.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msgType protocol.MsgType, module string, f func() error) error {
	start := time.Now()

	err := f()
	if errors.IsType(err, protocol.ErrTypeMsgSkip) {
		return err
	}

	wsMsgLatency.With(prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		msgTypeLabel:        string(msgType),
		moduleLabel:         module,
	}).Observe(time.Since(start).Seconds())

	return err
}
