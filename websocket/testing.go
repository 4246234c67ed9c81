package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/fieldofview/geometry"
	fovhttp "github.com/aukilabs/fieldofview/http"
	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/report"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// The time a test client waits for an expected message.
const testReceiveTimeout = 5 * time.Second

// Creates a testing environement to unit test handlers and modules.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set(fovhttp.HeaderXForwardedFor, "192.0.0.0")
		config.Header.Set(fovhttp.HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

// MsgFilter selects the messages a test client waits for.
type MsgFilter func(protocol.Msg) bool

func FilterByType(t protocol.MsgType) MsgFilter {
	return func(msg protocol.Msg) bool {
		return msg.Type == t
	}
}

func FilterByRequestID(id uint32) MsgFilter {
	return func(msg protocol.Msg) bool {
		var h protocol.Header
		if err := msg.DataTo(&h); err != nil {
			return false
		}
		return h.RequestID == id
	}
}

// Send writes a payload to the given test connection.
func Send(t *testing.T, conn *websocket.Conn, p protocol.Payload) {
	t.Helper()

	msg, err := protocol.MsgFromPayload(p)
	if err != nil {
		t.Fatalf("encoding %s failed: %s", p.GetType(), err)
	}

	if err := websocket.Message.Send(conn, string(msg.Data)); err != nil {
		t.Fatalf("sending %s failed: %s", p.GetType(), err)
	}
}

// Receive reads messages from the given test connection until one matches all
// the filters. Messages that do not match are discarded.
func Receive(t *testing.T, conn *websocket.Conn, filters ...MsgFilter) protocol.Msg {
	t.Helper()

	msg, err := receiveMatching(conn, filters...)
	if err != nil {
		t.Fatalf("receiving message failed: %s", err)
	}
	return msg
}

// ReceiveTo is Receive followed by decoding the message into v.
func ReceiveTo(t *testing.T, conn *websocket.Conn, v any, filters ...MsgFilter) {
	t.Helper()

	msg := Receive(t, conn, filters...)
	if err := msg.DataTo(v); err != nil {
		t.Fatalf("decoding %s failed: %s", msg.Type, err)
	}
}

func receiveMatching(conn *websocket.Conn, filters ...MsgFilter) (protocol.Msg, error) {
	if err := conn.SetReadDeadline(time.Now().Add(testReceiveTimeout)); err != nil {
		return protocol.Msg{}, err
	}
	defer conn.SetReadDeadline(time.Time{})

	receive := protocol.NewReceiver(conn)

	for {
		msg, _, err := receive()
		if err != nil {
			return protocol.Msg{}, err
		}

		if matches(msg, filters) {
			return msg, nil
		}
	}
}

func matches(msg protocol.Msg, filters []MsgFilter) bool {
	for _, f := range filters {
		if !f(msg) {
			return false
		}
	}
	return true
}

// newTestScenes returns a store with a "room" scene: a wall 5m ahead of the
// origin, target "a" between the origin and the wall, and target "b" 2m on the
// right of the origin.
func newTestScenes(t *testing.T) *scene.Store {
	var scenes scene.Store

	_, err := scenes.Put("room", scene.Document{
		Obstacles: []scene.Obstacle{
			{
				ID:   "wall",
				Kind: scene.Segment,
				A:    &geometry.Vector3{X: -5, Z: 5},
				B:    &geometry.Vector3{X: 5, Z: 5},
			},
		},
		Targets: []scene.Target{
			{Handle: "a", Position: geometry.Vector3{Z: 3}},
			{Handle: "b", Position: geometry.Vector3{X: 2}},
		},
	})
	if err != nil {
		t.Fatalf("creating test scene failed: %s", err)
	}

	return &scenes
}

type testHandlerOptions struct {
	scenes  *scene.Store
	reports chan<- report.Report
	modules []func() modules.Module
}

func newTestHandler(opts testHandlerOptions) func() Handler {
	sessionStore := &models.SessionStore{}

	return func() Handler {
		modules := make([]modules.Module, len(opts.modules))
		for i, nm := range opts.modules {
			modules[i] = nm()
		}

		var h Handler = &RealtimeHandler{
			ClientSyncClockInterval: time.Millisecond * 250,
			ClientIdleTimeout:       time.Minute,
			FrameDuration:           time.Millisecond * 50,
			ScanInterval:            time.Millisecond * 50,
			Scenes:                  opts.scenes,
			Sessions:                sessionStore,
			DefaultViewConfig:       visibility.DefaultConfig(),
			Modules:                 modules,
			ReportChan:              opts.reports,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://fov-test.com")
		return h
	}
}
