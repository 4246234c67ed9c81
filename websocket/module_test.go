package websocket

import (
	"context"
	"sync"
	"testing"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/modules"
	"github.com/aukilabs/fieldofview/modules/probe"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	currentSession     *models.Session
	currentParticipant *models.Participant
	handledMsgs        []protocol.MsgType
	skippedMsgs        []protocol.MsgType
	onDisconnect       func()
}

func (m *testModule) Name() string {
	return "test-module"
}

func (m *testModule) Init(s *models.Session, p *models.Participant) {
	m.currentSession = s
	m.currentParticipant = p
}

func (m *testModule) HandleMsg(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	switch msg.Type {
	case protocol.MsgTypePingRequest:
		m.skippedMsgs = append(m.skippedMsgs, msg.Type)
		return modules.ErrSkip(msg)

	default:
		m.handledMsgs = append(m.handledMsgs, msg.Type)
		return nil
	}
}

func (m *testModule) HandleDisconnect() {
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

func TestModule(t *testing.T) {
	var mutex sync.Mutex
	var mods []*testModule
	disconnected := make(chan struct{})

	clientA, _, closeEnv := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
		modules: []func() modules.Module{
			func() modules.Module {
				mutex.Lock()
				defer mutex.Unlock()

				m := &testModule{
					onDisconnect: func() {
						close(disconnected)
					},
				}
				mods = append(mods, m)
				return m
			},
		},
	}))
	defer closeEnv()

	joinRoom(t, clientA, 1, nil)

	Send(t, clientA, &protocol.Request{
		Header: protocol.NewHeader(protocol.MsgTypePingRequest, 2),
	})
	Receive(t, clientA,
		FilterByType(protocol.MsgTypePingResponse),
		FilterByRequestID(2),
	)

	clientA.Close()
	<-disconnected

	mutex.Lock()
	defer mutex.Unlock()

	var modA *testModule
	for _, m := range mods {
		if m.currentSession != nil {
			modA = m
		}
	}

	require.NotNil(t, modA)
	require.NotNil(t, modA.currentParticipant)
	require.Equal(t, []protocol.MsgType{protocol.MsgTypeSceneJoinRequest}, modA.handledMsgs)
	require.Equal(t, []protocol.MsgType{protocol.MsgTypePingRequest}, modA.skippedMsgs)
}

func TestProbeModule(t *testing.T) {
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
		modules: []func() modules.Module{
			func() modules.Module { return &probe.Module{} },
		},
	}))
	defer close()

	t.Run("not joined", func(t *testing.T) {
		Send(t, clientB, &probe.DebugRequest{
			Header: protocol.NewHeader(probe.MsgTypeDebugRequest, 1),
		})
		Send(t, clientB, &protocol.Request{
			Header: protocol.NewHeader(protocol.MsgTypePingRequest, 2),
		})

		msg := Receive(t, clientB, func(msg protocol.Msg) bool {
			return msg.Type == probe.MsgTypeDebugResponse || msg.Type == protocol.MsgTypePingResponse
		})
		require.Equal(t, protocol.MsgTypePingResponse, msg.Type)
	})

	joinRoom(t, clientA, 1, &visibility.Observer{})

	t.Run("raycast", func(t *testing.T) {
		Send(t, clientA, &probe.RaycastRequest{
			Header:      protocol.NewHeader(probe.MsgTypeRaycastRequest, 2),
			Direction:   geometry.Forward,
			MaxDistance: 20,
		})

		var res probe.RaycastResponse
		ReceiveTo(t, clientA, &res,
			FilterByType(probe.MsgTypeRaycastResponse),
			FilterByRequestID(2),
		)
		require.NotNil(t, res.Hit)
		require.Equal(t, "wall", res.Hit.ObstacleID)
	})

	t.Run("debug", func(t *testing.T) {
		Send(t, clientA, &probe.DebugRequest{
			Header: protocol.NewHeader(probe.MsgTypeDebugRequest, 3),
		})

		var res probe.DebugResponse
		ReceiveTo(t, clientA, &res,
			FilterByType(probe.MsgTypeDebugResponse),
			FilterByRequestID(3),
		)
		require.Equal(t, "room", res.SceneID)
		require.Equal(t, []uint32{1}, res.Participants)
		require.Equal(t, int64(1), res.Probes[probe.MsgTypeRaycastRequest])
	})
}
