package websocket

import (
	"testing"
	"time"

	"github.com/aukilabs/fieldofview/geometry"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/report"
	"github.com/aukilabs/fieldofview/visibility"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func joinRoom(t *testing.T, conn *websocket.Conn, requestID uint32, observer *visibility.Observer) protocol.SceneJoinResponse {
	t.Helper()

	Send(t, conn, &protocol.SceneJoinRequest{
		Header:   protocol.NewHeader(protocol.MsgTypeSceneJoinRequest, requestID),
		SceneID:  "room",
		Observer: observer,
	})

	var res protocol.SceneJoinResponse
	ReceiveTo(t, conn, &res,
		FilterByType(protocol.MsgTypeSceneJoinResponse),
		FilterByRequestID(requestID),
	)
	return res
}

func receiveError(t *testing.T, conn *websocket.Conn, requestID uint32) protocol.ErrorResponse {
	t.Helper()

	var res protocol.ErrorResponse
	ReceiveTo(t, conn, &res,
		FilterByType(protocol.MsgTypeErrorResponse),
		FilterByRequestID(requestID),
	)
	return res
}

func TestHandlerSendSyncClock(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	msg := Receive(t, clientA, FilterByType(protocol.MsgTypeSyncClock))
	require.NotZero(t, msg.Time)
}

func TestHandlerHandlePing(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	Send(t, clientA, &protocol.Request{
		Header: protocol.NewHeader(protocol.MsgTypePingRequest, 1),
	})
	Receive(t, clientA,
		FilterByType(protocol.MsgTypePingResponse),
		FilterByRequestID(1),
	)
}

func TestHandlerHandleMalformedMessage(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	err := websocket.Message.Send(clientA, `{"type": 42`)
	require.NoError(t, err)

	res := receiveError(t, clientA, 0)
	require.Equal(t, protocol.ErrorCodeBadRequest, res.Code)

	t.Run("connection is still served", func(t *testing.T) {
		Send(t, clientA, &protocol.Request{
			Header: protocol.NewHeader(protocol.MsgTypePingRequest, 2),
		})
		Receive(t, clientA,
			FilterByType(protocol.MsgTypePingResponse),
			FilterByRequestID(2),
		)
	})
}

func TestHandlerHandleSceneJoin(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	t.Run("unknown scene", func(t *testing.T) {
		Send(t, clientA, &protocol.SceneJoinRequest{
			Header:  protocol.NewHeader(protocol.MsgTypeSceneJoinRequest, 1),
			SceneID: "attic",
		})

		res := receiveError(t, clientA, 1)
		require.Equal(t, protocol.ErrorCodeNotFound, res.Code)
	})

	t.Run("invalid view config", func(t *testing.T) {
		config := visibility.DefaultConfig()
		config.ViewRadius = -1

		Send(t, clientA, &protocol.SceneJoinRequest{
			Header:     protocol.NewHeader(protocol.MsgTypeSceneJoinRequest, 2),
			SceneID:    "room",
			ViewConfig: &config,
		})

		res := receiveError(t, clientA, 2)
		require.Equal(t, protocol.ErrorCodeInvalidViewConfig, res.Code)
	})

	t.Run("invalid observer", func(t *testing.T) {
		Send(t, clientA, &protocol.SceneJoinRequest{
			Header:  protocol.NewHeader(protocol.MsgTypeSceneJoinRequest, 3),
			SceneID: "room",
			Observer: &visibility.Observer{
				Position: geometry.Vector3{X: 1e12},
			},
		})

		res := receiveError(t, clientA, 3)
		require.Equal(t, protocol.ErrorCodeBadRequest, res.Code)
	})

	t.Run("join", func(t *testing.T) {
		res := joinRoom(t, clientA, 4, nil)
		require.Equal(t, "room", res.SceneID)
		require.Equal(t, uint64(1), res.SceneVersion)
		require.Equal(t, uint32(1), res.ParticipantID)
		require.NotEmpty(t, res.SessionUUID)
		require.Equal(t, visibility.DefaultConfig(), res.ViewConfig)
	})

	t.Run("already joined", func(t *testing.T) {
		Send(t, clientA, &protocol.SceneJoinRequest{
			Header:  protocol.NewHeader(protocol.MsgTypeSceneJoinRequest, 5),
			SceneID: "room",
		})

		res := receiveError(t, clientA, 5)
		require.Equal(t, protocol.ErrorCodeSessionAlreadyJoined, res.Code)
	})
}

func TestHandlerParticipantBroadcasts(t *testing.T) {
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	resA := joinRoom(t, clientA, 1, nil)
	resB := joinRoom(t, clientB, 1, nil)
	require.Equal(t, resA.SessionUUID, resB.SessionUUID)
	require.NotEqual(t, resA.ParticipantID, resB.ParticipantID)

	var joined protocol.ParticipantBroadcast
	ReceiveTo(t, clientA, &joined, FilterByType(protocol.MsgTypeParticipantJoinBroadcast))
	require.Equal(t, resB.ParticipantID, joined.ParticipantID)

	Send(t, clientB, &protocol.Request{
		Header: protocol.NewHeader(protocol.MsgTypeSceneLeaveRequest, 2),
	})
	Receive(t, clientB,
		FilterByType(protocol.MsgTypeSceneLeaveResponse),
		FilterByRequestID(2),
	)

	var left protocol.ParticipantBroadcast
	ReceiveTo(t, clientA, &left, FilterByType(protocol.MsgTypeParticipantLeaveBroadcast))
	require.Equal(t, resB.ParticipantID, left.ParticipantID)

	t.Run("leave without session", func(t *testing.T) {
		Send(t, clientB, &protocol.Request{
			Header: protocol.NewHeader(protocol.MsgTypeSceneLeaveRequest, 3),
		})

		res := receiveError(t, clientB, 3)
		require.Equal(t, protocol.ErrorCodeSessionNotJoined, res.Code)
	})
}

func TestHandlerFieldOfView(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	joinRoom(t, clientA, 1, &visibility.Observer{})

	var fov protocol.FieldOfView
	ReceiveTo(t, clientA, &fov, FilterByType(protocol.MsgTypeFieldOfView))
	require.Equal(t, uint64(1), fov.SceneVersion)
	require.NotEmpty(t, fov.Vertices)
	require.Equal(t, geometry.Vector3{}, fov.Vertices[0])
	require.Zero(t, len(fov.Indices)%3)

	Send(t, clientA, &protocol.ObserverUpdate{
		Header: protocol.NewHeader(protocol.MsgTypeObserverUpdate, 0),
		Observer: visibility.Observer{
			Position: geometry.Vector3{X: 1},
			Heading:  180,
		},
	})

	ReceiveTo(t, clientA, &fov,
		FilterByType(protocol.MsgTypeFieldOfView),
		func(msg protocol.Msg) bool {
			var f protocol.FieldOfView
			return msg.DataTo(&f) == nil && f.Observer.Heading == 180
		},
	)
	require.Equal(t, geometry.Vector3{X: 1}, fov.Observer.Position)

	// Vertices are relative to the observer.
	require.Equal(t, geometry.Vector3{}, fov.Vertices[0])
}

func TestHandlerVisibleTargets(t *testing.T) {
	reports := make(chan report.Report, 16)

	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes:  newTestScenes(t),
		reports: reports,
	}))
	defer close()

	res := joinRoom(t, clientA, 1, &visibility.Observer{})

	var targets protocol.VisibleTargets
	ReceiveTo(t, clientA, &targets, FilterByType(protocol.MsgTypeVisibleTargets))
	require.Equal(t, []visibility.TargetHandle{"a"}, targets.Targets)
	require.Equal(t, []visibility.TargetHandle{"a"}, targets.Entered)
	require.Empty(t, targets.Exited)

	Send(t, clientA, &protocol.ObserverUpdate{
		Header:   protocol.NewHeader(protocol.MsgTypeObserverUpdate, 0),
		Observer: visibility.Observer{Heading: 90},
	})

	ReceiveTo(t, clientA, &targets, FilterByType(protocol.MsgTypeVisibleTargets))
	require.Equal(t, []visibility.TargetHandle{"b"}, targets.Targets)
	require.Equal(t, []visibility.TargetHandle{"b"}, targets.Entered)
	require.Equal(t, []visibility.TargetHandle{"a"}, targets.Exited)

	t.Run("reports", func(t *testing.T) {
		for _, expected := range []visibility.TargetHandle{"a", "b"} {
			select {
			case r := <-reports:
				require.NoError(t, r.Validate())
				require.Equal(t, "room", r.SceneID)
				require.Equal(t, res.SessionUUID, r.SessionUUID)
				require.Equal(t, res.ParticipantID, r.ParticipantID)
				require.NotEmpty(t, r.ClientID)
				require.Equal(t, []visibility.TargetHandle{expected}, r.Targets)

			case <-time.After(testReceiveTimeout):
				t.Fatal("no report received")
			}
		}
	})
}

func TestHandlerHandleViewConfigUpdate(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	config := visibility.DefaultConfig()
	config.ViewAngle = 360

	t.Run("not joined", func(t *testing.T) {
		Send(t, clientA, &protocol.ViewConfigUpdateRequest{
			Header:     protocol.NewHeader(protocol.MsgTypeViewConfigUpdateRequest, 1),
			ViewConfig: config,
		})

		res := receiveError(t, clientA, 1)
		require.Equal(t, protocol.ErrorCodeSessionNotJoined, res.Code)
	})

	joinRoom(t, clientA, 2, &visibility.Observer{})

	t.Run("invalid", func(t *testing.T) {
		invalid := config
		invalid.MeshResolution = 0

		Send(t, clientA, &protocol.ViewConfigUpdateRequest{
			Header:     protocol.NewHeader(protocol.MsgTypeViewConfigUpdateRequest, 3),
			ViewConfig: invalid,
		})

		res := receiveError(t, clientA, 3)
		require.Equal(t, protocol.ErrorCodeInvalidViewConfig, res.Code)
	})

	t.Run("update", func(t *testing.T) {
		Send(t, clientA, &protocol.ViewConfigUpdateRequest{
			Header:     protocol.NewHeader(protocol.MsgTypeViewConfigUpdateRequest, 4),
			ViewConfig: config,
		})

		var res protocol.ViewConfigUpdateResponse
		ReceiveTo(t, clientA, &res,
			FilterByType(protocol.MsgTypeViewConfigUpdateResponse),
			FilterByRequestID(4),
		)
		require.Equal(t, config, res.ViewConfig)

		// With a full circle, both targets are in view.
		var targets protocol.VisibleTargets
		ReceiveTo(t, clientA, &targets,
			FilterByType(protocol.MsgTypeVisibleTargets),
			func(msg protocol.Msg) bool {
				var v protocol.VisibleTargets
				return msg.DataTo(&v) == nil && len(v.Targets) == 2
			},
		)
		require.ElementsMatch(t, []visibility.TargetHandle{"a", "b"}, targets.Targets)
	})
}

func TestHandlerObserverUpdateWithoutSession(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(testHandlerOptions{
		scenes: newTestScenes(t),
	}))
	defer close()

	Send(t, clientA, &protocol.ObserverUpdate{
		Header: protocol.NewHeader(protocol.MsgTypeObserverUpdate, 0),
	})

	_, err := receiveMatching(clientA, FilterByType(protocol.MsgTypePingResponse))
	require.Error(t, err)
}
