package protocol

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMsgInvalid = "msg-invalid"

	// ErrTypeMsgSkip is returned by handlers that are not interested in a
	// message.
	ErrTypeMsgSkip = "msg-skip"

	// The maximum size of an inbound message, in bytes.
	MaxMsgSize = 1 << 20
)

type MsgType string

const (
	MsgTypePingRequest               MsgType = "ping_request"
	MsgTypePingResponse              MsgType = "ping_response"
	MsgTypeErrorResponse             MsgType = "error_response"
	MsgTypeSyncClock                 MsgType = "sync_clock"
	MsgTypeSceneJoinRequest          MsgType = "scene_join_request"
	MsgTypeSceneJoinResponse         MsgType = "scene_join_response"
	MsgTypeSceneLeaveRequest         MsgType = "scene_leave_request"
	MsgTypeSceneLeaveResponse        MsgType = "scene_leave_response"
	MsgTypeObserverUpdate            MsgType = "observer_update"
	MsgTypeViewConfigUpdateRequest   MsgType = "view_config_update_request"
	MsgTypeViewConfigUpdateResponse  MsgType = "view_config_update_response"
	MsgTypeFieldOfView               MsgType = "field_of_view"
	MsgTypeVisibleTargets            MsgType = "visible_targets"
	MsgTypeParticipantJoinBroadcast  MsgType = "participant_join_broadcast"
	MsgTypeParticipantLeaveBroadcast MsgType = "participant_leave_broadcast"
)

// Header is embedded in every message payload.
type Header struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id,omitempty"`
}

func (h Header) GetType() MsgType {
	return h.Type
}

func (h Header) GetRequestID() uint32 {
	return h.RequestID
}

// NewHeader returns a header stamped with the current time.
func NewHeader(t MsgType, requestID uint32) Header {
	return Header{
		Type:      t,
		Timestamp: time.Now(),
		RequestID: requestID,
	}
}

// Payload is a message body that knows its type.
type Payload interface {
	GetType() MsgType
}

// Msg is a raw JSON message with its decoded type.
type Msg struct {
	Type MsgType
	Time time.Time
	Data []byte
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// DataTo decodes the message into the given payload.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

func MsgFromJSON(data []byte) (Msg, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Msg{}, errors.New("decoding message header failed").
			WithType(ErrTypeMsgInvalid).
			Wrap(err)
	}
	if h.Type == "" {
		return Msg{}, errors.New("message type is missing").WithType(ErrTypeMsgInvalid)
	}

	return Msg{
		Type: h.Type,
		Time: h.Timestamp,
		Data: data,
	}, nil
}

func MsgFromPayload(p Payload) (Msg, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").
			WithType(ErrTypeMsgInvalid).
			WithTag("msg_type", p.GetType()).
			Wrap(err)
	}

	return Msg{
		Type: p.GetType(),
		Data: data,
	}, nil
}

// Receiver reads the next message of a connection. It returns the number of
// bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a message to a connection. It returns the number of bytes
// written.
type Sender func(Msg) (int, error)

func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return Msg{}, 0, err
		}

		msg, err := MsgFromJSON(data)
		return msg, len(data), err
	}
}

func NewSender(conn *websocket.Conn) Sender {
	return func(msg Msg) (int, error) {
		if err := websocket.Message.Send(conn, string(msg.Data)); err != nil {
			return 0, err
		}
		return len(msg.Data), nil
	}
}

// ResponseSender queues messages for a connection.
type ResponseSender interface {
	Send(Payload)
	SendMsg(Msg)
}
