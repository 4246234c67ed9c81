package modules

import (
	"context"

	"github.com/aukilabs/fieldofview/models"
	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Module extends the realtime server with messages of its own.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module once the client joined a scene session.
	Init(*models.Session, *models.Participant)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning an error of type protocol.ErrTypeMsgSkip indicates that
	// handling a message was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, protocol.ResponseSender, protocol.Msg) error

	// Handles a client disconnection.
	HandleDisconnect()
}

// ErrSkip returns the error a module returns for messages it does not handle.
func ErrSkip(msg protocol.Msg) error {
	return errors.New("message skipped").
		WithType(protocol.ErrTypeMsgSkip).
		WithTag("msg_type", msg.Type)
}
