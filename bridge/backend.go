package bridge

import (
	"errors"

	"procbridge/envelope"
	"procbridge/mux"
)

// Backend is the compute/host side of the bridge. It observes Send and
// Invoke envelopes from the frontend, answers invokes with Respond, and
// raises Push notifications on its own.
type Backend struct {
	conn *Connection
}

func NewBackend(conn *Connection) *Backend {
	return &Backend{conn: conn}
}

// Connection returns the underlying connection for Bind.
func (b *Backend) Connection() *Connection { return b.conn }

// Push raises a fire-and-forget notification toward the frontend.
func (b *Backend) Push(channel string, payload []byte) error {
	return b.conn.Emit(&envelope.Envelope{
		Channel: channel,
		Type:    envelope.TypePush,
		Payload: payload,
	})
}

// Respond answers a prior Invoke observed on channel. Correlation is by
// channel alone; the caller is responsible for answering on the channel it
// heard the invoke on.
func (b *Backend) Respond(channel string, payload []byte) error {
	return b.conn.Emit(&envelope.Envelope{
		Channel: channel,
		Type:    envelope.TypeResponse,
		Payload: payload,
	})
}

// Listen registers a listener for every envelope the frontend sends this way.
func (b *Backend) Listen(fn mux.Listener) {
	b.conn.Listen(fn)
}

// Register exposes an application RPC service on this side's dispatcher.
func (b *Backend) Register(rcvr any) error {
	if b.conn.dispatcher == nil {
		return errors.New("bridge: connection was built without a dispatcher")
	}
	return b.conn.dispatcher.Register(rcvr)
}
