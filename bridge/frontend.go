package bridge

import (
	"context"
	"fmt"
	"sync"

	"procbridge/envelope"
	"procbridge/mux"
)

// Frontend is the UI-hosting side of the bridge. It originates Send and
// Invoke envelopes and observes Push and Response envelopes from the backend.
type Frontend struct {
	conn    *Connection
	pending sync.Map // channel -> chan *envelope.Envelope
}

// NewFrontend wraps conn and installs the response-routing listener. That
// listener is registered like any other, so user listeners still observe
// Response envelopes too.
func NewFrontend(conn *Connection) *Frontend {
	f := &Frontend{conn: conn}
	conn.Listen(f.route)
	return f
}

// Connection returns the underlying connection for Bind and Call.
func (f *Frontend) Connection() *Connection { return f.conn }

// Send raises a fire-and-forget envelope toward the backend.
func (f *Frontend) Send(channel string, payload []byte) error {
	return f.conn.Emit(&envelope.Envelope{
		Channel: channel,
		Type:    envelope.TypeSend,
		Payload: payload,
	})
}

// Invoke sends an envelope that expects a reply and waits for the Response
// on the same channel. The channel doubles as the correlation id, so at most
// one invoke may be in flight per channel.
//
// There is no protocol-level cancellation: ctx expiring abandons the wait
// locally, it does not recall the envelope already handed to the link.
func (f *Frontend) Invoke(ctx context.Context, channel string, payload []byte) (*envelope.Envelope, error) {
	ch := make(chan *envelope.Envelope, 1)
	if _, loaded := f.pending.LoadOrStore(channel, ch); loaded {
		return nil, fmt.Errorf("bridge: invoke already pending on channel %q", channel)
	}

	err := f.conn.Emit(&envelope.Envelope{
		Channel: channel,
		Type:    envelope.TypeInvoke,
		Payload: payload,
	})
	if err != nil {
		f.pending.Delete(channel)
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		f.pending.Delete(channel)
		return nil, ctx.Err()
	}
}

// Listen registers a listener for every envelope the backend sends this way.
func (f *Frontend) Listen(fn mux.Listener) {
	f.conn.Listen(fn)
}

// route resolves pending invokes. Only a Response whose channel matches the
// invoke's channel resolves it; everything else passes through untouched.
func (f *Frontend) route(env *envelope.Envelope) {
	if env.Type != envelope.TypeResponse {
		return
	}
	if ch, ok := f.pending.LoadAndDelete(env.Channel); ok {
		ch.(chan *envelope.Envelope) <- env
	}
}
