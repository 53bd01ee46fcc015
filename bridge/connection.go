// Package bridge ties the layers together: one Connection per process side
// owns the codec, the multiplexer, the application dispatcher, and the link,
// with its lifecycle bound to the hosting process's connection lifetime.
// Construct at connection setup, Close at disconnect; there is no reset.
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"procbridge/codec"
	"procbridge/dispatch"
	"procbridge/envelope"
	"procbridge/mux"
	"procbridge/protocol"
	"procbridge/transport"
)

// ErrNotBound is returned when traffic is raised before Bind.
var ErrNotBound = errors.New("bridge: connection has no bound link")

// Connection is one process side of the bridge. It implements
// transport.Sink: the link's receive loop feeds decoded messages here, and
// routing is mux-first — the mux classifies each message exactly once, and
// only declined (application) traffic reaches the dispatcher or a pending
// call.
type Connection struct {
	codec      codec.Codec
	logger     *zap.Logger
	mux        *mux.Mux
	dispatcher *dispatch.Dispatcher // nil on sides that serve no application RPC
	link       *linkRef

	pendingCalls sync.Map // call id -> chan *protocol.Fulfillment
}

// NewConnection builds a connection. dispatcher may be nil for a side that
// only originates calls. Bind a link before the peer starts sending.
func NewConnection(c codec.Codec, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn := &Connection{
		codec:      c,
		logger:     logger,
		dispatcher: dispatcher,
		link:       &linkRef{},
	}
	conn.mux = mux.New(c, conn.link, logger)
	return conn
}

// Bind attaches the transport link. The link's constructor needs the
// connection as its sink, so the two are wired in this order: connection
// first, link second, then Bind.
func (c *Connection) Bind(link transport.Link) {
	c.link.set(link)
}

// Mux exposes the multiplexer, mainly so tests can drive classification
// directly.
func (c *Connection) Mux() *mux.Mux { return c.mux }

// Emit sends one IPC envelope to the peer.
func (c *Connection) Emit(env *envelope.Envelope) error {
	return c.mux.Emit(env)
}

// Listen registers an IPC listener for every envelope unwrapped on this side.
func (c *Connection) Listen(fn mux.Listener) {
	c.mux.Listen(fn)
}

// Call performs one application RPC round trip: marshal args, send the
// request, wait for the correlated fulfillment, unmarshal into reply.
func (c *Connection) Call(ctx context.Context, iface, operation string, args, reply any) error {
	payload, err := c.codec.Encode(args)
	if err != nil {
		return &mux.SerializationError{Op: "wrap", Err: err}
	}
	id, err := newCallID()
	if err != nil {
		return err
	}
	req := &protocol.Request{
		Interface: iface,
		Operation: operation,
		ID:        id,
		Params:    [][]byte{payload},
	}
	frame, err := protocol.MarshalRequest(c.codec, req)
	if err != nil {
		return &mux.SerializationError{Op: "wrap", Err: err}
	}

	// Register before sending so the receive loop cannot race the reply past us
	ch := make(chan *protocol.Fulfillment, 1)
	c.pendingCalls.Store(id, ch)

	if err := c.link.Send(frame); err != nil {
		c.pendingCalls.Delete(id)
		return err
	}

	select {
	case <-ctx.Done():
		c.pendingCalls.Delete(id)
		return ctx.Err()
	case f := <-ch:
		if f.Status != protocol.StatusOK {
			return fmt.Errorf("remote call %s.%s failed: %s", iface, operation, failureDetail(c.codec, f))
		}
		if reply == nil {
			return nil
		}
		if err := c.codec.Decode(f.Result, reply); err != nil {
			return &mux.SerializationError{Op: "unwrap", Err: err}
		}
		return nil
	}
}

// HandleMessage implements transport.Sink. The receive loop calls it
// sequentially, so one message's routing and broadcast run to completion
// before the next message is looked at.
func (c *Connection) HandleMessage(msg *protocol.Message) error {
	switch msg.Class {
	case protocol.ClassRequest:
		handled, err := c.mux.HandleRequest(msg.Request)
		if err != nil {
			return err // fatal to this message only; state is untouched
		}
		if handled {
			return nil
		}
		return c.dispatchRequest(msg.Request)
	case protocol.ClassFulfillment:
		handled, err := c.mux.HandleFulfillment(msg.Fulfillment)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		c.resolveCall(msg.Fulfillment)
		return nil
	default:
		return fmt.Errorf("bridge: unroutable message class %d", msg.Class)
	}
}

func (c *Connection) dispatchRequest(req *protocol.Request) error {
	if c.dispatcher == nil {
		return fmt.Errorf("bridge: no dispatcher for application request %s.%s", req.Interface, req.Operation)
	}
	f := c.dispatcher.Handle(context.Background(), req)
	frame, err := protocol.MarshalFulfillment(c.codec, f)
	if err != nil {
		return &mux.SerializationError{Op: "wrap", Err: err}
	}
	return c.link.Send(frame)
}

func (c *Connection) resolveCall(f *protocol.Fulfillment) {
	if ch, ok := c.pendingCalls.LoadAndDelete(f.ID); ok {
		ch.(chan *protocol.Fulfillment) <- f
		return
	}
	c.logger.Debug("fulfillment with no pending call", zap.String("id", f.ID))
}

// Close tears the connection down. Pending calls are not drained: the link's
// receive loop has already exited, and callers waiting in Call unblock via
// their contexts.
func (c *Connection) Close() error {
	return c.link.Close()
}

func failureDetail(c codec.Codec, f *protocol.Fulfillment) string {
	var detail string
	if len(f.Result) == 0 || c.Decode(f.Result, &detail) != nil {
		return fmt.Sprintf("status %d", f.Status)
	}
	return detail
}

func newCallID() (string, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// linkRef lets the mux hold a Link before Bind has run. Sends before Bind
// fail with ErrNotBound.
type linkRef struct {
	mu   sync.RWMutex
	link transport.Link
}

func (r *linkRef) set(l transport.Link) {
	r.mu.Lock()
	r.link = l
	r.mu.Unlock()
}

func (r *linkRef) Send(frame []byte) error {
	r.mu.RLock()
	l := r.link
	r.mu.RUnlock()
	if l == nil {
		return ErrNotBound
	}
	return l.Send(frame)
}

func (r *linkRef) Close() error {
	r.mu.RLock()
	l := r.link
	r.mu.RUnlock()
	if l == nil {
		return nil
	}
	return l.Close()
}
