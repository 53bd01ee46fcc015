// Package mux implements the IPC multiplexer: the layer that tunnels
// envelope traffic through the RPC protocol sharing one channel with
// ordinary application calls.
//
// Outbound, it wraps an envelope as a synthetic RPC request (toward the
// backend) or fulfillment (toward the frontend) addressed to the reserved
// sentinel interface, and hands the encoded frame to the link. Inbound, it
// classifies every decoded request/fulfillment: non-sentinel traffic is
// declined untouched so ordinary RPC dispatch proceeds unaffected; sentinel
// traffic is unwrapped and broadcast to every registered listener.
package mux

import (
	"fmt"

	"go.uber.org/zap"

	"procbridge/codec"
	"procbridge/envelope"
	"procbridge/protocol"
	"procbridge/transport"
)

// MessageClass is the routing decision for one inbound message, made exactly
// once per message.
type MessageClass int

const (
	// ClassApplication marks ordinary RPC traffic the mux must not consume.
	ClassApplication MessageClass = iota
	// ClassIPCEnvelope marks sentinel-tagged tunnel traffic.
	ClassIPCEnvelope
)

// Listener receives every envelope the mux unwraps. Delivery is synchronous
// within the dispatch call, in registration order.
type Listener func(*envelope.Envelope)

// Mux multiplexes IPC envelopes and application RPC over one link.
//
// One Mux is constructed per process side at connection setup and torn down
// with it. The listener set is append-only for the Mux's lifetime; there is
// no unlisten.
type Mux struct {
	codec  codec.Codec
	link   transport.Link
	logger *zap.Logger

	listeners *ListenerSet
}

// New creates a Mux that encodes with c and sends frames on link.
// A nil logger is replaced with a no-op logger.
func New(c codec.Codec, link transport.Link, logger *zap.Logger) *Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mux{
		codec:     c,
		link:      link,
		logger:    logger,
		listeners: NewListenerSet(),
	}
}

// Listen registers a listener. Listeners registered during a broadcast do not
// receive the message currently being delivered.
func (m *Mux) Listen(fn Listener) {
	m.listeners.Add(fn)
}

// ClassifyRequest decides once whether req is tunnel traffic.
func ClassifyRequest(req *protocol.Request) MessageClass {
	if req.Interface == Sentinel {
		return ClassIPCEnvelope
	}
	return ClassApplication
}

// ClassifyFulfillment decides once whether f is tunnel traffic.
func ClassifyFulfillment(f *protocol.Fulfillment) MessageClass {
	if f.Interface == Sentinel {
		return ClassIPCEnvelope
	}
	return ClassApplication
}

// Emit sends env to the peer process. Send/Invoke envelopes travel as
// synthetic requests, Push/Response envelopes as synthetic fulfillments.
//
// A marshal failure surfaces as *SerializationError and leaves no state
// behind; there is no retry. "Frame handed to the link" is the only delivery
// guarantee — listener delivery on the far side is never acknowledged.
func (m *Mux) Emit(env *envelope.Envelope) error {
	switch {
	case env.Type.TowardBackend():
		req, err := WrapRequest(m.codec, env)
		if err != nil {
			return err
		}
		frame, err := protocol.MarshalRequest(m.codec, req)
		if err != nil {
			return &SerializationError{Op: "wrap", Err: err}
		}
		return m.send(env, frame)
	case env.Type.TowardFrontend():
		f, err := WrapFulfillment(m.codec, env)
		if err != nil {
			return err
		}
		frame, err := protocol.MarshalFulfillment(m.codec, f)
		if err != nil {
			return &SerializationError{Op: "wrap", Err: err}
		}
		return m.send(env, frame)
	default:
		return &ProtocolMismatchError{Reason: fmt.Sprintf("invalid envelope type %d", env.Type)}
	}
}

func (m *Mux) send(env *envelope.Envelope, frame []byte) error {
	if err := m.link.Send(frame); err != nil {
		m.logger.Error("envelope send failed",
			zap.String("channel", env.Channel),
			zap.Stringer("type", env.Type),
			zap.Error(err))
		return err
	}
	return nil
}

// HandleRequest classifies one decoded inbound request. It returns
// (false, nil) for application traffic, leaving the request untouched for
// downstream dispatch. For tunnel traffic it unwraps the envelope and
// broadcasts it; an unwrap failure is fatal to this message only.
func (m *Mux) HandleRequest(req *protocol.Request) (bool, error) {
	if ClassifyRequest(req) == ClassApplication {
		return false, nil
	}
	env, err := UnwrapRequest(m.codec, req)
	if err != nil {
		m.logger.Error("tunnel request unwrap failed", zap.String("id", req.ID), zap.Error(err))
		return true, err
	}
	m.broadcast(env)
	return true, nil
}

// HandleFulfillment is the fulfillment-side counterpart of HandleRequest.
func (m *Mux) HandleFulfillment(f *protocol.Fulfillment) (bool, error) {
	if ClassifyFulfillment(f) == ClassApplication {
		return false, nil
	}
	env, err := UnwrapFulfillment(m.codec, f)
	if err != nil {
		m.logger.Error("tunnel fulfillment unwrap failed", zap.String("id", f.ID), zap.Error(err))
		return true, err
	}
	m.broadcast(env)
	return true, nil
}

func (m *Mux) broadcast(env *envelope.Envelope) {
	for _, fn := range m.listeners.Snapshot() {
		fn(env)
	}
}
