package mux

import (
	"fmt"

	"procbridge/codec"
	"procbridge/envelope"
	"procbridge/protocol"
)

// Sentinel is the reserved interface name that marks a request or fulfillment
// as tunneled IPC traffic. It must never collide with a real application
// interface name: it is the sole discriminator between the two traffic
// classes on the shared channel.
const Sentinel = "__procbridge.ipc__"

// SentinelOperation is the operation name carried by every tunneled request.
const SentinelOperation = "send"

// WrapRequest builds the synthetic RPC request that carries env toward the
// backend. The envelope is the sole marshaled parameter; the request id is
// the envelope channel.
func WrapRequest(c codec.Codec, env *envelope.Envelope) (*protocol.Request, error) {
	if !env.Type.TowardBackend() {
		return nil, &ProtocolMismatchError{Reason: fmt.Sprintf("envelope type %s does not travel toward the backend", env.Type)}
	}
	body, err := c.Encode(env)
	if err != nil {
		return nil, &SerializationError{Op: "wrap", Err: err}
	}
	return &protocol.Request{
		Interface: Sentinel,
		Operation: SentinelOperation,
		ID:        env.Channel,
		Params:    [][]byte{body},
	}, nil
}

// UnwrapRequest recovers the envelope from a sentinel-tagged request. The
// caller has already matched the interface name; malformed parameter lists
// are protocol corruption, undecodable parameters are serialization failures.
func UnwrapRequest(c codec.Codec, req *protocol.Request) (*envelope.Envelope, error) {
	if len(req.Params) != 1 {
		return nil, &ProtocolMismatchError{Reason: fmt.Sprintf("tunnel request carries %d params, want 1", len(req.Params))}
	}
	env := &envelope.Envelope{}
	if err := c.Decode(req.Params[0], env); err != nil {
		return nil, &SerializationError{Op: "unwrap", Err: err}
	}
	if env.Channel == "" || !env.Type.Valid() {
		return nil, &ProtocolMismatchError{Reason: "tunneled envelope missing channel or type"}
	}
	return env, nil
}

// WrapFulfillment builds the synthetic fulfillment that carries env toward
// the frontend. The fulfillment id is the envelope channel and the marshaled
// envelope rides in Result.
func WrapFulfillment(c codec.Codec, env *envelope.Envelope) (*protocol.Fulfillment, error) {
	if !env.Type.TowardFrontend() {
		return nil, &ProtocolMismatchError{Reason: fmt.Sprintf("envelope type %s does not travel toward the frontend", env.Type)}
	}
	body, err := c.Encode(env)
	if err != nil {
		return nil, &SerializationError{Op: "wrap", Err: err}
	}
	return &protocol.Fulfillment{
		Interface: Sentinel,
		ID:        env.Channel,
		Result:    body,
		Status:    protocol.StatusOK,
		RawResult: env,
	}, nil
}

// UnwrapFulfillment recovers the envelope from a sentinel-tagged fulfillment.
// It decodes Result, never RawResult: RawResult is only populated when the
// fulfillment was produced in this process and never survives the wire.
func UnwrapFulfillment(c codec.Codec, f *protocol.Fulfillment) (*envelope.Envelope, error) {
	if f.Status != protocol.StatusOK {
		return nil, &ProtocolMismatchError{Reason: fmt.Sprintf("tunnel fulfillment has status %d", f.Status)}
	}
	if len(f.Result) == 0 {
		return nil, &ProtocolMismatchError{Reason: "tunnel fulfillment has empty result"}
	}
	env := &envelope.Envelope{}
	if err := c.Decode(f.Result, env); err != nil {
		return nil, &SerializationError{Op: "unwrap", Err: err}
	}
	if env.Channel == "" || !env.Type.Valid() {
		return nil, &ProtocolMismatchError{Reason: "tunneled envelope missing channel or type"}
	}
	return env, nil
}
