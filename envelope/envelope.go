// Package envelope defines the IPC message structure exchanged between the
// frontend and backend processes.
//
// An Envelope is the application-level IPC unit. It never travels on its own:
// the mux layer wraps it inside a synthetic RPC request or fulfillment, which
// the protocol layer frames for transmission over the channel transport.
package envelope

import "bytes"

// Type discriminates the four envelope kinds.
type Type uint8

const (
	// TypeSend is a fire-and-forget message, frontend to backend.
	TypeSend Type = iota + 1
	// TypeInvoke expects a TypeResponse reply on the same channel.
	TypeInvoke
	// TypePush is a fire-and-forget notification, backend to frontend.
	TypePush
	// TypeResponse answers a prior TypeInvoke, correlated by channel.
	TypeResponse
)

func (t Type) String() string {
	switch t {
	case TypeSend:
		return "send"
	case TypeInvoke:
		return "invoke"
	case TypePush:
		return "push"
	case TypeResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Valid reports whether t is one of the four defined kinds.
func (t Type) Valid() bool {
	return t >= TypeSend && t <= TypeResponse
}

// TowardBackend reports whether the type travels frontend → backend.
func (t Type) TowardBackend() bool {
	return t == TypeSend || t == TypeInvoke
}

// TowardFrontend reports whether the type travels backend → frontend.
func (t Type) TowardFrontend() bool {
	return t == TypePush || t == TypeResponse
}

// Envelope carries one IPC message.
//
//   - Channel identifies the logical stream. For TypeInvoke/TypeResponse pairs
//     it doubles as the correlation id.
//   - Payload is opaque, already-marshaled application data. The envelope
//     layer never inspects it.
type Envelope struct {
	Channel string `json:"channel"`
	Type    Type   `json:"type"`
	Payload []byte `json:"payload,omitempty"`
}

// Equal reports whether two envelopes match field for field, payload
// bit-for-bit.
func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Channel == other.Channel &&
		e.Type == other.Type &&
		bytes.Equal(e.Payload, other.Payload)
}
