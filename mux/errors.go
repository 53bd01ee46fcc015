package mux

import "fmt"

// SerializationError reports that an envelope or argument failed to marshal
// or unmarshal. For outbound traffic it is surfaced synchronously to the
// caller; for inbound traffic it is fatal to that one message only.
type SerializationError struct {
	Op  string // "wrap", "unwrap"
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failed during %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// ProtocolMismatchError reports a sentinel-tagged message whose payload shape
// was unexpected: protocol corruption, fatal to the message but never to the
// multiplexer.
type ProtocolMismatchError struct {
	Reason string
}

func (e *ProtocolMismatchError) Error() string {
	return "protocol mismatch: " + e.Reason
}
