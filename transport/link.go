// Package transport implements the channel transport: the raw bidirectional
// pipe between the frontend and backend processes.
//
// A Link delivers already-encoded protocol frames in order within one
// direction and gives no guarantee across directions. Framing belongs to the
// protocol layer; the link neither inspects nor re-frames what it sends.
package transport

import (
	"fmt"

	"procbridge/protocol"
)

// Link is one process side's handle on the pipe.
type Link interface {
	// Send delivers one encoded frame to the peer. Handing the frame to the
	// link is the only delivery guarantee the caller gets.
	Send(frame []byte) error
	Close() error
}

// Sink consumes decoded inbound messages. The receive loop calls it
// sequentially: one message runs to completion before the next is read, so
// implementations need no internal ordering of their own.
type Sink interface {
	HandleMessage(msg *protocol.Message) error
}

// TransportError wraps an underlying channel read/write failure. It is
// propagated to the caller of the outbound send and never retried at this
// layer.
type TransportError struct {
	Op  string // "send", "recv", "dial"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
