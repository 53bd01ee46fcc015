package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"procbridge/protocol"
)

// DefaultHeartbeatInterval is how often an idle ConnLink probes the peer.
const DefaultHeartbeatInterval = 30 * time.Second

// ConnLink runs the bridge over a stream connection (TCP, unix socket, or
// net.Pipe in tests).
//
// A single goroutine (recvLoop) reads frames: the stream has no message
// boundaries of its own, so reads must be sequential to parse frame edges.
// Writes from any goroutine are serialized by a mutex — without it, two
// concurrent sends would interleave one frame's header with another's body
// and corrupt the stream.
type ConnLink struct {
	conn      net.Conn
	sink      Sink
	logger    *zap.Logger
	writeMu   sync.Mutex
	closed    atomic.Bool
	heartbeat time.Duration
}

// NewConnLink wraps conn and starts the receive and heartbeat loops.
// Inbound frames are decoded and handed to sink sequentially; a message the
// sink rejects is logged and dropped, never the connection.
func NewConnLink(conn net.Conn, sink Sink, logger *zap.Logger) *ConnLink {
	return NewConnLinkInterval(conn, sink, logger, DefaultHeartbeatInterval)
}

// NewConnLinkInterval is NewConnLink with an explicit heartbeat interval.
// An interval <= 0 disables the heartbeat.
func NewConnLinkInterval(conn net.Conn, sink Sink, logger *zap.Logger, heartbeat time.Duration) *ConnLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &ConnLink{
		conn:      conn,
		sink:      sink,
		logger:    logger,
		heartbeat: heartbeat,
	}
	go l.recvLoop()
	if heartbeat > 0 {
		go l.heartbeatLoop()
	}
	return l
}

// Send writes one encoded frame to the connection. The write mutex makes the
// whole frame atomic with respect to other senders and the heartbeat loop.
func (l *ConnLink) Send(frame []byte) error {
	if l.closed.Load() {
		return &TransportError{Op: "send", Err: net.ErrClosed}
	}
	l.writeMu.Lock()
	_, err := l.conn.Write(frame)
	l.writeMu.Unlock()
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close shuts the connection down. The receive loop exits on the resulting
// read error.
func (l *ConnLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.conn.Close()
}

// recvLoop reads one frame at a time and runs the sink to completion before
// reading the next. This is the single-dispatch-thread model: broadcast
// delivery for two inbound messages never interleaves.
func (l *ConnLink) recvLoop() {
	for {
		msg, err := protocol.Decode(l.conn)
		if err != nil {
			if !l.closed.Load() && !errors.Is(err, io.EOF) {
				l.logger.Warn("link receive failed", zap.Error(err))
			}
			// Stream corruption or peer loss: either way no further frame
			// can be trusted off this byte stream. Close so senders fail
			// fast instead of writing into a dead connection.
			_ = l.Close()
			return
		}

		// Heartbeats exist only to keep the connection alive
		if msg.Class == protocol.ClassHeartbeat {
			continue
		}

		if err := l.sink.HandleMessage(msg); err != nil {
			// Fatal to this message, not to the link
			l.logger.Error("inbound message rejected", zap.Stringer("class", msg.Class), zap.Error(err))
		}
	}
}

func (l *ConnLink) heartbeatLoop() {
	ticker := time.NewTicker(l.heartbeat)
	defer ticker.Stop()
	for range ticker.C {
		if l.closed.Load() {
			return
		}
		l.writeMu.Lock()
		err := protocol.EncodeHeartbeat(l.conn)
		l.writeMu.Unlock()
		if err != nil {
			return // connection broken, receive loop reports it
		}
	}
}
