package transport

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// NewPipePair connects two in-process link endpoints over net.Pipe.
// frontSink receives what the backend sends and vice versa. Useful for tests
// and as a stand-in when both sides share one process.
//
// Heartbeats are disabled: net.Pipe is synchronous and the pair lives only as
// long as the test or host that created it.
func NewPipePair(frontSink, backSink Sink, logger *zap.Logger) (front, back *ConnLink) {
	c1, c2 := net.Pipe()
	front = NewConnLinkInterval(c1, frontSink, logger, 0)
	back = NewConnLinkInterval(c2, backSink, logger, 0)
	return front, back
}

// NewPipePairHeartbeat is NewPipePair with heartbeats enabled at the given
// interval, for exercising keepalive behavior without a real socket.
func NewPipePairHeartbeat(frontSink, backSink Sink, logger *zap.Logger, interval time.Duration) (front, back *ConnLink) {
	c1, c2 := net.Pipe()
	front = NewConnLinkInterval(c1, frontSink, logger, interval)
	back = NewConnLinkInterval(c2, backSink, logger, interval)
	return front, back
}
