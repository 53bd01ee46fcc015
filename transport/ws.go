package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"procbridge/protocol"
)

// WSLink runs the bridge over a websocket connection. Hybrid hosts use this
// for the localhost hop between the webview UI process and the host process:
// the webview side can only speak websocket, and websocket's native message
// boundaries mean each binary message carries exactly one frame.
//
// Keepalive uses websocket control frames rather than protocol heartbeat
// frames: pings are answered by the peer's websocket stack without waking
// the bridge at all.
type WSLink struct {
	ws      *websocket.Conn
	sink    Sink
	logger  *zap.Logger
	ping    time.Duration
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewWSLink wraps an established websocket connection and starts the receive
// loop, with no keepalive pings of its own.
func NewWSLink(ws *websocket.Conn, sink Sink, logger *zap.Logger) *WSLink {
	return NewWSLinkInterval(ws, sink, logger, 0)
}

// NewWSLinkInterval is NewWSLink with a keepalive ping every interval.
// An interval <= 0 disables pings.
func NewWSLinkInterval(ws *websocket.Conn, sink Sink, logger *zap.Logger, interval time.Duration) *WSLink {
	l := newWSLink(ws, sink, logger)
	l.ping = interval
	l.start()
	return l
}

func newWSLink(ws *websocket.Conn, sink Sink, logger *zap.Logger) *WSLink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSLink{ws: ws, sink: sink, logger: logger}
}

func (l *WSLink) start() {
	go l.recvLoop()
	if l.ping > 0 {
		go l.pingLoop()
	}
}

// DialWS connects to a bridge peer listening at url.
func DialWS(url string, sink Sink, logger *zap.Logger) (*WSLink, error) {
	return DialWSInterval(url, sink, logger, 0)
}

// DialWSInterval is DialWS with a keepalive ping every interval.
func DialWSInterval(url string, sink Sink, logger *zap.Logger, interval time.Duration) (*WSLink, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return NewWSLinkInterval(ws, sink, logger, interval), nil
}

// Upgrader upgrades inbound HTTP requests into bridge links. The accepting
// side (usually the backend/host process) registers Handler on its local
// listener and receives one link per peer connection.
type Upgrader struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	accept   func(*WSLink) Sink
	ping     time.Duration
}

// NewUpgrader builds an Upgrader. accept is called once per established
// connection with the new link and returns that connection's message
// consumer; no frame is read before accept returns.
func NewUpgrader(accept func(*WSLink) Sink, logger *zap.Logger) *Upgrader {
	return NewUpgraderInterval(accept, logger, 0)
}

// NewUpgraderInterval is NewUpgrader with a keepalive ping on every accepted
// link at the given interval. An interval <= 0 disables pings.
func NewUpgraderInterval(accept func(*WSLink) Sink, logger *zap.Logger, ping time.Duration) *Upgrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			// The bridge only ever listens on loopback
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		logger: logger,
		accept: accept,
		ping:   ping,
	}
}

func (u *Upgrader) Handler(w http.ResponseWriter, r *http.Request) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	link := newWSLink(ws, nil, u.logger)
	link.ping = u.ping
	link.sink = u.accept(link)
	link.start()
}

// Send writes one frame as a single binary websocket message.
func (l *WSLink) Send(frame []byte) error {
	if l.closed.Load() {
		return &TransportError{Op: "send", Err: net.ErrClosed}
	}
	l.writeMu.Lock()
	err := l.ws.WriteMessage(websocket.BinaryMessage, frame)
	l.writeMu.Unlock()
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (l *WSLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.ws.Close()
}

func (l *WSLink) pingLoop() {
	ticker := time.NewTicker(l.ping)
	defer ticker.Stop()
	for range ticker.C {
		if l.closed.Load() {
			return
		}
		l.writeMu.Lock()
		err := l.ws.WriteMessage(websocket.PingMessage, nil)
		l.writeMu.Unlock()
		if err != nil {
			return // connection broken, receive loop reports it
		}
	}
}

func (l *WSLink) recvLoop() {
	for {
		kind, data, err := l.ws.ReadMessage()
		if err != nil {
			if !l.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				l.logger.Warn("websocket receive failed", zap.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			l.logger.Warn("ignoring non-binary websocket message", zap.Int("kind", kind))
			continue
		}

		msg, err := protocol.DecodeFrame(data)
		if err != nil {
			l.logger.Error("inbound frame rejected", zap.Error(err))
			continue
		}
		if msg.Class == protocol.ClassHeartbeat {
			continue
		}
		if err := l.sink.HandleMessage(msg); err != nil {
			l.logger.Error("inbound message rejected", zap.Stringer("class", msg.Class), zap.Error(err))
		}
	}
}
