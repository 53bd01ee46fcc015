package mux

import (
	"errors"
	"sync"
	"testing"

	"procbridge/codec"
	"procbridge/envelope"
	"procbridge/protocol"
)

type captureLink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (l *captureLink) Send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, frame)
	return nil
}

func (l *captureLink) Close() error { return nil }

func (l *captureLink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func newTestMux(ct codec.CodecType) (*Mux, *captureLink) {
	link := &captureLink{}
	return New(codec.GetCodec(ct), link, nil), link
}

func mustWrapRequest(t *testing.T, ct codec.CodecType, env *envelope.Envelope) *protocol.Request {
	t.Helper()
	req, err := WrapRequest(codec.GetCodec(ct), env)
	if err != nil {
		t.Fatalf("WrapRequest failed: %v", err)
	}
	return req
}

// Non-interference: a request addressed to a real application interface must
// be declined untouched so downstream dispatch sees it exactly as decoded.
func TestHandleRequestDeclinesApplicationTraffic(t *testing.T) {
	m, link := newTestMux(codec.CodecTypeJSON)

	var delivered int
	m.Listen(func(*envelope.Envelope) { delivered++ })

	req := &protocol.Request{
		Interface: "Scene",
		Operation: "LoadMesh",
		ID:        "req-1",
		Params:    [][]byte{[]byte(`{"name":"cube"}`)},
	}
	handled, err := m.HandleRequest(req)
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if handled {
		t.Error("application request must not be consumed by the mux")
	}
	if delivered != 0 {
		t.Errorf("listeners received %d envelopes from application traffic", delivered)
	}
	if req.Interface != "Scene" || len(req.Params) != 1 {
		t.Error("declined request was mutated")
	}
	if link.count() != 0 {
		t.Error("declining a request must not produce outbound traffic")
	}
}

func TestHandleFulfillmentDeclinesApplicationTraffic(t *testing.T) {
	m, _ := newTestMux(codec.CodecTypeJSON)
	handled, err := m.HandleFulfillment(&protocol.Fulfillment{Interface: "Scene", ID: "req-1"})
	if err != nil {
		t.Fatalf("HandleFulfillment failed: %v", err)
	}
	if handled {
		t.Error("application fulfillment must not be consumed by the mux")
	}
}

// Broadcast fan-out: N listeners each get the envelope once, in registration
// order.
func TestBroadcastFanOut(t *testing.T) {
	m, _ := newTestMux(codec.CodecTypeJSON)

	const n = 5
	var mu sync.Mutex
	var order []int
	var received []*envelope.Envelope
	for i := 0; i < n; i++ {
		i := i
		m.Listen(func(env *envelope.Envelope) {
			mu.Lock()
			order = append(order, i)
			received = append(received, env)
			mu.Unlock()
		})
	}

	in := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypeSend, Payload: []byte(`{"cmd":"ping"}`)}
	handled, err := m.HandleRequest(mustWrapRequest(t, codec.CodecTypeJSON, in))
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if !handled {
		t.Fatal("sentinel request should be handled")
	}

	if len(order) != n {
		t.Fatalf("got %d deliveries, want %d", len(order), n)
	}
	for i, idx := range order {
		if idx != i {
			t.Fatalf("delivery order %v not registration order", order)
		}
	}
	for i, env := range received {
		if !env.Equal(in) {
			t.Errorf("listener %d received %+v, want %+v", i, env, in)
		}
	}
}

// A listener that registers another listener mid-broadcast must not cause
// the new listener to see the message being delivered.
func TestListenerRegisteredDuringDispatch(t *testing.T) {
	m, _ := newTestMux(codec.CodecTypeJSON)

	var late int
	m.Listen(func(*envelope.Envelope) {
		m.Listen(func(*envelope.Envelope) { late++ })
	})

	in := &envelope.Envelope{Channel: "c", Type: envelope.TypeSend}
	if _, err := m.HandleRequest(mustWrapRequest(t, codec.CodecTypeJSON, in)); err != nil {
		t.Fatalf("first HandleRequest failed: %v", err)
	}
	if late != 0 {
		t.Error("listener registered during dispatch received the in-flight message")
	}

	// It does receive the next one
	if _, err := m.HandleRequest(mustWrapRequest(t, codec.CodecTypeJSON, in)); err != nil {
		t.Fatalf("second HandleRequest failed: %v", err)
	}
	if late != 1 {
		t.Errorf("late listener received %d messages for the second dispatch, want 1", late)
	}
}

// A malformed sentinel-tagged payload produces one error and must not
// prevent correct handling of the next, well-formed message.
func TestMalformedMessageIsolation(t *testing.T) {
	m, _ := newTestMux(codec.CodecTypeJSON)

	var delivered []*envelope.Envelope
	m.Listen(func(env *envelope.Envelope) { delivered = append(delivered, env) })

	bad := &protocol.Request{
		Interface: Sentinel,
		Operation: SentinelOperation,
		ID:        "c",
		Params:    [][]byte{[]byte("garbage")},
	}
	handled, err := m.HandleRequest(bad)
	if !handled {
		t.Error("sentinel-tagged request is the mux's even when corrupt")
	}
	var serr *SerializationError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want SerializationError", err)
	}
	if len(delivered) != 0 {
		t.Fatal("corrupt message must not reach listeners")
	}

	good := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}
	handled, err = m.HandleRequest(mustWrapRequest(t, codec.CodecTypeJSON, good))
	if err != nil || !handled {
		t.Fatalf("well-formed follow-up not handled: handled=%v err=%v", handled, err)
	}
	if len(delivered) != 1 || !delivered[0].Equal(good) {
		t.Errorf("follow-up delivery wrong: %+v", delivered)
	}
}

// Emit must produce frames the protocol layer decodes back to sentinel
// traffic of the right class for each direction.
func TestEmitFrames(t *testing.T) {
	m, link := newTestMux(codec.CodecTypeCBOR)
	c := codec.GetCodec(codec.CodecTypeCBOR)

	toBackend := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}
	if err := m.Emit(toBackend); err != nil {
		t.Fatalf("Emit(invoke) failed: %v", err)
	}
	toFrontend := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypeResponse, Payload: []byte(`{"cmd":"pong"}`)}
	if err := m.Emit(toFrontend); err != nil {
		t.Fatalf("Emit(response) failed: %v", err)
	}

	if link.count() != 2 {
		t.Fatalf("link saw %d frames, want 2", link.count())
	}

	msg, err := protocol.DecodeFrame(link.frames[0])
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if msg.Class != protocol.ClassRequest || ClassifyRequest(msg.Request) != ClassIPCEnvelope {
		t.Errorf("backend-bound frame decoded wrong: %+v", msg)
	}
	env, err := UnwrapRequest(c, msg.Request)
	if err != nil || !env.Equal(toBackend) {
		t.Errorf("backend-bound envelope mismatch: %+v, err %v", env, err)
	}

	msg, err = protocol.DecodeFrame(link.frames[1])
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if msg.Class != protocol.ClassFulfillment || ClassifyFulfillment(msg.Fulfillment) != ClassIPCEnvelope {
		t.Errorf("frontend-bound frame decoded wrong: %+v", msg)
	}
	env, err = UnwrapFulfillment(c, msg.Fulfillment)
	if err != nil || !env.Equal(toFrontend) {
		t.Errorf("frontend-bound envelope mismatch: %+v, err %v", env, err)
	}
}

func TestEmitInvalidType(t *testing.T) {
	m, link := newTestMux(codec.CodecTypeJSON)
	err := m.Emit(&envelope.Envelope{Channel: "c", Type: envelope.Type(99)})
	var mismatch *ProtocolMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("got %v, want ProtocolMismatchError", err)
	}
	if link.count() != 0 {
		t.Error("invalid envelope must not reach the link")
	}
}

func TestClassify(t *testing.T) {
	if ClassifyRequest(&protocol.Request{Interface: Sentinel}) != ClassIPCEnvelope {
		t.Error("sentinel request should classify as IPC")
	}
	if ClassifyRequest(&protocol.Request{Interface: "Scene"}) != ClassApplication {
		t.Error("application request should classify as application")
	}
	if ClassifyFulfillment(&protocol.Fulfillment{Interface: Sentinel}) != ClassIPCEnvelope {
		t.Error("sentinel fulfillment should classify as IPC")
	}
	if ClassifyFulfillment(&protocol.Fulfillment{Interface: "Scene"}) != ClassApplication {
		t.Error("application fulfillment should classify as application")
	}
}
