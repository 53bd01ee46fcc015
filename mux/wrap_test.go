package mux

import (
	"errors"
	"testing"

	"procbridge/codec"
	"procbridge/envelope"
	"procbridge/protocol"
)

// Round-trip property: wrap then unwrap preserves every envelope bit for
// bit, for all four types and both codecs, without any transport involved.
func TestWrapUnwrapRoundTrip(t *testing.T) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		c := codec.GetCodec(ct)
		for _, typ := range []envelope.Type{envelope.TypeSend, envelope.TypeInvoke, envelope.TypePush, envelope.TypeResponse} {
			in := &envelope.Envelope{
				Channel: "ui-sync",
				Type:    typ,
				Payload: []byte(`{"cmd":"ping","nested":{"n":1}}`),
			}

			var out *envelope.Envelope
			var err error
			if typ.TowardBackend() {
				req, werr := WrapRequest(c, in)
				if werr != nil {
					t.Fatalf("codec %d type %s: WrapRequest failed: %v", ct, typ, werr)
				}
				if req.Interface != Sentinel || req.Operation != SentinelOperation {
					t.Errorf("codec %d type %s: wrapped request not addressed to sentinel: %+v", ct, typ, req)
				}
				if req.ID != in.Channel {
					t.Errorf("codec %d type %s: request id = %q, want channel %q", ct, typ, req.ID, in.Channel)
				}
				out, err = UnwrapRequest(c, req)
			} else {
				f, werr := WrapFulfillment(c, in)
				if werr != nil {
					t.Fatalf("codec %d type %s: WrapFulfillment failed: %v", ct, typ, werr)
				}
				if f.Interface != Sentinel || f.ID != in.Channel || f.Status != protocol.StatusOK {
					t.Errorf("codec %d type %s: wrapped fulfillment malformed: %+v", ct, typ, f)
				}
				out, err = UnwrapFulfillment(c, f)
			}
			if err != nil {
				t.Fatalf("codec %d type %s: unwrap failed: %v", ct, typ, err)
			}
			if !out.Equal(in) {
				t.Errorf("codec %d type %s: round trip mismatch: got %+v, want %+v", ct, typ, out, in)
			}
		}
	}
}

// A full encode→decode→unwrap cycle through the protocol layer must also
// preserve the envelope.
func TestWrapSurvivesWire(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeCBOR)
	in := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}

	req, err := WrapRequest(c, in)
	if err != nil {
		t.Fatalf("WrapRequest failed: %v", err)
	}
	frame, err := protocol.MarshalRequest(c, req)
	if err != nil {
		t.Fatalf("MarshalRequest failed: %v", err)
	}
	msg, err := protocol.DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	out, err := UnwrapRequest(c, msg.Request)
	if err != nil {
		t.Fatalf("UnwrapRequest failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("wire round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestWrapRejectsWrongDirection(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeJSON)

	push := &envelope.Envelope{Channel: "c", Type: envelope.TypePush}
	if _, err := WrapRequest(c, push); err == nil {
		t.Error("WrapRequest should reject a frontend-bound envelope")
	}

	send := &envelope.Envelope{Channel: "c", Type: envelope.TypeSend}
	if _, err := WrapFulfillment(c, send); err == nil {
		t.Error("WrapFulfillment should reject a backend-bound envelope")
	}
}

func TestUnwrapMalformed(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeJSON)

	var mismatch *ProtocolMismatchError
	var serr *SerializationError

	// Wrong param count is protocol corruption
	_, err := UnwrapRequest(c, &protocol.Request{Interface: Sentinel, Operation: SentinelOperation})
	if !errors.As(err, &mismatch) {
		t.Errorf("empty params: got %v, want ProtocolMismatchError", err)
	}

	// Undecodable param is a serialization failure
	_, err = UnwrapRequest(c, &protocol.Request{
		Interface: Sentinel,
		Operation: SentinelOperation,
		Params:    [][]byte{[]byte("not an envelope")},
	})
	if !errors.As(err, &serr) {
		t.Errorf("corrupt param: got %v, want SerializationError", err)
	}

	// Decodable but shapeless envelope is protocol corruption
	_, err = UnwrapRequest(c, &protocol.Request{
		Interface: Sentinel,
		Operation: SentinelOperation,
		Params:    [][]byte{[]byte(`{}`)},
	})
	if !errors.As(err, &mismatch) {
		t.Errorf("shapeless envelope: got %v, want ProtocolMismatchError", err)
	}

	// Failed tunnel fulfillment cannot carry an envelope
	_, err = UnwrapFulfillment(c, &protocol.Fulfillment{Interface: Sentinel, ID: "c", Status: protocol.StatusError})
	if !errors.As(err, &mismatch) {
		t.Errorf("error-status fulfillment: got %v, want ProtocolMismatchError", err)
	}
}

// UnwrapFulfillment must decode Result, never RawResult: a fulfillment that
// arrives off the wire has no RawResult, and a stale local one must not leak
// into delivery.
func TestUnwrapFulfillmentIgnoresRawResult(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeJSON)
	in := &envelope.Envelope{Channel: "ui-sync", Type: envelope.TypePush, Payload: []byte(`1`)}

	f, err := WrapFulfillment(c, in)
	if err != nil {
		t.Fatalf("WrapFulfillment failed: %v", err)
	}
	f.RawResult = &envelope.Envelope{Channel: "bogus", Type: envelope.TypePush}

	out, err := UnwrapFulfillment(c, f)
	if err != nil {
		t.Fatalf("UnwrapFulfillment failed: %v", err)
	}
	if out.Channel != "ui-sync" {
		t.Errorf("unwrap read RawResult instead of Result: got channel %q", out.Channel)
	}
}
