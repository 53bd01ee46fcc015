package envelope

import (
	"testing"
)

func TestTypeValidity(t *testing.T) {
	for _, typ := range []Type{TypeSend, TypeInvoke, TypePush, TypeResponse} {
		if !typ.Valid() {
			t.Errorf("Type %s should be valid", typ)
		}
	}
	if Type(0).Valid() {
		t.Error("zero Type should be invalid")
	}
	if Type(5).Valid() {
		t.Error("out-of-range Type should be invalid")
	}
}

func TestTypeDirections(t *testing.T) {
	cases := []struct {
		typ            Type
		towardBackend  bool
		towardFrontend bool
	}{
		{TypeSend, true, false},
		{TypeInvoke, true, false},
		{TypePush, false, true},
		{TypeResponse, false, true},
	}
	for _, c := range cases {
		if c.typ.TowardBackend() != c.towardBackend {
			t.Errorf("%s: TowardBackend = %v, want %v", c.typ, c.typ.TowardBackend(), c.towardBackend)
		}
		if c.typ.TowardFrontend() != c.towardFrontend {
			t.Errorf("%s: TowardFrontend = %v, want %v", c.typ, c.typ.TowardFrontend(), c.towardFrontend)
		}
	}
}

func TestEqual(t *testing.T) {
	a := &Envelope{Channel: "ui-sync", Type: TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}
	b := &Envelope{Channel: "ui-sync", Type: TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}
	if !a.Equal(b) {
		t.Error("identical envelopes should be equal")
	}

	c := &Envelope{Channel: "ui-sync", Type: TypeInvoke, Payload: []byte(`{"cmd":"pong"}`)}
	if a.Equal(c) {
		t.Error("envelopes with different payloads should not be equal")
	}

	d := &Envelope{Channel: "other", Type: TypeInvoke, Payload: []byte(`{"cmd":"ping"}`)}
	if a.Equal(d) {
		t.Error("envelopes on different channels should not be equal")
	}

	if a.Equal(nil) {
		t.Error("non-nil envelope should not equal nil")
	}
	var e *Envelope
	if !e.Equal(nil) {
		t.Error("nil envelopes should be equal")
	}
}
