package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
)

// CBORCodec uses canonical CBOR (RFC 8949). Deterministic output: the same
// value always encodes to the same bytes, which matters because the protocol
// encoder is specified as pure and deterministic.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a codec with canonical encode options. The option sets
// used here are valid, so the EncMode/DecMode constructors cannot fail.
func NewCBORCodec() *CBORCodec {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &CBORCodec{enc: em, dec: dm}
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
