// Package codec provides the marshaling layer: application values in and out
// of their wire representation. The mux relies only on the round-trip
// property (Decode(Encode(v)) preserves v), never on the encoding scheme.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=CBOR
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return NewCBORCodec()
}
