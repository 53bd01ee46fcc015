package codec

import (
	"encoding/json"
)

// JSONCodec marshals with encoding/json. It is the format a webview
// frontend can produce without a native library; CBOR is preferred when
// both ends are native code.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
