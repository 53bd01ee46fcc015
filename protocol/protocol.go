// Package protocol implements the custom binary frame protocol for procbridge.
//
// It solves the byte stream's sticky packet problem by using a fixed-size
// 10-byte header followed by a variable-length body. The receiver reads the
// header first to determine the body length, then reads exactly that many
// bytes. The body is the codec-marshaled logical form: a Request or a
// Fulfillment.
//
// Frame format:
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│cl│ bodyLen │    body ...    │
//	│ pbp  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
//
// The class byte (cl) discriminates request, fulfillment, and heartbeat
// frames once at decode time, so routing never has to re-inspect the body.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"procbridge/codec"
)

// Magic number bytes: "pbp" (procbridge protocol).
// Used to quickly identify whether the incoming data is a valid frame,
// rejecting non-protocol connections.
const (
	MagicNumber byte = 0x70 // 'p'
	MagicByte2  byte = 0x62 // 'b'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x01
	HeaderSize  int  = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (class) + 4 (bodyLen)
)

// MaxBodyLen caps the body length a header may claim. The length field is
// peer-controlled; without a bound, one corrupt header could demand a 4 GiB
// allocation before the body is ever read.
const MaxBodyLen uint32 = 64 * 1024 * 1024

// Class distinguishes request, fulfillment, and heartbeat frames.
type Class byte

const (
	ClassRequest     Class = 0 // RPC request (application or IPC tunnel)
	ClassFulfillment Class = 1 // RPC response
	ClassHeartbeat   Class = 2 // KeepAlive probe (no body)
)

func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassFulfillment:
		return "fulfillment"
	case ClassHeartbeat:
		return "heartbeat"
	default:
		return "invalid"
	}
}

// StatusOK is the fulfillment status for a successful call.
const StatusOK int32 = 0

// StatusError is the fulfillment status for a failed call; the marshaled
// error detail travels in Result.
const StatusError int32 = 1

// Request is the logical form of one RPC request.
//
// Interface names the logical interface the call targets. The mux layer
// reserves one sentinel interface name as its tunnel marker; every other
// value is ordinary application traffic.
type Request struct {
	Interface string   `json:"interface"`
	Operation string   `json:"operation"`
	ID        string   `json:"id,omitempty"`
	Params    [][]byte `json:"params,omitempty"` // marshaled argument list
}

// Fulfillment is the logical form of one RPC response.
//
// ID correlates to the originating request; for tunneled IPC traffic it is
// reused as the envelope channel. RawResult holds the pre-marshaled value
// when the fulfillment was produced locally, so local delivery can skip a
// second deserialization pass. It never travels on the wire.
type Fulfillment struct {
	Interface string `json:"interface"`
	ID        string `json:"id,omitempty"`
	Result    []byte `json:"result,omitempty"`
	Status    int32  `json:"status"`
	RawResult any    `json:"-" cbor:"-"`
}

// Message is the decoded form of one inbound frame, discriminated by Class.
// Exactly one of Request/Fulfillment is non-nil, or neither for a heartbeat.
type Message struct {
	Class       Class
	Request     *Request
	Fulfillment *Fulfillment
}

// EncodeRequest marshals req with c and writes a complete frame to w.
// The caller must hold a write lock if multiple goroutines share the same
// writer, otherwise frames will interleave and corrupt the stream.
func EncodeRequest(w io.Writer, c codec.Codec, req *Request) error {
	body, err := c.Encode(req)
	if err != nil {
		return err
	}
	return writeFrame(w, byte(c.Type()), ClassRequest, body)
}

// EncodeFulfillment marshals f with c and writes a complete frame to w.
func EncodeFulfillment(w io.Writer, c codec.Codec, f *Fulfillment) error {
	body, err := c.Encode(f)
	if err != nil {
		return err
	}
	return writeFrame(w, byte(c.Type()), ClassFulfillment, body)
}

// EncodeHeartbeat writes an empty heartbeat frame to w.
func EncodeHeartbeat(w io.Writer) error {
	return writeFrame(w, byte(codec.CodecTypeJSON), ClassHeartbeat, nil)
}

// MarshalRequest is EncodeRequest into a byte slice, for message-oriented
// links that send whole frames.
func MarshalRequest(c codec.Codec, req *Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, c, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalFulfillment is EncodeFulfillment into a byte slice.
func MarshalFulfillment(c codec.Codec, f *Fulfillment) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeFulfillment(&buf, c, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFrame(w io.Writer, codecType byte, class Class, body []byte) error {
	buf := make([]byte, HeaderSize)

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = codecType
	buf[5] = byte(class)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be nil for heartbeat frames
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one complete frame from r and returns its logical form.
// It validates the magic number, version, codec type, and class, then
// unmarshals the body with the codec the header names. Uses io.ReadFull to
// guarantee exactly N bytes are read, preventing partial reads.
func Decode(r io.Reader) (*Message, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}

	codecType, class, bodyLen, err := parseHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	return decodeBody(codecType, class, body)
}

// DecodeFrame parses a single complete frame held in buf. Message-oriented
// links (websocket) deliver whole frames, so no reader is involved.
func DecodeFrame(buf []byte) (*Message, error) {
	if len(buf) < HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	codecType, class, bodyLen, err := parseHeader(buf[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if len(buf) != HeaderSize+int(bodyLen) {
		return nil, fmt.Errorf("frame length mismatch: header says %d body bytes, got %d", bodyLen, len(buf)-HeaderSize)
	}
	return decodeBody(codecType, class, buf[HeaderSize:])
}

func parseHeader(h []byte) (byte, Class, uint32, error) {
	// Validate magic number — reject non-protocol connections
	if h[0] != MagicNumber || h[1] != MagicByte2 || h[2] != MagicByte3 {
		return 0, 0, 0, fmt.Errorf("invalid magic number: %x", h[0:3])
	}
	if h[3] != Version {
		return 0, 0, 0, fmt.Errorf("unsupported version: %d", h[3])
	}
	if h[4] != byte(codec.CodecTypeJSON) && h[4] != byte(codec.CodecTypeCBOR) {
		return 0, 0, 0, fmt.Errorf("unsupported codec type: %d", h[4])
	}
	class := Class(h[5])
	if class != ClassRequest && class != ClassFulfillment && class != ClassHeartbeat {
		return 0, 0, 0, fmt.Errorf("unsupported message class: %d", h[5])
	}
	bodyLen := binary.BigEndian.Uint32(h[6:10])
	if bodyLen > MaxBodyLen {
		return 0, 0, 0, fmt.Errorf("body too large: %d bytes (max %d)", bodyLen, MaxBodyLen)
	}
	return h[4], class, bodyLen, nil
}

func decodeBody(codecType byte, class Class, body []byte) (*Message, error) {
	msg := &Message{Class: class}
	if class == ClassHeartbeat {
		return msg, nil
	}

	c := codec.GetCodec(codec.CodecType(codecType))
	switch class {
	case ClassRequest:
		req := &Request{}
		if err := c.Decode(body, req); err != nil {
			return nil, fmt.Errorf("decode request body: %w", err)
		}
		msg.Request = req
	case ClassFulfillment:
		f := &Fulfillment{}
		if err := c.Decode(body, f); err != nil {
			return nil, fmt.Errorf("decode fulfillment body: %w", err)
		}
		msg.Fulfillment = f
	}
	return msg, nil
}
