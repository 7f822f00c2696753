// Package protocol implements the TCP envelope that carries scene frames.
//
// A byte stream has no message boundaries, so every frame travels behind a
// fixed 9-byte header that says what it is and how long it is. The receiver
// reads the header first, then exactly BodyLen bytes.
//
// Frame format:
//
//	0      3  4  5                 9
//	┌──────┬──┬──┬─────────────────┬───────────────┐
//	│magic │v │mt│     bodyLen     │    body ...   │
//	│ scn  │01│  │  uint32 (LE)    │ bodyLen bytes │
//	└──────┴──┴──┴─────────────────┴───────────────┘
//
// The body of a request or response is a scene frame exactly as the
// dispatcher sees it. The envelope carries no sequence number: a connection
// has at most one request in flight and replies come back in order.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic number bytes: "scn".
// Rejects peers that are not speaking the scene protocol (e.g. an HTTP
// client on the wrong port).
const (
	MagicByte1 byte = 0x73 // 's'
	MagicByte2 byte = 0x63 // 'c'
	MagicByte3 byte = 0x6e // 'n'
	Version    byte = 0x01
	HeaderSize int  = 9 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (bodyLen)
)

var (
	ErrInvalidMagic       = errors.New("protocol: invalid magic")
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrUnknownType        = errors.New("protocol: unknown message type")
	ErrBodyTooLarge       = errors.New("protocol: body too large")
)

// MsgType says how the body is to be interpreted.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // controller → front end, opcode + args
	MsgTypeResponse  MsgType = 1 // front end → controller, encoded return value
	MsgTypeHeartbeat MsgType = 2 // keepalive, no body
	MsgTypeText      MsgType = 3 // free-form text, logged by the receiver
	MsgTypeFault     MsgType = 4 // request aborted, body is the diagnostic
)

func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeText:
		return "text"
	case MsgTypeFault:
		return "fault"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

func (t MsgType) valid() bool { return t <= MsgTypeFault }

// Header is the fixed 9-byte frame header.
type Header struct {
	MsgType MsgType
	BodyLen uint32
}

// Limits bounds what Decode will allocate for a body.
type Limits struct {
	MaxBodyBytes uint32
}

// DefaultLimits allows bodies up to 16 MiB, enough for large meshes.
func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 16 << 20}
}

// Encode writes a complete frame (header + body) to w. Callers sharing w
// across goroutines must serialize calls.
func Encode(w io.Writer, t MsgType, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))
	buf[0], buf[1], buf[2] = MagicByte1, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(t)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	// one Write per frame so a frame is never split across writers
	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame from r.
func Decode(r io.Reader, limits Limits) (*Header, []byte, error) {
	var hb [HeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return nil, nil, err
	}

	if hb[0] != MagicByte1 || hb[1] != MagicByte2 || hb[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, hb[0:3])
	}
	if hb[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hb[3])
	}
	t := MsgType(hb[4])
	if !t.valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownType, hb[4])
	}
	n := binary.LittleEndian.Uint32(hb[5:9])
	if limits.MaxBodyBytes > 0 && n > limits.MaxBodyBytes {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, n, limits.MaxBodyBytes)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return &Header{MsgType: t, BodyLen: n}, body, nil
}
