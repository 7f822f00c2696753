package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Stream is a cursor over a fixed-size frame buffer. The same type is used
// for decoding a received frame and for filling a pre-sized outgoing one.
//
//	buf:  [ ... consumed ... | ... remaining ... ]
//	                         ^ off
//
// Every method advances the cursor by exactly the encoded width of the value
// or fails with ErrBounds and leaves the cursor where it was.
type Stream struct {
	buf   []byte
	off   int
	depth int // dict nesting while reading or writing
}

// NewReader wraps a received frame for decoding.
func NewReader(frame []byte) *Stream {
	return &Stream{buf: frame}
}

// NewWriter allocates an output frame of exactly size bytes.
func NewWriter(size int) *Stream {
	return &Stream{buf: make([]byte, size)}
}

// Offset returns the cursor position.
func (s *Stream) Offset() int { return s.off }

// Len returns the frame size.
func (s *Stream) Len() int { return len(s.buf) }

// Remaining returns how many bytes are left after the cursor.
func (s *Stream) Remaining() int { return len(s.buf) - s.off }

// Bytes returns the whole underlying frame.
func (s *Stream) Bytes() []byte { return s.buf }

// Exhausted reports a protocol violation unless the cursor sits exactly at
// the end of the frame.
func (s *Stream) Exhausted() error {
	if s.off != len(s.buf) {
		return fmt.Errorf("%w: stream not exhausted, offset %d of %d", ErrProtocol, s.off, len(s.buf))
	}
	return nil
}

func (s *Stream) boundsErr(n int) error {
	return fmt.Errorf("%w: need %d bytes at offset %d, frame is %d", ErrBounds, n, s.off, len(s.buf))
}

// next reserves n bytes at the cursor and advances past them.
func (s *Stream) next(n int) ([]byte, error) {
	if n < 0 || n > len(s.buf)-s.off {
		return nil, s.boundsErr(n)
	}
	b := s.buf[s.off : s.off+n]
	s.off += n
	return b, nil
}

func (s *Stream) ReadUint8() (uint8, error) {
	b, err := s.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Stream) WriteUint8(v uint8) error {
	b, err := s.next(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (s *Stream) ReadBool() (bool, error) {
	v, err := s.ReadUint8()
	return v != 0, err
}

func (s *Stream) WriteBool(v bool) error {
	if v {
		return s.WriteUint8(1)
	}
	return s.WriteUint8(0)
}

func (s *Stream) ReadUint16() (uint16, error) {
	b, err := s.next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *Stream) WriteUint16(v uint16) error {
	b, err := s.next(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (s *Stream) ReadInt16() (int16, error) {
	v, err := s.ReadUint16()
	return int16(v), err
}

func (s *Stream) WriteInt16(v int16) error { return s.WriteUint16(uint16(v)) }

func (s *Stream) ReadUint32() (uint32, error) {
	b, err := s.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Stream) WriteUint32(v uint32) error {
	b, err := s.next(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

func (s *Stream) WriteInt32(v int32) error { return s.WriteUint32(uint32(v)) }

func (s *Stream) ReadUint64() (uint64, error) {
	b, err := s.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s *Stream) WriteUint64(v uint64) error {
	b, err := s.next(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// ReadInt64 decodes into a native int64, so the full 64-bit range survives.
func (s *Stream) ReadInt64() (int64, error) {
	v, err := s.ReadUint64()
	return int64(v), err
}

func (s *Stream) WriteInt64(v int64) error { return s.WriteUint64(uint64(v)) }

// ReadFloat16 widens an IEEE half-precision value to float32.
func (s *Stream) ReadFloat16() (float32, error) {
	v, err := s.ReadUint16()
	if err != nil {
		return 0, err
	}
	return float16.Frombits(v).Float32(), nil
}

func (s *Stream) WriteFloat16(v float32) error {
	return s.WriteUint16(float16.Fromfloat32(v).Bits())
}

func (s *Stream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	return math.Float32frombits(v), err
}

func (s *Stream) WriteFloat32(v float32) error { return s.WriteUint32(math.Float32bits(v)) }

func (s *Stream) ReadFloat64() (float64, error) {
	v, err := s.ReadUint64()
	return math.Float64frombits(v), err
}

func (s *Stream) WriteFloat64(v float64) error { return s.WriteUint64(math.Float64bits(v)) }

// ReadUvarint reads a base-128 length: 7 value bits per byte, low group
// first, high bit set while more bytes follow.
func (s *Stream) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(s.buf[s.off:])
	switch {
	case n == 0:
		return 0, fmt.Errorf("%w: truncated varint at offset %d", ErrBounds, s.off)
	case n < 0:
		return 0, fmt.Errorf("%w: varint overflows 64 bits at offset %d", ErrProtocol, s.off)
	}
	s.off += n
	return v, nil
}

func (s *Stream) WriteUvarint(v uint64) error {
	b, err := s.next(UvarintLen(v))
	if err != nil {
		return err
	}
	binary.PutUvarint(b, v)
	return nil
}

// UvarintLen is the encoded width of v as a base-128 length.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ReadString reads a varint length followed by that many bytes. The bytes
// are taken as-is; invalid UTF-8 is not rejected.
func (s *Stream) ReadString() (string, error) {
	start := s.off
	n, err := s.ReadUvarint()
	if err != nil {
		return "", err
	}
	if n > uint64(s.Remaining()) {
		s.off = start
		return "", fmt.Errorf("%w: string of %d bytes at offset %d, frame is %d", ErrBounds, n, start, len(s.buf))
	}
	b, _ := s.next(int(n))
	return string(b), nil
}

func (s *Stream) WriteString(v string) error {
	if StringLen(v) > s.Remaining() {
		return fmt.Errorf("%w: string of %d bytes at offset %d, frame is %d", ErrBounds, len(v), s.off, len(s.buf))
	}
	_ = s.WriteUvarint(uint64(len(v)))
	b, _ := s.next(len(v))
	copy(b, v)
	return nil
}

// StringLen is the encoded width of v including its length prefix.
func StringLen(v string) int {
	return UvarintLen(uint64(len(v))) + len(v)
}

// ReadCount reads an Int32 element count and rejects negative values and
// counts that cannot fit in the rest of the frame at elemSize bytes each.
func (s *Stream) ReadCount(elemSize int) (int, error) {
	start := s.off
	n, err := s.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		s.off = start
		return 0, fmt.Errorf("%w: negative count %d at offset %d", ErrProtocol, n, start)
	}
	if elemSize > 0 && int64(n)*int64(elemSize) > int64(s.Remaining()) {
		s.off = start
		return 0, fmt.Errorf("%w: %d elements of %d bytes at offset %d, frame is %d", ErrBounds, n, elemSize, start, len(s.buf))
	}
	return int(n), nil
}

func (s *Stream) WriteCount(n int) error {
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: count %d does not fit Int32", ErrValue, n)
	}
	return s.WriteInt32(int32(n))
}

// ReadFloat32s reads n float32 values with no length prefix.
func (s *Stream) ReadFloat32s(n int) ([]float32, error) {
	b, err := s.next(n * 4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func (s *Stream) WriteFloat32s(v []float32) error {
	b, err := s.next(len(v) * 4)
	if err != nil {
		return err
	}
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return nil
}

func (s *Stream) ReadInt32s(n int) ([]int32, error) {
	b, err := s.next(n * 4)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func (s *Stream) WriteInt32s(v []int32) error {
	b, err := s.next(len(v) * 4)
	if err != nil {
		return err
	}
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], uint32(x))
	}
	return nil
}

func (s *Stream) ReadUint32s(n int) ([]uint32, error) {
	b, err := s.next(n * 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

func (s *Stream) WriteUint32s(v []uint32) error {
	b, err := s.next(len(v) * 4)
	if err != nil {
		return err
	}
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return nil
}

func (s *Stream) ReadUint8s(n int) ([]uint8, error) {
	b, err := s.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]uint8, n)
	copy(out, b)
	return out, nil
}

func (s *Stream) WriteUint8s(v []uint8) error {
	b, err := s.next(len(v))
	if err != nil {
		return err
	}
	copy(b, v)
	return nil
}
