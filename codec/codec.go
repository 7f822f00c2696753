// Package codec is the value layer of the scene protocol: a cursor-based
// byte stream and the type descriptors that read and write values on it.
//
// A request frame is an Int32 opcode followed by the arguments of the named
// operation, each encoded by its descriptor with no separators or padding:
//
//	┌──────────┬────────────┬────────────┬─────┐
//	│ opcode   │ argTypes[0]│ argTypes[1]│ ... │
//	│ Int32 LE │            │            │     │
//	└──────────┴────────────┴────────────┴─────┘
//
// A response frame is the bare encoding of the return value.
//
// Descriptors come in three shapes:
//   - Primitive: scalars, length-prefixed strings and numeric arrays, handle
//     references, Dict and the tagged Any.
//   - Composite: a fixed tuple of sub-descriptors folded into one Go value.
//   - Sequence:  an Int32 count followed by that many elements of one descriptor.
package codec

import (
	"fmt"
	"math"
)

// Unbounded is the Size of a descriptor whose encoding has no fixed width.
const Unbounded = math.MaxInt

// Type describes how one value is laid out on the wire.
type Type interface {
	Name() string
	// Size is the fixed encoded width in bytes, or Unbounded.
	Size() int
	Read(s *Stream, h Handles) (any, error)
	Write(s *Stream, h Handles, v any) error
	// Len is the encoded width of v, used to size outgoing frames exactly.
	Len(v any) (int, error)
}

// Fixed reports whether t has a fixed encoded width.
func Fixed(t Type) bool {
	return t.Size() != Unbounded
}

// HandleKind selects one of the per-session handle tables.
type HandleKind uint8

const (
	KindObject HandleKind = iota
	KindMaterial
	KindPanel
)

func (k HandleKind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindMaterial:
		return "material"
	case KindPanel:
		return "panel"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Ref is a raw handle id. Writers put a Ref on the wire unchanged instead of
// allocating a new handle, and the controller side decodes handles as Refs.
type Ref int32

// NoRef is the id written when a handle-returning operation fails. On the
// material table it also selects the default material.
const NoRef Ref = -1

// Handles resolves handle ids read off the wire and allocates ids for
// objects being written back.
type Handles interface {
	Lookup(kind HandleKind, id int32) (any, error)
	Store(kind HandleKind, obj any) (int32, error)
}

// Refs is the Handles used by the controller, which never holds the objects
// themselves: ids decode to Ref and only Refs can be written.
type Refs struct{}

func (Refs) Lookup(_ HandleKind, id int32) (any, error) {
	return Ref(id), nil
}

func (Refs) Store(kind HandleKind, obj any) (int32, error) {
	if r, ok := obj.(Ref); ok {
		return int32(r), nil
	}
	return 0, fmt.Errorf("%w: %s handle needs a Ref, got %T", ErrValue, kind, obj)
}

// Encode allocates a frame of exactly the encoded width of vals under types
// and writes them in order.
func Encode(h Handles, types []Type, vals []any) ([]byte, error) {
	if len(types) != len(vals) {
		return nil, fmt.Errorf("%w: %d values for %d descriptors", ErrValue, len(vals), len(types))
	}
	size := 0
	for i, t := range types {
		n, err := t.Len(vals[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d (%s): %w", i, t.Name(), err)
		}
		size += n
	}
	s := NewWriter(size)
	for i, t := range types {
		if err := t.Write(s, h, vals[i]); err != nil {
			return nil, fmt.Errorf("arg %d (%s): %w", i, t.Name(), err)
		}
	}
	return s.Bytes(), nil
}

// Decode reads one value of t from frame and requires the frame to be fully
// consumed.
func Decode(h Handles, t Type, frame []byte) (any, error) {
	s := NewReader(frame)
	v, err := t.Read(s, h)
	if err != nil {
		return nil, err
	}
	if err := s.Exhausted(); err != nil {
		return nil, err
	}
	return v, nil
}

func mismatch(t Type, v any) error {
	return mismatchName(t.Name(), v)
}

func mismatchName(name string, v any) error {
	return fmt.Errorf("%w: %s cannot encode %T", ErrValue, name, v)
}
