package codec

import "fmt"

// Primitive is a descriptor backed by a pair of stream functions.
type Primitive struct {
	name    string
	size    int
	read    func(s *Stream, h Handles) (any, error)
	write   func(s *Stream, h Handles, v any) error
	measure func(v any) (int, error) // nil when size is fixed
	min     int                      // smallest encoding when size is Unbounded
}

func (p *Primitive) Name() string { return p.name }
func (p *Primitive) Size() int    { return p.size }

func (p *Primitive) Read(s *Stream, h Handles) (any, error) {
	return p.read(s, h)
}

func (p *Primitive) Write(s *Stream, h Handles, v any) error {
	return p.write(s, h, v)
}

func (p *Primitive) Len(v any) (int, error) {
	if p.measure == nil {
		return p.size, nil
	}
	return p.measure(v)
}

func (p *Primitive) String() string { return p.name }

// Vec2 is a 2D point on the wire as two Float32.
type Vec2 struct{ X, Y float32 }

// Vec3 is a 3D point or direction on the wire as three Float32.
type Vec3 struct{ X, Y, Z float32 }

// Color is an RGB triple on the wire as three Float32.
type Color struct{ R, G, B float32 }

// Matrix4 is a 4x4 transform, 16 Float32 in column-major order.
type Matrix4 [16]float32

func scalar[T any](name string, size int, read func(*Stream) (T, error), write func(*Stream, T) error) *Primitive {
	p := &Primitive{name: name, size: size}
	p.read = func(s *Stream, _ Handles) (any, error) {
		v, err := read(s)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	p.write = func(s *Stream, _ Handles, v any) error {
		x, ok := v.(T)
		if !ok {
			return mismatch(p, v)
		}
		return write(s, x)
	}
	return p
}

// array builds an Int32-length-prefixed numeric array descriptor.
func array[T any](name string, elem int, read func(*Stream, int) ([]T, error), write func(*Stream, []T) error) *Primitive {
	p := &Primitive{name: name, size: Unbounded, min: 4}
	p.read = func(s *Stream, _ Handles) (any, error) {
		n, err := s.ReadCount(elem)
		if err != nil {
			return nil, err
		}
		v, err := read(s, n)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	p.write = func(s *Stream, _ Handles, v any) error {
		x, ok := v.([]T)
		if !ok {
			return mismatch(p, v)
		}
		if 4+elem*len(x) > s.Remaining() {
			return s.boundsErr(4 + elem*len(x))
		}
		if err := s.WriteCount(len(x)); err != nil {
			return err
		}
		return write(s, x)
	}
	p.measure = func(v any) (int, error) {
		x, ok := v.([]T)
		if !ok {
			return 0, mismatch(p, v)
		}
		return 4 + elem*len(x), nil
	}
	return p
}

// handleRef builds the Int32 descriptor for one handle table. Reading
// resolves the id; writing a live object allocates a new id for it.
func handleRef(name string, kind HandleKind) *Primitive {
	p := &Primitive{name: name, size: 4}
	p.read = func(s *Stream, h Handles) (any, error) {
		id, err := s.ReadInt32()
		if err != nil {
			return nil, err
		}
		if h == nil {
			h = Refs{}
		}
		return h.Lookup(kind, id)
	}
	p.write = func(s *Stream, h Handles, v any) error {
		if s.Remaining() < 4 {
			return s.boundsErr(4)
		}
		if r, ok := v.(Ref); ok {
			return s.WriteInt32(int32(r))
		}
		if v == nil {
			return fmt.Errorf("%w: nil %s object", ErrValue, name)
		}
		if h == nil {
			h = Refs{}
		}
		id, err := h.Store(kind, v)
		if err != nil {
			return err
		}
		return s.WriteInt32(id)
	}
	return p
}

var (
	// None is the void descriptor: zero bytes either way.
	None = &Primitive{
		name:  "None",
		size:  0,
		read:  func(*Stream, Handles) (any, error) { return nil, nil },
		write: func(*Stream, Handles, any) error { return nil },
	}

	Bool    = scalar("Bool", 1, (*Stream).ReadBool, (*Stream).WriteBool)
	Uint8   = scalar("UInt8", 1, (*Stream).ReadUint8, (*Stream).WriteUint8)
	Int16   = scalar("Int16", 2, (*Stream).ReadInt16, (*Stream).WriteInt16)
	Uint16  = scalar("UInt16", 2, (*Stream).ReadUint16, (*Stream).WriteUint16)
	Int32   = scalar("Int32", 4, (*Stream).ReadInt32, (*Stream).WriteInt32)
	Uint32  = scalar("UInt32", 4, (*Stream).ReadUint32, (*Stream).WriteUint32)
	Int64   = scalar("Int64", 8, (*Stream).ReadInt64, (*Stream).WriteInt64)
	Uint64  = scalar("UInt64", 8, (*Stream).ReadUint64, (*Stream).WriteUint64)
	Float16 = scalar("Float16", 2, (*Stream).ReadFloat16, (*Stream).WriteFloat16)
	Float32 = scalar("Float32", 4, (*Stream).ReadFloat32, (*Stream).WriteFloat32)
	Float64 = scalar("Float64", 8, (*Stream).ReadFloat64, (*Stream).WriteFloat64)

	Matrix4x4 = scalar("Matrix4x4", 16*4,
		func(s *Stream) (Matrix4, error) {
			var m Matrix4
			v, err := s.ReadFloat32s(16)
			if err != nil {
				return m, err
			}
			copy(m[:], v)
			return m, nil
		},
		func(s *Stream, m Matrix4) error { return s.WriteFloat32s(m[:]) })

	ArrayFloat32 = array("ArrayFloat32", 4, (*Stream).ReadFloat32s, (*Stream).WriteFloat32s)
	ArrayInt32   = array("ArrayInt32", 4, (*Stream).ReadInt32s, (*Stream).WriteInt32s)
	ArrayUint32  = array("ArrayUInt32", 4, (*Stream).ReadUint32s, (*Stream).WriteUint32s)
	ArrayUint8   = array("ArrayUInt8", 1, (*Stream).ReadUint8s, (*Stream).WriteUint8s)

	ObjectID   = handleRef("Id", KindObject)
	MaterialID = handleRef("MatId", KindMaterial)
	PanelID    = handleRef("GUIId", KindPanel)
)

// Str is a varint-length-prefixed UTF-8 string.
var Str = &Primitive{
	name: "Str",
	size: Unbounded,
	min:  1,
	read: func(s *Stream, _ Handles) (any, error) {
		v, err := s.ReadString()
		if err != nil {
			return nil, err
		}
		return v, nil
	},
	write: func(s *Stream, _ Handles, v any) error {
		x, ok := v.(string)
		if !ok {
			return mismatchName("Str", v)
		}
		return s.WriteString(x)
	},
	measure: func(v any) (int, error) {
		x, ok := v.(string)
		if !ok {
			return 0, mismatchName("Str", v)
		}
		return StringLen(x), nil
	},
}
