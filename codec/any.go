package codec

import (
	"fmt"
	"sort"
)

// Tag is the leading byte of an Any value. The assignment is part of the
// wire contract.
type Tag uint8

const (
	TagBool    Tag = 0
	TagUint8   Tag = 1
	TagInt32   Tag = 2
	TagInt64   Tag = 3
	TagFloat32 Tag = 4
	TagFloat64 Tag = 5
	TagString  Tag = 6
	TagColor   Tag = 7
	// TagColorAlias carries the same payload as TagColor. It is accepted on
	// read and never produced on write.
	TagColorAlias Tag = 8
	TagDict       Tag = 9
)

// Any is a self-describing value. The set of implementations is closed:
// AnyBool, AnyUint8, AnyInt32, AnyInt64, AnyFloat32, AnyFloat64, AnyString,
// AnyColor and AnyDict.
type Any interface {
	Tag() Tag
	sealed()
}

type (
	AnyBool    bool
	AnyUint8   uint8
	AnyInt32   int32
	AnyInt64   int64
	AnyFloat32 float32
	AnyFloat64 float64
	AnyString  string
	AnyColor   Color
	AnyDict    map[string]Any
)

func (AnyBool) Tag() Tag    { return TagBool }
func (AnyUint8) Tag() Tag   { return TagUint8 }
func (AnyInt32) Tag() Tag   { return TagInt32 }
func (AnyInt64) Tag() Tag   { return TagInt64 }
func (AnyFloat32) Tag() Tag { return TagFloat32 }
func (AnyFloat64) Tag() Tag { return TagFloat64 }
func (AnyString) Tag() Tag  { return TagString }
func (AnyColor) Tag() Tag   { return TagColor }
func (AnyDict) Tag() Tag    { return TagDict }

func (AnyBool) sealed()    {}
func (AnyUint8) sealed()   {}
func (AnyInt32) sealed()   {}
func (AnyInt64) sealed()   {}
func (AnyFloat32) sealed() {}
func (AnyFloat64) sealed() {}
func (AnyString) sealed()  {}
func (AnyColor) sealed()   {}
func (AnyDict) sealed()    {}

// ReadAny reads a tag byte and its payload.
func (s *Stream) ReadAny() (Any, error) {
	start := s.off
	tag, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch Tag(tag) {
	case TagBool:
		v, err := s.ReadBool()
		return AnyBool(v), err
	case TagUint8:
		v, err := s.ReadUint8()
		return AnyUint8(v), err
	case TagInt32:
		v, err := s.ReadInt32()
		return AnyInt32(v), err
	case TagInt64:
		v, err := s.ReadInt64()
		return AnyInt64(v), err
	case TagFloat32:
		v, err := s.ReadFloat32()
		return AnyFloat32(v), err
	case TagFloat64:
		v, err := s.ReadFloat64()
		return AnyFloat64(v), err
	case TagString:
		v, err := s.ReadString()
		return AnyString(v), err
	case TagColor, TagColorAlias:
		v, err := s.ReadFloat32s(3)
		if err != nil {
			return nil, err
		}
		return AnyColor{v[0], v[1], v[2]}, nil
	case TagDict:
		v, err := s.ReadDict()
		return v, err
	default:
		s.off = start
		return nil, fmt.Errorf("%w: unknown Any tag %d at offset %d", ErrProtocol, tag, start)
	}
}

// WriteAny writes v with its tag.
func (s *Stream) WriteAny(v Any) error {
	if v == nil {
		return fmt.Errorf("%w: nil Any", ErrValue)
	}
	if err := s.WriteUint8(uint8(v.Tag())); err != nil {
		return err
	}
	switch x := v.(type) {
	case AnyBool:
		return s.WriteBool(bool(x))
	case AnyUint8:
		return s.WriteUint8(uint8(x))
	case AnyInt32:
		return s.WriteInt32(int32(x))
	case AnyInt64:
		return s.WriteInt64(int64(x))
	case AnyFloat32:
		return s.WriteFloat32(float32(x))
	case AnyFloat64:
		return s.WriteFloat64(float64(x))
	case AnyString:
		return s.WriteString(string(x))
	case AnyColor:
		return s.WriteFloat32s([]float32{x.R, x.G, x.B})
	case AnyDict:
		return s.WriteDict(x)
	}
	return fmt.Errorf("%w: Any of type %T", ErrValue, v)
}

// AnyLen is the encoded width of v including its tag.
func AnyLen(v Any) (int, error) {
	return anyLen(v, 0)
}

func anyLen(v Any, depth int) (int, error) {
	switch x := v.(type) {
	case AnyBool, AnyUint8:
		return 2, nil
	case AnyInt32, AnyFloat32:
		return 5, nil
	case AnyInt64, AnyFloat64:
		return 9, nil
	case AnyString:
		return 1 + StringLen(string(x)), nil
	case AnyColor:
		return 13, nil
	case AnyDict:
		n, err := dictLen(x, depth)
		return 1 + n, err
	}
	return 0, fmt.Errorf("%w: Any of type %T", ErrValue, v)
}

// MaxDictDepth is how deeply dicts may nest inside one value.
const MaxDictDepth = 64

// ReadDict reads an Int32 key count followed by key/Any pairs.
func (s *Stream) ReadDict() (AnyDict, error) {
	if s.depth >= MaxDictDepth {
		return nil, fmt.Errorf("%w: dicts nested deeper than %d at offset %d", ErrProtocol, MaxDictDepth, s.off)
	}
	s.depth++
	defer func() { s.depth-- }()

	// smallest entry: empty key (1 byte) + bool Any (2 bytes)
	n, err := s.ReadCount(3)
	if err != nil {
		return nil, err
	}
	d := make(AnyDict, min(n, seqPrealloc))
	for i := 0; i < n; i++ {
		at := s.off
		k, err := s.ReadString()
		if err != nil {
			return nil, err
		}
		if _, dup := d[k]; dup {
			return nil, fmt.Errorf("%w: duplicate dict key %q at offset %d", ErrProtocol, k, at)
		}
		v, err := s.ReadAny()
		if err != nil {
			return nil, fmt.Errorf("dict key %q: %w", k, err)
		}
		d[k] = v
	}
	return d, nil
}

// WriteDict writes keys in sorted order so equal dicts encode identically.
func (s *Stream) WriteDict(d AnyDict) error {
	if s.depth >= MaxDictDepth {
		return fmt.Errorf("%w: dicts nested deeper than %d", ErrValue, MaxDictDepth)
	}
	s.depth++
	defer func() { s.depth-- }()

	if err := s.WriteCount(len(d)); err != nil {
		return err
	}
	for _, k := range sortedKeys(d) {
		if err := s.WriteString(k); err != nil {
			return err
		}
		if err := s.WriteAny(d[k]); err != nil {
			return fmt.Errorf("dict key %q: %w", k, err)
		}
	}
	return nil
}

// DictLen is the encoded width of d.
func DictLen(d AnyDict) (int, error) {
	return dictLen(d, 0)
}

func dictLen(d AnyDict, depth int) (int, error) {
	if depth >= MaxDictDepth {
		return 0, fmt.Errorf("%w: dicts nested deeper than %d", ErrValue, MaxDictDepth)
	}
	n := 4
	for k, v := range d {
		m, err := anyLen(v, depth+1)
		if err != nil {
			return 0, fmt.Errorf("dict key %q: %w", k, err)
		}
		n += StringLen(k) + m
	}
	return n, nil
}

func sortedKeys(d AnyDict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	// AnyType reads and writes a tagged Any.
	AnyType = &Primitive{
		name: "Any",
		size: Unbounded,
		min:  2,
		read: func(s *Stream, _ Handles) (any, error) {
			v, err := s.ReadAny()
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		write: func(s *Stream, _ Handles, v any) error {
			x, ok := v.(Any)
			if !ok {
				return mismatchName("Any", v)
			}
			return s.WriteAny(x)
		},
		measure: func(v any) (int, error) {
			x, ok := v.(Any)
			if !ok {
				return 0, mismatchName("Any", v)
			}
			return AnyLen(x)
		},
	}

	// Dict is a free-form string-keyed dictionary of Any values, used for
	// keyword-style parameters.
	Dict = &Primitive{
		name: "Dict",
		size: Unbounded,
		min:  4,
		read: func(s *Stream, _ Handles) (any, error) {
			v, err := s.ReadDict()
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		write: func(s *Stream, _ Handles, v any) error {
			x, ok := v.(AnyDict)
			if !ok {
				return mismatchName("Dict", v)
			}
			return s.WriteDict(x)
		},
		measure: func(v any) (int, error) {
			x, ok := v.(AnyDict)
			if !ok {
				return 0, mismatchName("Dict", v)
			}
			return DictLen(x)
		},
	}
)
