package codec

import (
	"fmt"
	"reflect"
)

// Composite is a fixed-arity tuple of sub-descriptors read in order and
// folded into one value by combine. split is the inverse used for writing.
type Composite struct {
	name    string
	fields  []Type
	size    int
	combine func(parts []any) any
	split   func(v any) ([]any, bool)
}

// NewComposite builds a composite descriptor. Size is the sum of the field
// sizes, or Unbounded if any field is.
func NewComposite(name string, fields []Type, combine func([]any) any, split func(any) ([]any, bool)) *Composite {
	size := 0
	for _, f := range fields {
		if !Fixed(f) {
			size = Unbounded
			break
		}
		size += f.Size()
	}
	return &Composite{name: name, fields: fields, size: size, combine: combine, split: split}
}

func (c *Composite) Name() string   { return c.name }
func (c *Composite) Size() int      { return c.size }
func (c *Composite) String() string { return c.name }

// Fields returns the sub-descriptors in wire order.
func (c *Composite) Fields() []Type {
	return append([]Type(nil), c.fields...)
}

func (c *Composite) Read(s *Stream, h Handles) (any, error) {
	parts := make([]any, len(c.fields))
	for i, f := range c.fields {
		v, err := f.Read(s, h)
		if err != nil {
			return nil, fmt.Errorf("%s field %d: %w", c.name, i, err)
		}
		parts[i] = v
	}
	return c.combine(parts), nil
}

func (c *Composite) Write(s *Stream, h Handles, v any) error {
	parts, ok := c.split(v)
	if !ok || len(parts) != len(c.fields) {
		return mismatch(c, v)
	}
	for i, f := range c.fields {
		if err := f.Write(s, h, parts[i]); err != nil {
			return fmt.Errorf("%s field %d: %w", c.name, i, err)
		}
	}
	return nil
}

func (c *Composite) Len(v any) (int, error) {
	if c.size != Unbounded {
		return c.size, nil
	}
	parts, ok := c.split(v)
	if !ok || len(parts) != len(c.fields) {
		return 0, mismatch(c, v)
	}
	n := 0
	for i, f := range c.fields {
		m, err := f.Len(parts[i])
		if err != nil {
			return 0, err
		}
		n += m
	}
	return n, nil
}

// float3 builds a composite of three Float32 fields.
func float3(name string, combine func(x, y, z float32) any, split func(any) (float32, float32, float32, bool)) *Composite {
	return NewComposite(name, []Type{Float32, Float32, Float32},
		func(p []any) any {
			return combine(p[0].(float32), p[1].(float32), p[2].(float32))
		},
		func(v any) ([]any, bool) {
			x, y, z, ok := split(v)
			if !ok {
				return nil, false
			}
			return []any{x, y, z}, true
		})
}

func newVec3(x, y, z float32) any { return Vec3{x, y, z} }

func splitVec3(v any) (float32, float32, float32, bool) {
	p, ok := v.(Vec3)
	return p.X, p.Y, p.Z, ok
}

var (
	Float3 = float3("Float3",
		func(x, y, z float32) any { return [3]float32{x, y, z} },
		func(v any) (float32, float32, float32, bool) {
			a, ok := v.([3]float32)
			return a[0], a[1], a[2], ok
		})

	Vector3d = float3("Vector3d", newVec3, splitVec3)
	Point3d  = float3("Point3d", newVec3, splitVec3)

	RGB = float3("RGB",
		func(r, g, b float32) any { return Color{r, g, b} },
		func(v any) (float32, float32, float32, bool) {
			c, ok := v.(Color)
			return c.R, c.G, c.B, ok
		})

	Point2d = NewComposite("Point2d", []Type{Float32, Float32},
		func(p []any) any { return Vec2{p[0].(float32), p[1].(float32)} },
		func(v any) ([]any, bool) {
			p, ok := v.(Vec2)
			return []any{p.X, p.Y}, ok
		})
)

// Seq is a length-prefixed, homogeneous list of one element descriptor.
// It decodes to []any; writing accepts any slice whose elements the element
// descriptor can encode.
type Seq struct {
	elem Type
}

// SeqOf wraps elem as a sequence.
func SeqOf(elem Type) *Seq {
	return &Seq{elem: elem}
}

func (q *Seq) Name() string   { return "[" + q.elem.Name() + "]" }
func (q *Seq) Size() int      { return Unbounded }
func (q *Seq) Elem() Type     { return q.elem }
func (q *Seq) String() string { return q.Name() }

// seqPrealloc caps the capacity reserved from an untrusted count.
const seqPrealloc = 1024

func (q *Seq) Read(s *Stream, h Handles) (any, error) {
	// every element takes at least one byte, so the count is bounded by
	// what is left of the frame
	n, err := s.ReadCount(max(1, MinLen(q.elem)))
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(n, seqPrealloc))
	for i := 0; i < n; i++ {
		v, err := q.elem.Read(s, h)
		if err != nil {
			return nil, fmt.Errorf("%s element %d: %w", q.Name(), i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (q *Seq) Write(s *Stream, h Handles, v any) error {
	rv, ok := sliceValue(v)
	if !ok {
		return mismatch(q, v)
	}
	if err := s.WriteCount(rv.Len()); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := q.elem.Write(s, h, rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("%s element %d: %w", q.Name(), i, err)
		}
	}
	return nil
}

func (q *Seq) Len(v any) (int, error) {
	rv, ok := sliceValue(v)
	if !ok {
		return 0, mismatch(q, v)
	}
	if Fixed(q.elem) {
		return 4 + rv.Len()*q.elem.Size(), nil
	}
	n := 4
	for i := 0; i < rv.Len(); i++ {
		m, err := q.elem.Len(rv.Index(i).Interface())
		if err != nil {
			return 0, fmt.Errorf("%s element %d: %w", q.Name(), i, err)
		}
		n += m
	}
	return n, nil
}

// MinLen is the smallest number of bytes an encoding of t can take.
func MinLen(t Type) int {
	if Fixed(t) {
		return t.Size()
	}
	switch x := t.(type) {
	case *Seq:
		return 4
	case *Composite:
		n := 0
		for _, f := range x.fields {
			n += MinLen(f)
		}
		return n
	case *Primitive:
		return x.min
	}
	return 0
}

func sliceValue(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, false
	}
	return rv, true
}
