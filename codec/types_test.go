package codec

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, typ Type, h Handles, v any) any {
	t.Helper()
	frame, err := Encode(h, []Type{typ}, []any{v})
	if err != nil {
		t.Fatalf("%s: Encode(%v) failed: %v", typ.Name(), v, err)
	}
	if Fixed(typ) && len(frame) != typ.Size() {
		t.Fatalf("%s: encoded %d bytes, fixed size is %d", typ.Name(), len(frame), typ.Size())
	}
	got, err := Decode(h, typ, frame)
	if err != nil {
		t.Fatalf("%s: Decode failed: %v", typ.Name(), err)
	}
	return got
}

func TestPrimitiveRoundTrip(t *testing.T) {
	cases := []struct {
		typ  Type
		vals []any
	}{
		{Bool, []any{true, false}},
		{Uint8, []any{uint8(0), uint8(255)}},
		{Int16, []any{int16(math.MinInt16), int16(0), int16(math.MaxInt16)}},
		{Uint16, []any{uint16(0), uint16(math.MaxUint16)}},
		{Int32, []any{int32(math.MinInt32), int32(-1), int32(0), int32(math.MaxInt32)}},
		{Uint32, []any{uint32(0), uint32(math.MaxUint32)}},
		{Int64, []any{int64(math.MinInt64), int64(0), int64(math.MaxInt64)}},
		{Uint64, []any{uint64(0), uint64(math.MaxUint64)}},
		{Float32, []any{float32(0), float32(-1.25), float32(math.MaxFloat32), float32(-math.MaxFloat32)}},
		{Float64, []any{0.0, -3.5, math.MaxFloat64, math.SmallestNonzeroFloat64}},
		{Str, []any{"", "hello", "héllo wörld"}},
		{ArrayFloat32, []any{[]float32{}, []float32{1, -2, math.MaxFloat32}}},
		{ArrayInt32, []any{[]int32{}, []int32{math.MinInt32, 0, math.MaxInt32}}},
		{ArrayUint32, []any{[]uint32{}, []uint32{0, math.MaxUint32}}},
		{ArrayUint8, []any{[]uint8{}, []uint8{0, 1, 255}}},
		{Matrix4x4, []any{Matrix4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 3, 4, 5, 1}}},
	}
	for _, c := range cases {
		for _, v := range c.vals {
			got := roundTrip(t, c.typ, nil, v)
			if !reflect.DeepEqual(got, v) {
				t.Errorf("%s: got %#v, want %#v", c.typ.Name(), got, v)
			}
		}
	}
}

func TestNoneIsZeroBytes(t *testing.T) {
	frame, err := Encode(nil, []Type{None}, []any{nil})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frame) != 0 {
		t.Fatalf("None encoded to %d bytes", len(frame))
	}
}

func TestArrayEncoding(t *testing.T) {
	frame, err := Encode(nil, []Type{ArrayInt32}, []any{[]int32{1, 2}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{2, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}
	if !reflect.DeepEqual(frame, want) {
		t.Fatalf("got %v, want %v", frame, want)
	}
}

func TestCompositeRoundTrip(t *testing.T) {
	cases := []struct {
		typ Type
		v   any
	}{
		{Float3, [3]float32{1, 2, 3}},
		{Vector3d, Vec3{0, 0, 1}},
		{Point3d, Vec3{-1, math.MaxFloat32, 0}},
		{Point2d, Vec2{0.5, -0.5}},
		{RGB, Color{1, 0.5, 0}},
	}
	for _, c := range cases {
		got := roundTrip(t, c.typ, nil, c.v)
		if got != c.v {
			t.Errorf("%s: got %#v, want %#v", c.typ.Name(), got, c.v)
		}
	}
}

func TestCompositeIsConcatenation(t *testing.T) {
	a, err := Encode(nil, []Type{Point3d}, []any{Vec3{1, 2, 3}})
	if err != nil {
		t.Fatalf("Encode composite failed: %v", err)
	}
	b, err := Encode(nil, []Type{Float32, Float32, Float32}, []any{float32(1), float32(2), float32(3)})
	if err != nil {
		t.Fatalf("Encode scalars failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("composite %v differs from field concatenation %v", a, b)
	}
}

func TestCompositeWithUnboundedField(t *testing.T) {
	labelled := NewComposite("Labelled", []Type{Str, Int32},
		func(p []any) any { return [2]any{p[0], p[1]} },
		func(v any) ([]any, bool) {
			x, ok := v.([2]any)
			return x[:], ok
		})
	if Fixed(labelled) {
		t.Fatal("composite with a Str field must be unbounded")
	}
	v := [2]any{"x", int32(9)}
	if got := roundTrip(t, labelled, nil, v); got != v {
		t.Fatalf("got %#v, want %#v", got, v)
	}
}

func TestSeqRoundTrip(t *testing.T) {
	pts := SeqOf(Point3d)
	got := roundTrip(t, pts, nil, []Vec3{{1, 2, 3}, {4, 5, 6}})
	want := []any{Vec3{1, 2, 3}, Vec3{4, 5, 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}

	empty := roundTrip(t, pts, nil, []Vec3{})
	if !reflect.DeepEqual(empty, []any{}) {
		t.Fatalf("empty sequence decoded as %#v", empty)
	}
}

func TestNestedSeq(t *testing.T) {
	holes := SeqOf(SeqOf(Point2d))
	v := [][]Vec2{{{0, 0}, {1, 0}, {0, 1}}, {}}
	frame, err := Encode(nil, []Type{holes}, []any{v})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// outer count + (count + 3 points) + (count)
	if want := 4 + (4 + 3*8) + 4; len(frame) != want {
		t.Fatalf("encoded %d bytes, want %d", len(frame), want)
	}
	got, err := Decode(nil, holes, frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []any{[]any{Vec2{0, 0}, Vec2{1, 0}, Vec2{0, 1}}, []any{}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestSeqIsNotComposite(t *testing.T) {
	// a one-element sequence still carries its count
	frame, err := Encode(nil, []Type{SeqOf(Int32)}, []any{[]int32{5}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frame) != 8 {
		t.Fatalf("encoded %d bytes, want 8", len(frame))
	}
}

func TestWriteMismatch(t *testing.T) {
	if _, err := Encode(nil, []Type{Int32}, []any{"nope"}); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue, got %v", err)
	}
	if _, err := Encode(nil, []Type{Point3d}, []any{Vec2{}}); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue, got %v", err)
	}
	if _, err := Encode(nil, []Type{Int32, Int32}, []any{int32(1)}); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for arity mismatch, got %v", err)
	}
}

type fakeHandles struct {
	objects map[int32]any
	stored  []any
}

func (f *fakeHandles) Lookup(kind HandleKind, id int32) (any, error) {
	if obj, ok := f.objects[id]; ok {
		return obj, nil
	}
	return nil, errors.New("missing")
}

func (f *fakeHandles) Store(kind HandleKind, obj any) (int32, error) {
	f.stored = append(f.stored, obj)
	return int32(len(f.stored) + 99), nil
}

func TestHandleRefs(t *testing.T) {
	h := &fakeHandles{objects: map[int32]any{3: "mesh-3"}}

	got, err := Decode(h, ObjectID, []byte{3, 0, 0, 0})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "mesh-3" {
		t.Fatalf("got %v, want mesh-3", got)
	}

	frame, err := Encode(h, []Type{MaterialID}, []any{"new-material"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !reflect.DeepEqual(frame, []byte{100, 0, 0, 0}) {
		t.Fatalf("stored object written as %v", frame)
	}

	frame, err = Encode(h, []Type{PanelID}, []any{NoRef})
	if err != nil {
		t.Fatalf("Encode Ref failed: %v", err)
	}
	if !reflect.DeepEqual(frame, []byte{0xff, 0xff, 0xff, 0xff}) {
		t.Fatalf("Ref written as %v", frame)
	}
	if len(h.stored) != 1 {
		t.Fatalf("writing a Ref must not allocate, stored %d", len(h.stored))
	}
}

func TestRefsHandles(t *testing.T) {
	got, err := Decode(Refs{}, ObjectID, []byte{7, 0, 0, 0})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != Ref(7) {
		t.Fatalf("got %#v, want Ref(7)", got)
	}
	if _, err := Encode(Refs{}, []Type{ObjectID}, []any{"not a ref"}); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue, got %v", err)
	}
}

func TestSeqCountBoundedByFrame(t *testing.T) {
	// count 0x7fffffff with nothing behind it
	frame := []byte{0xff, 0xff, 0xff, 0x7f}
	for _, typ := range []Type{SeqOf(Str), SeqOf(AnyType), SeqOf(Dict), SeqOf(SeqOf(Int32)), SeqOf(ArrayUint8)} {
		if _, err := Decode(nil, typ, frame); !errors.Is(err, ErrBounds) {
			t.Errorf("%s: expected ErrBounds, got %v", typ.Name(), err)
		}
	}

	// three empty strings fit in three bytes, a fourth does not
	if _, err := Decode(nil, SeqOf(Str), []byte{3, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("three empty strings: %v", err)
	}
	if _, err := Decode(nil, SeqOf(Str), []byte{4, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrBounds) {
		t.Fatalf("expected ErrBounds for a count past the frame, got %v", err)
	}
}

func TestMinLen(t *testing.T) {
	labelled := NewComposite("Labelled", []Type{Str, Int32},
		func(p []any) any { return p },
		func(v any) ([]any, bool) {
			p, ok := v.([]any)
			return p, ok
		})
	cases := []struct {
		typ  Type
		want int
	}{
		{None, 0},
		{Int32, 4},
		{Str, 1},
		{AnyType, 2},
		{Dict, 4},
		{ArrayFloat32, 4},
		{SeqOf(Str), 4},
		{Point3d, 12},
		{labelled, 5},
	}
	for _, c := range cases {
		if got := MinLen(c.typ); got != c.want {
			t.Errorf("MinLen(%s) = %d, want %d", c.typ.Name(), got, c.want)
		}
	}
}

func TestNilHandleObject(t *testing.T) {
	h := &fakeHandles{}
	if _, err := Encode(h, []Type{ObjectID}, []any{nil}); !errors.Is(err, ErrValue) {
		t.Fatalf("expected ErrValue for a nil object, got %v", err)
	}
	if len(h.stored) != 0 {
		t.Fatalf("nil object was stored")
	}
}
