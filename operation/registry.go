package operation

import (
	"context"
	"fmt"
	"sync"

	"scene-rpc/codec"
)

// GetOperationNamed is the name of the lookup operation at index 0.
const GetOperationNamed = "getOperationNamed"

// Registry maps opcodes and names to operations.
type Registry struct {
	mu     sync.RWMutex
	ops    []*Operation
	byName map[string]*Operation
	sealed bool
}

// NewRegistry creates a registry holding only getOperationNamed.
func NewRegistry() *Registry {
	r := NewBareRegistry()
	r.MustRegister(GetOperationNamed, []codec.Type{codec.Str}, codec.Int32,
		func(_ context.Context, c *Call) (any, error) {
			return r.Index(c.Str(0)), nil
		})
	return r
}

// NewBareRegistry creates a registry without getOperationNamed, for front
// ends whose controllers carry a fixed opcode table.
func NewBareRegistry() *Registry {
	return &Registry{byName: make(map[string]*Operation)}
}

// Register appends an operation and returns it. A nil ret means None.
//
// The return descriptor must have a fixed size, and composite descriptors
// anywhere in the signature must be built from fixed-size fields.
func (r *Registry) Register(name string, args []codec.Type, ret codec.Type, h Handler, opts ...Option) (*Operation, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, name)
	}
	if ret == nil {
		ret = codec.None
	}
	if !codec.Fixed(ret) {
		return nil, fmt.Errorf("%w: %s returns %s", ErrUnbounded, name, ret.Name())
	}
	if err := checkType(ret); err != nil {
		return nil, fmt.Errorf("%s return: %w", name, err)
	}
	for i, t := range args {
		if t == nil {
			return nil, fmt.Errorf("%w: %s arg %d has no descriptor", codec.ErrValue, name, i)
		}
		if err := checkType(t); err != nil {
			return nil, fmt.Errorf("%s arg %d: %w", name, i, err)
		}
	}

	op := &Operation{
		name:    name,
		args:    append([]codec.Type(nil), args...),
		ret:     ret,
		handler: h,
		failure: defaultFailure(ret),
	}
	for _, opt := range opts {
		opt(op)
	}
	if _, err := codec.Encode(codec.Refs{}, []codec.Type{ret}, []any{op.failure}); err != nil {
		return nil, fmt.Errorf("%s failure value: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, fmt.Errorf("%w: cannot add %s", ErrSealed, name)
	}
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	op.index = int32(len(r.ops))
	r.ops = append(r.ops, op)
	r.byName[name] = op
	return op, nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(name string, args []codec.Type, ret codec.Type, h Handler, opts ...Option) *Operation {
	op, err := r.Register(name, args, ret, h, opts...)
	if err != nil {
		panic(err)
	}
	return op
}

// checkType walks sequences down to their elements and requires every
// composite field to be fixed-size.
func checkType(t codec.Type) error {
	switch x := t.(type) {
	case *codec.Seq:
		if codec.MinLen(x.Elem()) == 0 {
			return fmt.Errorf("%w: %s has zero-width elements", codec.ErrValue, x.Name())
		}
		return checkType(x.Elem())
	case *codec.Composite:
		for _, f := range x.Fields() {
			if !codec.Fixed(f) {
				return fmt.Errorf("%w: %s field %s", ErrUnbounded, x.Name(), f.Name())
			}
			if err := checkType(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Lookup returns the operation at opcode.
func (r *Registry) Lookup(opcode int32) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if opcode < 0 || int(opcode) >= len(r.ops) {
		return nil, false
	}
	return r.ops[opcode], true
}

// Index returns the opcode registered under name, or -1.
func (r *Registry) Index(name string) int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if op, ok := r.byName[name]; ok {
		return op.index
	}
	return -1
}

// Len returns the number of operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Operations returns the operations in opcode order.
func (r *Registry) Operations() []*Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Operation(nil), r.ops...)
}
