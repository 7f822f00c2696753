// Package operation is the dispatch table of the scene protocol: a dense,
// registration-ordered list of typed handlers addressed by opcode.
//
// Operations are registered once at startup. The registry is then sealed and
// only read while serving:
//
//	index  name                 args        ret
//	0      getOperationNamed    [Str]       Int32
//	1      delete               [Int32]     Int32
//	...
//
// The controller resolves an opcode with getOperationNamed, which always sits
// at index 0, and caches it for the rest of the connection.
package operation

import (
	"context"
	"errors"
	"fmt"

	"scene-rpc/codec"
	"scene-rpc/session"
)

var (
	ErrDuplicate  = errors.New("operation: name already registered")
	ErrUnbounded  = errors.New("operation: descriptor has no fixed size")
	ErrSealed     = errors.New("operation: registry is sealed")
	ErrNilHandler = errors.New("operation: nil handler")
)

// Call carries one decoded invocation to a handler.
type Call struct {
	Session *session.Session
	Op      *Operation
	Args    []any
}

// Int32 returns argument i as an int32. Handlers rely on the dispatcher
// having decoded Args against Op.Args, so a wrong type is a programming
// error and panics.
func (c *Call) Int32(i int) int32 { return c.Args[i].(int32) }

// Str returns argument i as a string.
func (c *Call) Str(i int) string { return c.Args[i].(string) }

// Handler runs an operation. The returned value is encoded with the
// operation's return descriptor; a non-nil error makes the dispatcher reply
// with the failure value instead.
type Handler func(ctx context.Context, c *Call) (any, error)

// Operation is an immutable registry entry.
type Operation struct {
	name    string
	index   int32
	args    []codec.Type
	ret     codec.Type
	handler Handler
	failure any
}

func (op *Operation) Name() string         { return op.name }
func (op *Operation) Index() int32         { return op.index }
func (op *Operation) Ret() codec.Type      { return op.ret }
func (op *Operation) Arity() int           { return len(op.args) }
func (op *Operation) Arg(i int) codec.Type { return op.args[i] }

// Args returns a copy of the argument descriptors.
func (op *Operation) Args() []codec.Type {
	return append([]codec.Type(nil), op.args...)
}

// Failure is the value sent back when the operation cannot produce a result.
func (op *Operation) Failure() any { return op.failure }

// Invoke runs the handler.
func (op *Operation) Invoke(ctx context.Context, c *Call) (any, error) {
	return op.handler(ctx, c)
}

func (op *Operation) String() string {
	return fmt.Sprintf("%d:%s", op.index, op.name)
}

// Option configures a registration.
type Option func(*Operation)

// WithFailure overrides the failure value. Handle-typed returns need a
// codec.Ref.
func WithFailure(v any) Option {
	return func(op *Operation) { op.failure = v }
}

// noRefs resolves every handle to NoRef, which makes a zero frame decode to
// the failure shape of any fixed descriptor.
type noRefs struct{ codec.Refs }

func (noRefs) Lookup(codec.HandleKind, int32) (any, error) { return codec.NoRef, nil }

// defaultFailure is -1 for Int32 and handle returns and the zero value
// otherwise.
func defaultFailure(ret codec.Type) any {
	if ret == codec.Int32 {
		return int32(-1)
	}
	v, err := codec.Decode(noRefs{}, ret, make([]byte, ret.Size()))
	if err != nil {
		return nil
	}
	return v
}
