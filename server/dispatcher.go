package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog"

	"scene-rpc/codec"
	"scene-rpc/message"
	"scene-rpc/operation"
	"scene-rpc/session"
)

// ErrReentrant is returned when a frame is dispatched while the same
// dispatcher is still running a handler.
var ErrReentrant = fmt.Errorf("%w: dispatch re-entered", codec.ErrProtocol)

// Dispatcher turns one request frame into at most one response frame.
//
// Per frame:
//
//	read Int32 opcode → resolve operation → decode args in order
//	  → require frame exhausted → call handler → encode Ret into an
//	    exactly sized buffer
//
// A handle that does not resolve while decoding does not stop the decode;
// the whole frame is still validated, the handler is skipped and the reply
// is the operation's failure value. Anything else that goes wrong before
// the handler runs is a fault and produces no reply.
//
// A Dispatcher serves one connection and is not reentrant.
type Dispatcher struct {
	ops    *operation.Registry
	logger zerolog.Logger
	busy   atomic.Bool
}

// NewDispatcher creates a dispatcher over ops.
func NewDispatcher(ops *operation.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{ops: ops, logger: logger}
}

// Dispatch runs frame against sess and returns the response frame.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, frame []byte) ([]byte, error) {
	reply := d.Handle(ctx, &message.Request{Session: sess, Frame: frame})
	if reply.Outcome == message.Fault {
		return nil, reply.Err
	}
	return reply.Frame, nil
}

// Handle is Dispatch in middleware.HandlerFunc form.
func (d *Dispatcher) Handle(ctx context.Context, req *message.Request) *message.Reply {
	if !d.busy.CompareAndSwap(false, true) {
		return message.FaultReply(ErrReentrant)
	}
	defer d.busy.Store(false)

	sess := req.Session
	sess.Lock()
	defer sess.Unlock()

	s := codec.NewReader(req.Frame)
	opcode, err := s.ReadInt32()
	if err != nil {
		return message.FaultReply(fmt.Errorf("opcode: %w", err))
	}
	op, ok := d.ops.Lookup(opcode)
	if !ok {
		r := message.FaultReply(fmt.Errorf("%w: unknown opcode %d", codec.ErrProtocol, opcode))
		r.Opcode = opcode
		return r
	}
	fault := func(err error) *message.Reply {
		return &message.Reply{Op: op.Name(), Opcode: opcode, Outcome: message.Fault, Err: err}
	}

	rec := &faultRecorder{h: sess}
	args := make([]any, op.Arity())
	for i := range args {
		t := op.Arg(i)
		v, err := t.Read(s, rec)
		if err != nil {
			return fault(fmt.Errorf("%s arg %d (%s): %w", op.Name(), i, t.Name(), err))
		}
		args[i] = v
	}
	if err := s.Exhausted(); err != nil {
		return fault(fmt.Errorf("%s: %w", op.Name(), err))
	}

	reply := &message.Reply{Op: op.Name(), Opcode: opcode, Outcome: message.OK}
	var result any
	if rec.err != nil {
		reply.Outcome, reply.Err = message.Failed, rec.err
		result = op.Failure()
	} else {
		result, err = d.invoke(ctx, op, &operation.Call{Session: sess, Op: op, Args: args})
		if err != nil {
			reply.Outcome, reply.Err = message.Failed, err
			result = op.Failure()
		}
	}

	out, err := d.encode(op, sess, result)
	if err != nil {
		// the handler returned something Ret cannot encode
		reply.Outcome, reply.Err = message.Failed, fmt.Errorf("%s result: %w", op.Name(), err)
		if out, err = d.encode(op, sess, op.Failure()); err != nil {
			return fault(err)
		}
	}
	reply.Frame = out
	return reply
}

func (d *Dispatcher) invoke(ctx context.Context, op *operation.Operation, call *operation.Call) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error().
				Str("op", op.Name()).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			result, err = nil, fmt.Errorf("%s: handler panicked: %v", op.Name(), p)
		}
	}()
	return op.Invoke(ctx, call)
}

func (d *Dispatcher) encode(op *operation.Operation, sess *session.Session, v any) ([]byte, error) {
	ret := op.Ret()
	out := codec.NewWriter(ret.Size())
	if err := ret.Write(out, sess, v); err != nil {
		return nil, err
	}
	if err := out.Exhausted(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// faultRecorder keeps decoding going past handles that do not resolve and
// remembers the first such failure.
type faultRecorder struct {
	h   codec.Handles
	err error
}

func (f *faultRecorder) Lookup(kind codec.HandleKind, id int32) (any, error) {
	obj, err := f.h.Lookup(kind, id)
	if err != nil {
		if f.err == nil {
			f.err = err
		}
		return nil, nil
	}
	return obj, nil
}

func (f *faultRecorder) Store(kind codec.HandleKind, obj any) (int32, error) {
	return f.h.Store(kind, obj)
}
