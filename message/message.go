// Package message defines what travels through the dispatch middleware chain.
//
// A Request wraps one scene frame as received from a transport, together with
// the session it is dispatched against. A Reply carries the response frame,
// or the fault that aborted the request:
//
//	Request{Session, Frame} → middleware … → dispatcher → Reply{Op, Frame | Err}
package message

import (
	"fmt"

	"scene-rpc/session"
)

// Request is one inbound scene frame.
type Request struct {
	Session   *session.Session
	Frame     []byte
	Transport string // "tcp" or "ws", for logs and metrics
	Remote    string
}

// Outcome classifies a dispatched frame.
type Outcome uint8

const (
	// OK: the handler ran and its result was encoded.
	OK Outcome = iota
	// Failed: a handle did not resolve or the handler failed; the reply
	// carries the operation's failure value.
	Failed
	// Fault: the frame was rejected and nothing is sent back.
	Fault
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Failed:
		return "failed"
	case Fault:
		return "fault"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Reply is the result of dispatching one Request.
type Reply struct {
	Op      string // empty when the opcode did not resolve
	Opcode  int32
	Outcome Outcome
	Frame   []byte // encoded return value, nil on Fault
	Err     error  // why the request failed or faulted
}

// FaultReply builds a Reply for a rejected frame.
func FaultReply(err error) *Reply {
	return &Reply{Opcode: -1, Outcome: Fault, Err: err}
}
