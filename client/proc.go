// Package client is the controller side of the scene protocol.
//
// A controller declares the signature of each front-end operation it uses
// as a Proc and calls it by name. The opcode is looked up once per front end
// through getOperationNamed (always opcode 0) and cached:
//
//	Call(addMesh, args…)
//	  → opcode cached for this front end?  no → Call(getOperationNamed, "addMesh")
//	  → frame = Int32 opcode + encoded args → transport → decode Ret
//
// Handles come back as codec.Ref and are passed back the same way.
package client

import (
	"errors"
	"fmt"
	"strings"

	"scene-rpc/codec"
)

// ErrUnknownOperation is returned when the front end has no operation of the
// requested name.
var ErrUnknownOperation = errors.New("client: unknown operation")

// Proc is the controller's view of one front-end operation. It must match
// the signature the front end registered.
type Proc struct {
	Name string
	Args []codec.Type
	Ret  codec.Type
}

// NewProc declares an operation returning ret.
func NewProc(name string, ret codec.Type, args ...codec.Type) Proc {
	return Proc{Name: name, Args: args, Ret: ret}
}

func (p Proc) String() string {
	names := make([]string, len(p.Args))
	for i, a := range p.Args {
		names[i] = a.Name()
	}
	ret := "None"
	if p.Ret != nil {
		ret = p.Ret.Name()
	}
	return fmt.Sprintf("%s(%s) -> %s", p.Name, strings.Join(names, ", "), ret)
}

var getOperationNamed = NewProc("getOperationNamed", codec.Int32, codec.Str)

// request encodes opcode and args into a request frame.
func (p Proc) request(opcode int32, vals []any) ([]byte, error) {
	types := make([]codec.Type, 0, len(p.Args)+1)
	types = append(types, codec.Int32)
	types = append(types, p.Args...)
	frame, err := codec.Encode(codec.Refs{}, types, append([]any{opcode}, vals...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return frame, nil
}

// result decodes a response frame.
func (p Proc) result(frame []byte) (any, error) {
	ret := p.Ret
	if ret == nil {
		ret = codec.None
	}
	v, err := codec.Decode(codec.Refs{}, ret, frame)
	if err != nil {
		return nil, fmt.Errorf("%s result: %w", p.Name, err)
	}
	return v, nil
}
