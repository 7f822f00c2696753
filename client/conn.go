package client

import (
	"context"
	"fmt"
	"sync"

	"scene-rpc/transport"
)

// opcodes caches name → opcode for one front end.
type opcodes struct {
	mu sync.Mutex
	m  map[string]int32
}

func (o *opcodes) get(name string) (int32, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	op, ok := o.m[name]
	return op, ok
}

func (o *opcodes) put(name string, op int32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.m == nil {
		o.m = make(map[string]int32)
	}
	o.m[name] = op
}

// resolve returns the opcode of name on the front end behind t.
func resolve(ctx context.Context, t transport.Conn, cache *opcodes, name string) (int32, error) {
	if op, ok := cache.get(name); ok {
		return op, nil
	}
	v, err := invoke(ctx, t, 0, getOperationNamed, []any{name})
	if err != nil {
		return 0, err
	}
	op := v.(int32)
	if op < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	cache.put(name, op)
	return op, nil
}

func invoke(ctx context.Context, t transport.Conn, opcode int32, p Proc, vals []any) (any, error) {
	frame, err := p.request(opcode, vals)
	if err != nil {
		return nil, err
	}
	resp, err := t.Call(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	return p.result(resp)
}

// Conn calls operations over a single transport.
type Conn struct {
	t     transport.Conn
	cache opcodes
}

// NewConn wraps an established transport.
func NewConn(t transport.Conn) *Conn {
	return &Conn{t: t}
}

// Call invokes p with vals and returns the decoded result.
func (c *Conn) Call(ctx context.Context, p Proc, vals ...any) (any, error) {
	op, err := resolve(ctx, c.t, &c.cache, p.Name)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, c.t, op, p, vals)
}

// Resolve returns the opcode of name.
func (c *Conn) Resolve(ctx context.Context, name string) (int32, error) {
	return resolve(ctx, c.t, &c.cache, name)
}

// Raw sends an already encoded request frame.
func (c *Conn) Raw(ctx context.Context, frame []byte) ([]byte, error) {
	return c.t.Call(ctx, frame)
}

// Close closes the transport.
func (c *Conn) Close() error {
	return c.t.Close()
}
