package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport: pool closed")

// Pool lends out connections to one front end. A borrowed connection is
// used by one caller at a time, which matches the one-request-in-flight
// protocol.
//
// The pool is a buffered channel used as a FIFO queue; connections are
// created lazily up to max and broken ones are discarded on return.
type Pool struct {
	addr    string
	factory func(ctx context.Context) (Conn, error)
	idle    chan Conn

	mu     sync.Mutex
	max    int
	open   int // created and not yet discarded
	closed bool
}

// NewPool creates an empty pool of at most max connections to addr.
func NewPool(addr string, max int, factory func(ctx context.Context) (Conn, error)) *Pool {
	if max < 1 {
		max = 1
	}
	return &Pool{
		addr:    addr,
		factory: factory,
		idle:    make(chan Conn, max),
		max:     max,
	}
}

// Addr returns the address the pool connects to.
func (p *Pool) Addr() string { return p.addr }

// Get borrows a connection:
//  1. an idle one, if any is healthy
//  2. a new one, if the pool is under its limit
//  3. otherwise the next one returned, or ctx's error
func (p *Pool) Get(ctx context.Context) (Conn, error) {
	for {
		select {
		case c := <-p.idle:
			if c.Broken() {
				p.discard(c)
				continue
			}
			return c, nil
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if p.open < p.max {
			p.open++
			p.mu.Unlock()
			c, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.open--
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}
		p.mu.Unlock()

		select {
		case c := <-p.idle:
			if c.Broken() {
				p.discard(c)
				continue
			}
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Put returns a borrowed connection. Broken connections are closed and
// free their slot.
func (p *Pool) Put(c Conn) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || c.Broken() {
		p.discard(c)
		return
	}
	p.idle <- c
}

// Len reports how many connections are open, idle or borrowed.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Close closes idle connections; borrowed ones are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	for {
		select {
		case c := <-p.idle:
			p.discard(c)
		default:
			return nil
		}
	}
}

func (p *Pool) discard(c Conn) {
	c.Close()
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}
