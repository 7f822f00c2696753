package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeConn struct {
	broken atomic.Bool
	closed atomic.Bool
}

func (c *fakeConn) Call(context.Context, []byte) ([]byte, error) { return nil, nil }
func (c *fakeConn) Broken() bool                                 { return c.broken.Load() || c.closed.Load() }
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func fakeFactory(created *int32) func(context.Context) (Conn, error) {
	return func(context.Context) (Conn, error) {
		atomic.AddInt32(created, 1)
		return &fakeConn{}, nil
	}
}

func TestPoolReuse(t *testing.T) {
	var created int32
	p := NewPool("x", 2, fakeFactory(&created))

	c1, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	p.Put(c1)
	c2, _ := p.Get(context.Background())
	if c1 != c2 {
		t.Fatal("expect the idle connection to be reused")
	}
	if created != 1 {
		t.Fatalf("created %d connections, want 1", created)
	}
}

func TestPoolLimitBlocks(t *testing.T) {
	var created int32
	p := NewPool("x", 1, fakeFactory(&created))
	c1, _ := p.Get(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect DeadlineExceeded at the limit, got %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Put(c1)
	}()
	c2, err := p.Get(context.Background())
	if err != nil || c2 != c1 {
		t.Fatalf("expect the returned connection, got %v, %v", c2, err)
	}
}

func TestPoolDiscardsBroken(t *testing.T) {
	var created int32
	p := NewPool("x", 1, fakeFactory(&created))
	c1, _ := p.Get(context.Background())
	c1.(*fakeConn).broken.Store(true)
	p.Put(c1)
	if p.Len() != 0 {
		t.Fatalf("broken connection still counted, Len = %d", p.Len())
	}
	if !c1.(*fakeConn).closed.Load() {
		t.Fatal("broken connection not closed")
	}
	c2, err := p.Get(context.Background())
	if err != nil || c2 == c1 {
		t.Fatalf("expect a fresh connection, got %v, %v", c2, err)
	}
}

func TestPoolFactoryError(t *testing.T) {
	boom := errors.New("refused")
	p := NewPool("x", 1, func(context.Context) (Conn, error) { return nil, boom })
	if _, err := p.Get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expect factory error, got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("failed dial must free its slot, Len = %d", p.Len())
	}
}

func TestPoolClose(t *testing.T) {
	var created int32
	p := NewPool("x", 2, fakeFactory(&created))
	c1, _ := p.Get(context.Background())
	c2, _ := p.Get(context.Background())
	p.Put(c1)

	p.Close()
	if !c1.(*fakeConn).closed.Load() {
		t.Fatal("idle connection not closed")
	}
	p.Put(c2)
	if !c2.(*fakeConn).closed.Load() {
		t.Fatal("connection returned after Close not closed")
	}
	if _, err := p.Get(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expect ErrPoolClosed, got %v", err)
	}
}
