package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scene-rpc/loadbalance"
	"scene-rpc/registry"
	"scene-rpc/transport"
)

// Client calls operations on front ends found through a registry. Each front
// end gets a pool of connections and its own opcode cache.
type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string
	scene    string
	poolSize int
	retries  int
	backoff  time.Duration
	dial     func(ctx context.Context, ep registry.Endpoint) (transport.Conn, error)
	logger   zerolog.Logger

	mu      sync.Mutex
	pools   map[string]*transport.Pool
	opcodes map[string]*opcodes
}

// Option configures a Client.
type Option func(*Client)

// WithService sets the registry service name (default "scene").
func WithService(name string) Option {
	return func(c *Client) { c.service = name }
}

// WithScene sets the key handed to the balancer, so that with consistent
// hashing every controller of one scene reaches the same front end.
func WithScene(name string) Option {
	return func(c *Client) { c.scene = name }
}

// WithPoolSize bounds the connections per front end (default 4).
func WithPoolSize(n int) Option {
	return func(c *Client) { c.poolSize = n }
}

// WithRetry retries calls that could not get a connection up to n times,
// doubling the delay from base each time. Calls that reached the front end
// are never retried: operations are not idempotent.
func WithRetry(n int, base time.Duration) Option {
	return func(c *Client) { c.retries, c.backoff = n, base }
}

// WithDialer replaces the TCP dialer, e.g. with one using WebSockets.
func WithDialer(dial func(ctx context.Context, ep registry.Endpoint) (transport.Conn, error)) Option {
	return func(c *Client) { c.dial = dial }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client over reg and bal.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry: reg,
		balancer: bal,
		service:  "scene",
		poolSize: 4,
		logger:   zerolog.Nop(),
		pools:    make(map[string]*transport.Pool),
		opcodes:  make(map[string]*opcodes),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, ep registry.Endpoint) (transport.Conn, error) {
			return transport.Dial(ctx, ep.Addr, transport.WithLogger(c.logger))
		}
	}
	c.logger = c.logger.With().Str("component", "client").Logger()
	return c
}

// DialWebSocket is a WithDialer dialer using each endpoint's WebSocket URL.
func DialWebSocket(ctx context.Context, ep registry.Endpoint) (transport.Conn, error) {
	if ep.WebSocket == "" {
		return nil, fmt.Errorf("client: endpoint %s has no websocket url", ep.Addr)
	}
	return transport.DialWebSocket(ctx, ep.WebSocket)
}

// Call invokes p on a front end chosen by the balancer.
func (c *Client) Call(ctx context.Context, p Proc, vals ...any) (any, error) {
	pool, cache, conn, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Put(conn)

	op, err := resolve(ctx, conn, cache, p.Name)
	if err != nil {
		return nil, err
	}
	return invoke(ctx, conn, op, p, vals)
}

// acquire picks a front end and borrows a connection to it, retrying with
// exponential backoff while none can be had.
func (c *Client) acquire(ctx context.Context) (*transport.Pool, *opcodes, transport.Conn, error) {
	var lastErr error
	for i := 0; i <= c.retries; i++ {
		if i > 0 {
			delay := c.backoff * time.Duration(1<<(i-1))
			c.logger.Debug().Int("attempt", i).Dur("delay", delay).Err(lastErr).Msg("retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, nil, nil, ctx.Err()
			}
		}

		eps, err := c.registry.Discover(ctx, c.service)
		if err != nil {
			lastErr = err
			continue
		}
		ep, err := c.balancer.Pick(c.scene, eps)
		if err != nil {
			lastErr = err
			continue
		}
		pool, cache := c.poolFor(*ep)
		conn, err := pool.Get(ctx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, nil, nil, err
			}
			continue
		}
		return pool, cache, conn, nil
	}
	if errors.Is(lastErr, registry.ErrNoEndpoints) {
		return nil, nil, nil, fmt.Errorf("service %s: %w", c.service, lastErr)
	}
	return nil, nil, nil, lastErr
}

func (c *Client) poolFor(ep registry.Endpoint) (*transport.Pool, *opcodes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, ok := c.pools[ep.Addr]
	if !ok {
		pool = transport.NewPool(ep.Addr, c.poolSize, func(ctx context.Context) (transport.Conn, error) {
			return c.dial(ctx, ep)
		})
		c.pools[ep.Addr] = pool
		c.opcodes[ep.Addr] = &opcodes{}
	}
	return pool, c.opcodes[ep.Addr]
}

// Close closes every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, pool := range c.pools {
		pool.Close()
		delete(c.pools, addr)
		delete(c.opcodes, addr)
	}
	return nil
}
