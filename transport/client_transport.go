package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"scene-rpc/protocol"
)

// ClientTransport is a Conn over a TCP connection.
type ClientTransport struct {
	conn   net.Conn
	limits protocol.Limits
	logger zerolog.Logger

	calling sync.Mutex // one request in flight
	sending sync.Mutex // whole frames only: calls and heartbeats share conn
	broken  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Option configures a transport.
type Option func(*options)

type options struct {
	limits    protocol.Limits
	heartbeat time.Duration
	logger    zerolog.Logger
}

func defaults() options {
	return options{
		limits:    protocol.DefaultLimits(),
		heartbeat: DefaultHeartbeat,
		logger:    zerolog.Nop(),
	}
}

// WithLimits bounds the size of accepted response frames.
func WithLimits(l protocol.Limits) Option {
	return func(o *options) { o.limits = l }
}

// WithHeartbeat sets the heartbeat interval; 0 disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithLogger sets the logger for text frames and connection errors.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Dial connects to a front end over TCP.
func Dial(ctx context.Context, addr string, opts ...Option) (*ClientTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClientTransport(conn, opts...), nil
}

// NewClientTransport wraps conn and starts its heartbeat.
func NewClientTransport(conn net.Conn, opts ...Option) *ClientTransport {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	t := &ClientTransport{
		conn:   conn,
		limits: o.limits,
		logger: o.logger.With().Str("component", "transport").Str("remote", conn.RemoteAddr().String()).Logger(),
		done:   make(chan struct{}),
	}
	if o.heartbeat > 0 {
		go t.heartbeatLoop(o.heartbeat)
	}
	return t
}

// Call sends frame as a request and waits for the reply. Text frames that
// arrive meanwhile are logged. If ctx ends first the connection is broken,
// since a late reply would otherwise be taken for the next call's.
func (t *ClientTransport) Call(ctx context.Context, frame []byte) ([]byte, error) {
	t.calling.Lock()
	defer t.calling.Unlock()

	if t.broken.Load() {
		return nil, ErrBroken
	}

	defer interruptOn(ctx, func(d time.Time) { t.conn.SetDeadline(d) })()

	if err := t.send(protocol.MsgTypeRequest, frame); err != nil {
		return nil, t.fail(ctx, err)
	}
	for {
		header, body, err := protocol.Decode(t.conn, t.limits)
		if err != nil {
			return nil, t.fail(ctx, err)
		}
		switch header.MsgType {
		case protocol.MsgTypeResponse:
			return body, nil
		case protocol.MsgTypeFault:
			return nil, &FaultError{Msg: string(body)}
		case protocol.MsgTypeText:
			t.logger.Info().Str("text", string(body)).Msg("text frame")
		case protocol.MsgTypeHeartbeat:
		default:
			return nil, t.fail(ctx, fmt.Errorf("unexpected %s frame", header.MsgType))
		}
	}
}

func (t *ClientTransport) send(mt protocol.MsgType, body []byte) error {
	t.sending.Lock()
	defer t.sending.Unlock()
	return protocol.Encode(t.conn, mt, body)
}

// fail breaks the connection and reports ctx's error in place of the
// deadline error it caused.
func (t *ClientTransport) fail(ctx context.Context, err error) error {
	t.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrBroken, err)
}

// Broken reports whether the connection failed or was closed.
func (t *ClientTransport) Broken() bool {
	return t.broken.Load()
}

// Close closes the connection. It is safe to call more than once.
func (t *ClientTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.broken.Store(true)
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// Conn returns the underlying TCP connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop keeps idle connections from being reaped by the front end's
// read deadline. Heartbeats carry no body and get no reply.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.send(protocol.MsgTypeHeartbeat, nil); err != nil {
				t.logger.Debug().Err(err).Msg("heartbeat failed")
				t.Close()
				return
			}
		case <-t.done:
			return
		}
	}
}
