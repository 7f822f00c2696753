package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSTransport is a Conn over a WebSocket. Requests and responses are binary
// messages. The front end reports a rejected request either as a text
// message or by closing with a protocol error, depending on its policy.
type WSTransport struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	calling sync.Mutex
	broken  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// DialWebSocket connects to a front end's WebSocket endpoint, e.g.
// ws://host:8081/scene?session=lab.
func DialWebSocket(ctx context.Context, url string, opts ...Option) (*WSTransport, error) {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	if o.limits.MaxBodyBytes > 0 {
		conn.SetReadLimit(int64(o.limits.MaxBodyBytes))
	}
	t := &WSTransport{
		conn:   conn,
		logger: o.logger.With().Str("component", "transport").Str("remote", url).Logger(),
		done:   make(chan struct{}),
	}
	if o.heartbeat > 0 {
		go t.pingLoop(o.heartbeat)
	}
	return t, nil
}

// Call sends frame and waits for the reply.
func (t *WSTransport) Call(ctx context.Context, frame []byte) ([]byte, error) {
	t.calling.Lock()
	defer t.calling.Unlock()

	if t.broken.Load() {
		return nil, ErrBroken
	}

	defer interruptOn(ctx, func(d time.Time) {
		t.conn.SetReadDeadline(d)
		t.conn.SetWriteDeadline(d)
	})()

	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, t.fail(ctx, err)
	}
	mt, body, err := t.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.CloseProtocolError {
			t.Close()
			return nil, &FaultError{Msg: ce.Text}
		}
		return nil, t.fail(ctx, err)
	}
	if mt == websocket.TextMessage {
		return nil, &FaultError{Msg: string(body)}
	}
	return body, nil
}

func (t *WSTransport) fail(ctx context.Context, err error) error {
	t.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrBroken, err)
}

func (t *WSTransport) Broken() bool {
	return t.broken.Load()
}

// Close sends a normal close and drops the connection.
func (t *WSTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.broken.Store(true)
		close(t.done)
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// pingLoop uses WebSocket pings as heartbeats. WriteControl may run
// concurrently with Call's writes.
func (t *WSTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				t.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		case <-t.done:
			return
		}
	}
}
