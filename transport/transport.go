// Package transport carries scene frames from a controller to a front end.
//
// A connection has at most one request in flight: Call writes a request and
// blocks until the matching response or fault comes back. Replies are
// matched by order alone, so concurrent callers are serialized.
//
//	goroutine-1 ──Call──┐
//	goroutine-2 ──Call──┼──→ one request at a time ──→ front end
//	goroutine-3 ──Call──┘
//
// Two transports implement Conn: ClientTransport speaks the TCP envelope of
// package protocol, WSTransport sends one frame per WebSocket message.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrBroken is returned by Call on a connection that failed earlier. A
// broken connection is closed and must be replaced.
var ErrBroken = errors.New("transport: connection broken")

// Conn sends request frames and returns response frames.
type Conn interface {
	Call(ctx context.Context, frame []byte) ([]byte, error)
	Broken() bool
	Close() error
}

// FaultError is returned when the front end rejected a request. The
// connection stays usable.
type FaultError struct {
	Msg string
}

func (e *FaultError) Error() string { return "front end fault: " + e.Msg }

// interruptOn makes blocking I/O fail once ctx ends by moving the deadline
// to now. The returned func must be called when the I/O is over; it clears
// the deadline again if it was moved.
func interruptOn(ctx context.Context, setDeadline func(time.Time)) (restore func()) {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		setDeadline(time.Now())
		close(fired)
	})
	return func() {
		if !stop() {
			<-fired
			setDeadline(time.Time{})
		}
	}
}

// DefaultHeartbeat is how often an idle connection announces itself.
const DefaultHeartbeat = 30 * time.Second
