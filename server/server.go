// Package server implements the front end: it accepts controller
// connections, dispatches their frames against a session and replies.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → protocol.Decode → middleware chain → Dispatcher.Handle → protocol.Encode
//
// Frames on one connection are handled strictly in order, one at a time, and
// every request gets exactly one response or fault frame. Connections run in
// parallel; those sharing a session are serialized by the session lock.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"scene-rpc/message"
	"scene-rpc/middleware"
	"scene-rpc/operation"
	"scene-rpc/protocol"
	"scene-rpc/registry"
	"scene-rpc/session"
)

// FaultPolicy selects how a WebSocket connection reports a rejected frame.
type FaultPolicy int

const (
	// FaultText sends the diagnostic as a text message and keeps going.
	FaultText FaultPolicy = iota
	// FaultClose closes the connection with a protocol-error close code.
	FaultClose
)

// ParseFaultPolicy maps "text" and "close" to a FaultPolicy.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "", "text":
		return FaultText, nil
	case "close":
		return FaultClose, nil
	default:
		return 0, fmt.Errorf("server: unknown fault policy %q", s)
	}
}

// Options configures a Server.
type Options struct {
	Limits protocol.Limits
	// Session is the session TCP connections join; empty gives every
	// connection a private one. WebSocket clients may pick their own with
	// ?session=.
	Session     string
	FaultPolicy FaultPolicy
	// IdleTimeout closes connections that send nothing, heartbeats
	// included, for this long. Zero disables it.
	IdleTimeout time.Duration
	// Service is the name endpoints are registered under.
	Service string
	Logger  zerolog.Logger
}

// Server is the scene front end.
type Server struct {
	ops         *operation.Registry
	sessions    *session.Store
	opts        Options
	logger      zerolog.Logger
	middlewares []middleware.Middleware

	mu            sync.Mutex // guards the fields below
	listener      net.Listener
	httpServer    *http.Server
	conns         map[io.Closer]struct{}
	registry      registry.Registry // nil if not using discovery
	advertiseAddr string            // routable address, unlike a ":8080" listen address

	wg       sync.WaitGroup // in-flight dispatches
	shutdown atomic.Bool
}

// NewServer creates a server dispatching against ops.
func NewServer(ops *operation.Registry, sessions *session.Store, opts Options) *Server {
	if opts.Limits.MaxBodyBytes == 0 {
		opts.Limits = protocol.DefaultLimits()
	}
	if opts.Service == "" {
		opts.Service = "scene"
	}
	registerMetrics()
	return &Server{
		ops:      ops,
		sessions: sessions,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "server").Logger(),
		conns:    make(map[io.Closer]struct{}),
	}
}

// Use registers a middleware. Middlewares are applied in the order they are
// added and must be registered before serving.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Listen binds the TCP listener without serving, so callers can learn the
// bound address before Serve.
func (svr *Server) Listen(network, address string) (net.Addr, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	svr.mu.Lock()
	svr.listener = ln
	svr.mu.Unlock()
	return ln.Addr(), nil
}

// Serve seals the operation registry, optionally advertises ep and runs the
// accept loop until Shutdown. It listens on address unless Listen was
// called first.
func (svr *Server) Serve(network, address string, ep *registry.Endpoint, reg registry.Registry) error {
	svr.mu.Lock()
	ln := svr.listener
	svr.mu.Unlock()
	if ln == nil {
		if _, err := svr.Listen(network, address); err != nil {
			return err
		}
		svr.mu.Lock()
		ln = svr.listener
		svr.mu.Unlock()
	}

	svr.ops.Seal()

	if reg != nil && ep != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := reg.Register(ctx, svr.opts.Service, *ep, 10) // KeepAlive renews the 10s lease
		cancel()
		if err != nil {
			ln.Close()
			return fmt.Errorf("register endpoint: %w", err)
		}
		svr.mu.Lock()
		svr.registry = reg
		svr.advertiseAddr = ep.Addr
		svr.mu.Unlock()
	}

	svr.logger.Info().Str("addr", ln.Addr().String()).Int("operations", svr.ops.Len()).Msg("serving")
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Shutdown closes the listener; that error is not a failure
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// chain wraps a connection's dispatcher with the registered middlewares.
// Middleware state, such as a rate limiter, is created when the middleware
// is built and so is shared by every connection.
func (svr *Server) chain(d *Dispatcher) middleware.HandlerFunc {
	return middleware.Chain(svr.middlewares...)(d.Handle)
}

func (svr *Server) track(c io.Closer, transport string) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[c] = struct{}{}
	connectionsOpen.WithLabelValues(transport).Inc()
	return true
}

func (svr *Server) untrack(c io.Closer, transport string) {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if _, ok := svr.conns[c]; ok {
		delete(svr.conns, c)
		connectionsOpen.WithLabelValues(transport).Dec()
	}
}

// dispatch runs one request through the chain, counted for Shutdown.
func (svr *Server) dispatch(ctx context.Context, handler middleware.HandlerFunc, req *message.Request) (*message.Reply, bool) {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		return nil, false
	}
	svr.wg.Add(1)
	svr.mu.Unlock()
	defer svr.wg.Done()
	return handler(ctx, req), true
}

// handleConn serves one TCP connection until it closes.
func (svr *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	if !svr.track(conn, "tcp") {
		return
	}
	defer svr.untrack(conn, "tcp")

	sess := svr.sessions.Open(svr.opts.Session)
	defer svr.sessions.Close(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := conn.RemoteAddr().String()
	log := svr.logger.With().Str("remote", remote).Str("session", sess.ID).Logger()
	log.Debug().Msg("connection opened")
	handler := svr.chain(NewDispatcher(svr.ops, log))

	for {
		if svr.opts.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(svr.opts.IdleTimeout))
		}
		header, body, err := protocol.Decode(conn, svr.opts.Limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				log.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeText:
			log.Info().Str("text", string(body)).Msg("text frame")
			continue
		case protocol.MsgTypeRequest:
		default:
			log.Warn().Str("type", header.MsgType.String()).Msg("unexpected frame type")
			continue
		}

		reply, ok := svr.dispatch(ctx, handler, &message.Request{
			Session:   sess,
			Frame:     body,
			Transport: "tcp",
			Remote:    remote,
		})
		if !ok {
			return
		}
		if reply.Outcome == message.Fault {
			err = protocol.Encode(conn, protocol.MsgTypeFault, []byte(reply.Err.Error()))
		} else {
			err = protocol.Encode(conn, protocol.MsgTypeResponse, reply.Frame)
		}
		if err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry, so controllers stop picking this front end
//  2. Set the shutdown flag, so the Accept error is recognized as intentional
//  3. Close the listeners
//  4. Wait for in-flight dispatches, up to timeout
//  5. Close the remaining connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.mu.Lock()
	reg, addr := svr.registry, svr.advertiseAddr
	svr.mu.Unlock()
	if reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := reg.Deregister(ctx, svr.opts.Service, addr); err != nil {
			svr.logger.Warn().Err(err).Msg("deregister failed")
		}
		cancel()
	}

	svr.mu.Lock()
	svr.shutdown.Store(true)
	ln, hs := svr.listener, svr.httpServer
	svr.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if hs != nil {
		// hijacked WebSocket connections are not closed by this
		hs.Close()
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.mu.Lock()
	for c := range svr.conns {
		c.Close()
	}
	svr.mu.Unlock()
	return err
}
