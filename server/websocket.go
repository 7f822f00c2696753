package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scene-rpc/message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// controllers are local tools, not browsers
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler returns the HTTP handler serving the WebSocket endpoint at wsPath
// and Prometheus metrics at metricsPath. An empty path disables that route.
func (svr *Server) Handler(wsPath, metricsPath string) http.Handler {
	mux := http.NewServeMux()
	if wsPath != "" {
		mux.HandleFunc(wsPath, svr.serveWebSocket)
	}
	if metricsPath != "" {
		mux.Handle(metricsPath, promhttp.Handler())
	}
	return mux
}

// ServeWeb runs an HTTP server for h on ln until Shutdown.
func (svr *Server) ServeWeb(ln net.Listener, h http.Handler) error {
	hs := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		return nil
	}
	svr.httpServer = hs
	svr.mu.Unlock()

	svr.ops.Seal()
	err := hs.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// serveWebSocket serves one WebSocket connection: binary messages are
// frames, text messages are logged.
func (svr *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		svr.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	if !svr.track(conn, "ws") {
		return
	}
	defer svr.untrack(conn, "ws")
	conn.SetReadLimit(int64(svr.opts.Limits.MaxBodyBytes))

	name := r.URL.Query().Get("session")
	if name == "" {
		name = svr.opts.Session
	}
	sess := svr.sessions.Open(name)
	defer svr.sessions.Close(sess)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	remote := r.RemoteAddr
	log := svr.logger.With().Str("remote", remote).Str("session", sess.ID).Str("transport", "ws").Logger()
	log.Debug().Msg("connection opened")
	handler := svr.chain(NewDispatcher(svr.ops, log))

	for {
		if svr.opts.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(svr.opts.IdleTimeout))
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !svr.shutdown.Load() {
				log.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		if mt == websocket.TextMessage {
			log.Info().Str("text", string(data)).Msg("text message")
			continue
		}

		reply, ok := svr.dispatch(ctx, handler, &message.Request{
			Session:   sess,
			Frame:     data,
			Transport: "ws",
			Remote:    remote,
		})
		if !ok {
			return
		}

		if reply.Outcome == message.Fault {
			if svr.opts.FaultPolicy == FaultClose {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseProtocolError, truncateReason(reply.Err.Error())),
					time.Now().Add(time.Second))
				return
			}
			err = conn.WriteMessage(websocket.TextMessage, []byte(reply.Err.Error()))
		} else {
			err = conn.WriteMessage(websocket.BinaryMessage, reply.Frame)
		}
		if err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

// truncateReason fits s into a close frame, whose payload is limited to
// 125 bytes including the 2-byte code. The cut never splits a rune.
func truncateReason(s string) string {
	const maxReason = 123
	if len(s) <= maxReason {
		return s
	}
	n := maxReason
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
