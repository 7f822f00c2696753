package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"scene-rpc/message"
)

// Logging logs every dispatched frame: debug for successes, warn for
// failures and faults.
func Logging(logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "dispatch").Logger()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			start := time.Now()
			reply := next(ctx, req)

			ev := logger.Debug()
			if reply.Outcome != message.OK {
				ev = logger.Warn().Err(reply.Err)
			}
			ev.Str("op", reply.Op).
				Int32("opcode", reply.Opcode).
				Str("outcome", reply.Outcome.String()).
				Str("transport", req.Transport).
				Str("remote", req.Remote).
				Int("in", len(req.Frame)).
				Int("out", len(reply.Frame)).
				Dur("took", time.Since(start)).
				Msg("frame dispatched")
			return reply
		}
	}
}
