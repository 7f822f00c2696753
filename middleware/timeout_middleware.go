package middleware

import (
	"context"
	"time"

	"scene-rpc/message"
)

// Timeout gives each dispatch a deadline. Handlers that watch ctx can give
// up and return ctx.Err(), which turns into the operation's failure value.
// The dispatch itself is never abandoned: the session stays locked until
// the handler returns.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}
