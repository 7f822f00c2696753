package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"scene-rpc/message"
)

// RateLimit admits frames through a token bucket of r frames per second.
// Frames over the limit wait for a token instead of being dropped, so the
// controller sees back-pressure rather than missing replies. A frame whose
// context ends while waiting faults.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			if err := limiter.Wait(ctx); err != nil {
				return message.FaultReply(fmt.Errorf("rate limit: %w", err))
			}
			return next(ctx, req)
		}
	}
}
