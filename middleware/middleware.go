// Package middleware wraps the dispatcher with cross-cutting behaviour.
//
// Middlewares compose as an onion around the dispatch handler:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
//	A.before → B.before → C.before → h → C.after → B.after → A.after
//
// Every middleware must pass exactly one Reply back for each Request: the
// transport relies on replies being 1:1 and in order.
package middleware

import (
	"context"

	"scene-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Reply

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
