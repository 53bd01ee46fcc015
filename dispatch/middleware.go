package dispatch

import (
	"context"

	"procbridge/protocol"
)

// HandlerFunc processes one application RPC request into a fulfillment.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Fulfillment

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one. Chain(A, B, C)(handler) wraps as
// A(B(C(handler))): A sees the request first and the fulfillment last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
