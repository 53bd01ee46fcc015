package dispatch

import (
	"context"
	"time"

	"procbridge/protocol"
)

// TimeoutMiddleware bounds handler execution. The bridge itself has no
// cancellation primitive for an in-flight invoke; bounding handler time on
// the serving side is where timeout policy lives.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Fulfillment {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *protocol.Fulfillment, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case f := <-done:
				return f
			case <-ctx.Done():
				return &protocol.Fulfillment{
					Interface: req.Interface,
					ID:        req.ID,
					Status:    protocol.StatusError,
				}
			}
		}
	}
}
