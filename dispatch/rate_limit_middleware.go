package dispatch

import (
	"context"

	"golang.org/x/time/rate"

	"procbridge/protocol"
)

// RateLimitMiddleware sheds load with a token bucket. Rejected requests get a
// StatusError fulfillment immediately instead of queueing behind the single
// dispatch thread.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Fulfillment {
			if !limiter.Allow() {
				return &protocol.Fulfillment{
					Interface: req.Interface,
					ID:        req.ID,
					Status:    protocol.StatusError,
				}
			}
			return next(ctx, req)
		}
	}
}
