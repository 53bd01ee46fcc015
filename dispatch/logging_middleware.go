package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"procbridge/protocol"
)

// LoggingMiddleware records every dispatched request with its outcome and
// duration.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Fulfillment {
			start := time.Now()
			f := next(ctx, req)
			logger.Info("dispatched",
				zap.String("interface", req.Interface),
				zap.String("operation", req.Operation),
				zap.Int32("status", f.Status),
				zap.Duration("duration", time.Since(start)))
			return f
		}
	}
}
