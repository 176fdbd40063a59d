package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/draftgate/draftgate/request"
)

// Logging returns middleware that logs run start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *request.Request, next Handler) error {
		logger.Info("run started",
			slog.String("request_id", r.ID.String()),
			slog.String("queue", r.Queue),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("run failed",
				slog.String("request_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("run completed",
				slog.String("request_id", r.ID.String()),
				slog.String("outcome", r.Outcome),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
