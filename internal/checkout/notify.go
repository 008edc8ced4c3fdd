package checkout

import (
	"context"
	"log/slog"

	"github.com/dukerupert/botica/internal/events"
	"github.com/dukerupert/botica/internal/telemetry"
)

// notifier publishes checkout events, logging and counting failures.
type notifier struct {
	publisher events.Publisher
	metrics   *telemetry.CheckoutMetrics
	logger    *slog.Logger
}

func (n notifier) emit(ctx context.Context, typ, sessionID, intentID string, data interface{}) {
	if n.publisher == nil {
		return
	}
	e, err := events.New(typ, sessionID, intentID, data)
	if err == nil {
		err = n.publisher.Publish(ctx, e)
	}
	if err != nil {
		n.metrics.PublishFailed(typ)
		n.logger.Warn("event publish failed",
			slog.String("event", typ),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
