package eventbus

import (
	"context"
	"log/slog"

	"github.com/jigged/shopfloor/pkg/events"
)

type enveloped interface {
	Envelope() events.BaseEvent
}

// AuditLog writes every consumed shop-floor event as one structured log record.
type AuditLog struct {
	logger *slog.Logger
}

func NewAuditLog(logger *slog.Logger) *AuditLog {
	return &AuditLog{logger: logger.With("module", "audit")}
}

// Register subscribes the audit log to every event type the engine publishes.
func (a *AuditLog) Register(subscriber EventSubscriber) error {
	return HandleAll(subscriber, events.All, a.Handle)
}

func (a *AuditLog) Handle(ctx context.Context, event Event) error {
	attrs := []slog.Attr{slog.String("event_type", string(event.GetType()))}

	if e, ok := event.(enveloped); ok {
		base := e.Envelope()

		attrs = append(attrs,
			slog.String("event_id", base.ID),
			slog.Time("occurred_at", base.Timestamp),
		)

		if base.WorkOrderID != "" {
			attrs = append(attrs, slog.String("work_order_id", base.WorkOrderID))
		}

		if base.ActorID != "" {
			attrs = append(attrs, slog.String("actor_id", base.ActorID))
		}
	}

	if stationID := stationOf(event); stationID != "" {
		attrs = append(attrs, slog.String("station_id", stationID))
	}

	a.logger.LogAttrs(ctx, slog.LevelInfo, "Shop-floor event", attrs...)

	return nil
}

func stationOf(event Event) string {
	switch e := event.(type) {
	case *events.StationStarted:
		return e.StationID
	case *events.StationStopped:
		return e.StationID
	case *events.StationCompleted:
		return e.StationID
	case *events.StationReleased:
		return e.StationID
	case *events.StationOccupied:
		return e.Occupancy.StationID
	case *events.StationTakenOver:
		return e.Occupancy.StationID
	case *events.OccupancyExpired:
		return e.Occupancy.StationID
	default:
		return ""
	}
}
