package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jigged/shopfloor/pkg/events"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// Occupy records operatorID as the holder of stationID without touching any
// work order. Both the station and the operator must be known.
func (e *Engine) Occupy(ctx context.Context, stationID, operatorID string) (occupancy models.Occupancy, err error) {
	ctx, span := e.startSpan(ctx, "occupy",
		attribute.String(otelhelper.StationIDKey, stationID),
		attribute.String(otelhelper.OperatorIDKey, operatorID),
	)
	defer func() { finish(span, err) }()

	err = e.requireHolder(ctx, stationID, operatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	occupancy, err = e.occupancy.Occupy(ctx, stationID, operatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	e.publish(ctx, stationID, events.StationOccupied{
		BaseEvent: events.NewBaseEvent(events.StationOccupiedEvent, "", operatorID),
		Occupancy: occupancy,
	})

	return occupancy, nil
}

// Takeover hands stationID to newOperatorID whoever held it before.
func (e *Engine) Takeover(ctx context.Context, stationID, newOperatorID string) (occupancy models.Occupancy, err error) {
	ctx, span := e.startSpan(ctx, "takeover",
		attribute.String(otelhelper.StationIDKey, stationID),
		attribute.String(otelhelper.OperatorIDKey, newOperatorID),
	)
	defer func() { finish(span, err) }()

	err = e.requireHolder(ctx, stationID, newOperatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	prior, held, err := e.occupancy.Get(ctx, stationID)
	if err != nil {
		return models.Occupancy{}, fmt.Errorf("failed to read occupancy of station %s: %w", stationID, err)
	}

	occupancy, err = e.occupancy.Takeover(ctx, stationID, newOperatorID)
	if err != nil {
		return models.Occupancy{}, err
	}

	previous := ""
	if held {
		previous = prior.OperatorID
	}

	e.logger.InfoContext(ctx, "Station taken over",
		"station_id", stationID,
		"operator_id", newOperatorID,
		"previous_operator", previous,
	)

	e.publish(ctx, stationID, events.StationTakenOver{
		BaseEvent:        events.NewBaseEvent(events.StationTakenOverEvent, "", newOperatorID),
		Occupancy:        occupancy,
		PreviousOperator: previous,
	})

	return occupancy, nil
}

// Release frees stationID. Releasing a free station is a no-op.
func (e *Engine) Release(ctx context.Context, stationID string) (err error) {
	ctx, span := e.startSpan(ctx, "release", attribute.String(otelhelper.StationIDKey, stationID))
	defer func() { finish(span, err) }()

	prior, held, err := e.occupancy.Get(ctx, stationID)
	if err != nil {
		return fmt.Errorf("failed to read occupancy of station %s: %w", stationID, err)
	}

	err = e.occupancy.Release(ctx, stationID)
	if err != nil {
		return err
	}

	if held {
		e.publish(ctx, stationID, events.StationReleased{
			BaseEvent:  events.NewBaseEvent(events.StationReleasedEvent, "", prior.OperatorID),
			StationID:  stationID,
			OperatorID: prior.OperatorID,
		})
	}

	return nil
}

// Occupancy returns the holder of stationID, if any.
func (e *Engine) Occupancy(ctx context.Context, stationID string) (models.Occupancy, bool, error) {
	return e.occupancy.Get(ctx, stationID)
}

// Occupancies lists every held station ordered by station id.
func (e *Engine) Occupancies(ctx context.Context) ([]models.Occupancy, error) {
	return e.occupancy.List(ctx)
}

// ExpireOccupancies releases every occupancy held longer than maxAge.
func (e *Engine) ExpireOccupancies(ctx context.Context, maxAge time.Duration) (released []models.Occupancy, err error) {
	ctx, span := e.startSpan(ctx, "expire_occupancies")
	defer func() { finish(span, err) }()

	if maxAge <= 0 {
		return nil, models.NewValidationError("max_age", "max age must be positive")
	}

	released, err = e.occupancy.ReleaseOlderThan(ctx, e.now().Add(-maxAge))

	for _, occupancy := range released {
		e.logger.InfoContext(ctx, "Station occupancy expired",
			"station_id", occupancy.StationID,
			"operator_id", occupancy.OperatorID,
			"since", occupancy.Since,
		)

		e.publish(ctx, occupancy.StationID, events.OccupancyExpired{
			BaseEvent: events.NewBaseEvent(events.OccupancyExpiredEvent, "", occupancy.OperatorID),
			Occupancy: occupancy,
		})
	}

	if err != nil {
		return released, fmt.Errorf("failed to expire occupancies: %w", err)
	}

	return released, nil
}

func (e *Engine) requireHolder(ctx context.Context, stationID, operatorID string) error {
	err := e.requireStation(ctx, stationID)
	if err != nil {
		return err
	}

	_, err = e.requireOperator(ctx, operatorID)

	return err
}

// releaseHeldBy frees stationID only while operatorID still holds it.
func (e *Engine) releaseHeldBy(ctx context.Context, stationID, operatorID string) {
	current, held, err := e.occupancy.Get(ctx, stationID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to read station occupancy", "station_id", stationID, "error", err)

		return
	}

	if !held || current.OperatorID != operatorID {
		return
	}

	e.releaseQuietly(ctx, stationID)

	e.publish(ctx, stationID, events.StationReleased{
		BaseEvent:  events.NewBaseEvent(events.StationReleasedEvent, "", operatorID),
		StationID:  stationID,
		OperatorID: operatorID,
	})
}

func (e *Engine) releaseQuietly(ctx context.Context, stationID string) {
	err := e.occupancy.Release(ctx, stationID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to release station", "station_id", stationID, "error", err)
	}
}
