package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jigged/shopfloor/pkg/events"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/jigged/shopfloor/pkg/routing"
	"go.opentelemetry.io/otel/attribute"
)

// QueueItem is one work order waiting at, or being worked at, a station.
type QueueItem struct {
	WorkOrder *models.WorkOrder `json:"work_order"`
	// OperatorID is empty while nobody has started the step.
	OperatorID   string     `json:"operator_id,omitempty"`
	OperatorName string     `json:"operator_name,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

// StopWork pauses operatorID's work on workOrderID at stationID. The active
// session ends with notes and the station is released; the step stays open
// so the same or another operator can start it again.
func (e *Engine) StopWork(ctx context.Context, workOrderID, stationID, operatorID, notes string) (session *models.WorkSession, err error) {
	ctx, span := e.startSpan(ctx, "stop_work",
		attribute.String(otelhelper.WorkOrderIDKey, workOrderID),
		attribute.String(otelhelper.StationIDKey, stationID),
		attribute.String(otelhelper.OperatorIDKey, operatorID),
	)
	defer func() { finish(span, err) }()

	_, err = e.requireOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	session, err = e.persistence.Sessions().Active(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active session of %s: %w", operatorID, err)
	}

	if session == nil || !session.Covers(workOrderID, stationID) {
		return nil, &models.NotFoundError{Kind: "session", ID: operatorID}
	}

	now := e.now()
	session.End(now, models.SessionStopped, strings.TrimSpace(notes))

	err = e.persistence.Sessions().Update(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to end session %s: %w", session.ID, err)
	}

	e.releaseHeldBy(ctx, stationID, operatorID)

	worked := session.Duration(now)

	e.logger.InfoContext(ctx, "Work stopped",
		"work_order_id", workOrderID,
		"station_id", stationID,
		"operator_id", operatorID,
		"worked", worked,
	)

	e.publish(ctx, workOrderID, events.StationStopped{
		BaseEvent:  events.NewBaseEvent(events.StationStoppedEvent, workOrderID, operatorID),
		StationID:  stationID,
		OperatorID: operatorID,
		SessionID:  session.ID,
		Worked:     worked,
		Notes:      session.Notes,
	})

	return session, nil
}

// ActiveSession returns the operator's open session, or nil when they are idle.
func (e *Engine) ActiveSession(ctx context.Context, operatorID string) (*models.WorkSession, error) {
	_, err := e.requireOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	session, err := e.persistence.Sessions().Active(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active session of %s: %w", operatorID, err)
	}

	return session, nil
}

// OperatorSessions returns the operator's session history, most recent first.
func (e *Engine) OperatorSessions(ctx context.Context, operatorID string) ([]*models.WorkSession, error) {
	_, err := e.requireOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	sessions, err := e.persistence.Sessions().ListByOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of %s: %w", operatorID, err)
	}

	return sessions, nil
}

// StationQueue lists the work at stationID: orders with an open step there
// first, then approved orders that would start there.
func (e *Engine) StationQueue(ctx context.Context, stationID string) (queue []QueueItem, err error) {
	ctx, span := e.startSpan(ctx, "station_queue", attribute.String(otelhelper.StationIDKey, stationID))
	defer func() { finish(span, err) }()

	err = e.requireStation(ctx, stationID)
	if err != nil {
		return nil, err
	}

	inProgress := models.WorkOrderStatusInProgress

	open, err := e.persistence.WorkOrders().List(ctx, persistence.WorkOrderFilter{
		Status:         &inProgress,
		CurrentStation: stationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list work at station %s: %w", stationID, err)
	}

	queue = make([]QueueItem, 0, len(open))

	for _, order := range open {
		item := QueueItem{WorkOrder: order}

		index := order.OpenEntryIndex(stationID)
		if index >= 0 && order.StationHistory[index].OperatorID != "" {
			entry := order.StationHistory[index]
			startedAt := entry.StartedAt

			item.OperatorID = entry.OperatorID
			item.OperatorName = e.operatorName(ctx, entry.OperatorID)
			item.StartedAt = &startedAt
		}

		queue = append(queue, item)
	}

	approved := models.WorkOrderStatusApproved

	waiting, err := e.persistence.WorkOrders().List(ctx, persistence.WorkOrderFilter{Status: &approved})
	if err != nil {
		return nil, fmt.Errorf("failed to list approved work orders: %w", err)
	}

	templates := make(map[string]*models.WorkflowTemplate)

	for _, order := range waiting {
		template, ok := templates[order.TemplateID]
		if !ok {
			template, err = e.loadTemplate(ctx, order.TemplateID)
			if err != nil {
				return nil, err
			}

			templates[order.TemplateID] = template
		}

		if routing.IsValidNextStation(order, template, stationID) {
			queue = append(queue, QueueItem{WorkOrder: order})
		}
	}

	return queue, nil
}

// switchSession makes (workOrderID, stationID) the operator's active session.
// A session on other work ends as switched and every other station the
// operator holds is released. Failures are logged: the order is already written.
func (e *Engine) switchSession(ctx context.Context, workOrderID, stationID, operatorID string) {
	e.releaseOtherStations(ctx, stationID, operatorID)

	sessions := e.persistence.Sessions()

	active, err := sessions.Active(ctx, operatorID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load active session", "operator_id", operatorID, "error", err)

		return
	}

	if active != nil {
		if active.Covers(workOrderID, stationID) {
			return
		}

		active.End(e.now(), models.SessionSwitched, "")

		err = sessions.Update(ctx, active)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to end session", "session_id", active.ID, "error", err)

			return
		}

		e.logger.InfoContext(ctx, "Session switched",
			"session_id", active.ID,
			"operator_id", operatorID,
			"from_work_order_id", active.WorkOrderID,
			"from_station_id", active.StationID,
		)
	}

	id, err := uuid.NewV7()
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to generate session ID", "error", err)

		return
	}

	err = sessions.Create(ctx, &models.WorkSession{
		ID:          id.String(),
		OperatorID:  operatorID,
		WorkOrderID: workOrderID,
		StationID:   stationID,
		StartedAt:   e.now(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to start session", "operator_id", operatorID, "error", err)
	}
}

// endSession closes the operator's active session if it covers the given work.
func (e *Engine) endSession(ctx context.Context, workOrderID, stationID, operatorID string, reason models.SessionEndReason) {
	sessions := e.persistence.Sessions()

	active, err := sessions.Active(ctx, operatorID)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to load active session", "operator_id", operatorID, "error", err)

		return
	}

	if active == nil || !active.Covers(workOrderID, stationID) {
		return
	}

	active.End(e.now(), reason, "")

	err = sessions.Update(ctx, active)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to end session", "session_id", active.ID, "error", err)
	}
}

func (e *Engine) releaseOtherStations(ctx context.Context, keep, operatorID string) {
	held, err := e.occupancy.List(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to list station occupancy", "error", err)

		return
	}

	for _, occupancy := range held {
		if occupancy.OperatorID == operatorID && occupancy.StationID != keep {
			e.releaseHeldBy(ctx, occupancy.StationID, operatorID)
		}
	}
}

func (e *Engine) requireStation(ctx context.Context, stationID string) error {
	if strings.TrimSpace(stationID) == "" {
		return models.NewValidationError("station_id", "station id is required")
	}

	station, err := e.persistence.Stations().GetByID(ctx, stationID)
	if err != nil {
		return fmt.Errorf("failed to load station %s: %w", stationID, err)
	}

	if station == nil {
		return &models.NotFoundError{Kind: "station", ID: stationID}
	}

	return nil
}

// requireOperator resolves operatorID through the identity provider. Unknown
// ids surface as models.NotFoundError.
func (e *Engine) requireOperator(ctx context.Context, operatorID string) (models.Actor, error) {
	if strings.TrimSpace(operatorID) == "" {
		return models.Actor{}, models.NewValidationError("operator_id", "operator id is required")
	}

	actor, err := e.identity.Actor(ctx, operatorID)
	if err != nil {
		return models.Actor{}, fmt.Errorf("failed to resolve operator %s: %w", operatorID, err)
	}

	return actor, nil
}

func (e *Engine) operatorName(ctx context.Context, operatorID string) string {
	actor, err := e.identity.Actor(ctx, operatorID)
	if err != nil {
		return ""
	}

	return actor.Name
}
