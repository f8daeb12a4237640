package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jigged/shopfloor/pkg/events"
	"github.com/jigged/shopfloor/pkg/flow"
	"github.com/jigged/shopfloor/pkg/identity"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/jigged/shopfloor/pkg/routing"
	"github.com/jigged/shopfloor/pkg/workorder"
	"go.opentelemetry.io/otel/attribute"
)

// SubmitWorkOrderRequest creates a work order in the requested state.
type SubmitWorkOrderRequest struct {
	// OrderNumber is generated when empty.
	OrderNumber    string `json:"order_number"    validate:"omitempty,max=64"`
	TemplateID     string `json:"template_id"     validate:"required"`
	CustomerID     string `json:"customer_id"     validate:"required"`
	SalesPersonID  string `json:"sales_person_id"`
	EstimatedPrice int64  `json:"estimated_price" validate:"gte=0"`
}

// CompleteStepRequest carries what the operator reports when finishing a station.
type CompleteStepRequest struct {
	// OperatorID claims the step when nobody started it.
	OperatorID string
	Materials  []models.MaterialUsage
	Notes      string
	// QuantityCompleted defaults to 1 when zero.
	QuantityCompleted int64
	QuantityScrapped  int64
}

// SubmitWorkOrder stores a new requested work order for an existing template.
func (e *Engine) SubmitWorkOrder(ctx context.Context, req SubmitWorkOrderRequest) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "submit_work_order", attribute.String(otelhelper.TemplateIDKey, req.TemplateID))
	defer func() { finish(span, err) }()

	err = e.validateStruct(req)
	if err != nil {
		return nil, err
	}

	template, err := e.persistence.Templates().GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", req.TemplateID, err)
	}

	if template == nil {
		return nil, models.NewValidationError("template_id", "unknown template "+req.TemplateID)
	}

	now := e.now()

	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		orderNumber = generateOrderNumber(now)
	}

	existing, err := e.findByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return nil, models.NewValidationError("order_number", "order number "+orderNumber+" is already in use")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate work order ID: %w", err)
	}

	order = &models.WorkOrder{
		ID:              id.String(),
		OrderNumber:     orderNumber,
		TemplateID:      template.ID,
		CustomerID:      req.CustomerID,
		SalesPersonID:   req.SalesPersonID,
		Status:          models.WorkOrderStatusRequested,
		EstimatedPrice:  req.EstimatedPrice,
		RequestedAt:     now,
		CurrentStations: []string{},
		StationHistory:  []models.StationHistoryEntry{},
	}

	err = e.persistence.WorkOrders().Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to create work order: %w", err)
	}

	e.logger.InfoContext(ctx, "Work order submitted",
		"work_order_id", order.ID,
		"order_number", order.OrderNumber,
		"template_id", order.TemplateID,
	)

	e.publish(ctx, order.ID, events.WorkOrderSubmitted{
		BaseEvent:      events.NewBaseEvent(events.WorkOrderSubmittedEvent, order.ID, req.SalesPersonID),
		OrderNumber:    order.OrderNumber,
		TemplateID:     order.TemplateID,
		CustomerID:     order.CustomerID,
		EstimatedPrice: order.EstimatedPrice,
	})

	return order, nil
}

// WorkOrder returns a work order by id.
func (e *Engine) WorkOrder(ctx context.Context, workOrderID string) (*models.WorkOrder, error) {
	return e.loadWorkOrder(ctx, workOrderID)
}

// ListWorkOrders returns the work orders matching filter.
func (e *Engine) ListWorkOrders(ctx context.Context, filter persistence.WorkOrderFilter) ([]*models.WorkOrder, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+string(*filter.Status))
	}

	orders, err := e.persistence.WorkOrders().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}

	return orders, nil
}

// ScanWorkOrder resolves identifier as a work order id, then as an exact order
// number, then as part of an order number (first match wins), and checks that
// stationID is a legal next step for it. It never changes the order.
func (e *Engine) ScanWorkOrder(ctx context.Context, identifier, stationID string) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "scan_work_order", attribute.String(otelhelper.StationIDKey, stationID))
	defer func() { finish(span, err) }()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, models.NewValidationError("identifier", "work order id or number is required")
	}

	if strings.TrimSpace(stationID) == "" {
		return nil, models.NewValidationError("station_id", "station id is required")
	}

	order, err = e.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkOrderIDKey, order.ID))

	template, err := e.loadTemplate(ctx, order.TemplateID)
	if err != nil {
		return nil, err
	}

	if !routing.IsValidNextStation(order, template, stationID) {
		return nil, &models.StationNotApplicableError{
			WorkOrderID: order.ID,
			StationID:   stationID,
			Status:      order.Status,
		}
	}

	e.logger.DebugContext(ctx, "Work order scanned", "work_order_id", order.ID, "station_id", stationID)

	return order, nil
}

// StartWork starts operatorID on stationID. The transition is checked first,
// then the station is occupied; an occupancy conflict leaves the order as it was.
// Once stored, the operator's session moves to this step: a session on other
// work ends as switched and stations they held elsewhere are released.
func (e *Engine) StartWork(ctx context.Context, workOrderID, stationID, operatorID string) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "start_work",
		attribute.String(otelhelper.WorkOrderIDKey, workOrderID),
		attribute.String(otelhelper.StationIDKey, stationID),
		attribute.String(otelhelper.OperatorIDKey, operatorID),
	)
	defer func() { finish(span, err) }()

	_, err = e.requireOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	prior, held, err := e.occupancy.Get(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read occupancy of station %s: %w", stationID, err)
	}

	alreadyHeld := held && prior.OperatorID == operatorID
	occupied := false

	order, err = e.mutate(ctx, workOrderID, func(ctx context.Context, current *models.WorkOrder, template *models.WorkflowTemplate) (*models.WorkOrder, error) {
		next, err := e.machine.StartWork(current, template, stationID, operatorID)
		if err != nil {
			return nil, err
		}

		_, err = e.occupancy.Occupy(ctx, stationID, operatorID)
		if err != nil {
			return nil, err
		}

		occupied = true

		return next, nil
	})
	if err != nil {
		if occupied && !alreadyHeld {
			e.releaseQuietly(ctx, stationID)
		}

		return nil, err
	}

	e.switchSession(ctx, order.ID, stationID, operatorID)

	entry := order.StationHistory[order.OpenEntryIndex(stationID)]

	e.logger.InfoContext(ctx, "Work started",
		"work_order_id", order.ID,
		"station_id", stationID,
		"operator_id", operatorID,
		"status", order.Status,
	)

	e.publish(ctx, order.ID, events.StationStarted{
		BaseEvent:  events.NewBaseEvent(events.StationStartedEvent, order.ID, operatorID),
		StationID:  stationID,
		OperatorID: operatorID,
		StartedAt:  entry.StartedAt,
	})

	return order, nil
}

// CompleteStep finishes the open work at stationID, records material
// consumption and quantities, ends the completing operator's session on it
// and releases the station if they hold it.
func (e *Engine) CompleteStep(ctx context.Context, workOrderID, stationID string, req CompleteStepRequest) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "complete_step",
		attribute.String(otelhelper.WorkOrderIDKey, workOrderID),
		attribute.String(otelhelper.StationIDKey, stationID),
	)
	defer func() { finish(span, err) }()

	var (
		activated []string
		finished  bool
		used      []models.MaterialUsage
	)

	order, err = e.mutate(ctx, workOrderID, func(_ context.Context, current *models.WorkOrder, template *models.WorkflowTemplate) (*models.WorkOrder, error) {
		err := e.machine.CanComplete(current, stationID)
		if err != nil {
			return nil, err
		}

		node, ok := flow.StationNode(template, stationID)
		if !ok {
			return nil, &models.NoOpenWorkError{WorkOrderID: current.ID, StationID: stationID}
		}

		used, err = e.recorder.Record(node, req.Materials)
		if err != nil {
			return nil, err
		}

		next, result, err := e.machine.CompleteStep(current, template, stationID, workorder.StepReport{
			OperatorID:        req.OperatorID,
			MaterialsUsed:     used,
			Notes:             req.Notes,
			QuantityCompleted: req.QuantityCompleted,
			QuantityScrapped:  req.QuantityScrapped,
		})
		if err != nil {
			return nil, err
		}

		activated = result.Activated
		finished = result.Finished

		return next, nil
	})
	if err != nil {
		return nil, err
	}

	entry := completedEntry(order, stationID)

	e.logger.InfoContext(ctx, "Step completed",
		"work_order_id", order.ID,
		"station_id", stationID,
		"operator_id", entry.OperatorID,
		"activated", activated,
		"status", order.Status,
	)

	e.publish(ctx, order.ID, events.StationCompleted{
		BaseEvent:     events.NewBaseEvent(events.StationCompletedEvent, order.ID, entry.OperatorID),
		StationID:     stationID,
		OperatorID:    entry.OperatorID,
		MaterialsUsed: used,
		Activated:     activated,
		CompletedAt:   *entry.CompletedAt,
	})

	if finished {
		e.logger.InfoContext(ctx, "Work order finished", "work_order_id", order.ID)

		e.publish(ctx, order.ID, events.WorkOrderFinished{
			BaseEvent:   events.NewBaseEvent(events.WorkOrderFinishedEvent, order.ID, entry.OperatorID),
			OrderNumber: order.OrderNumber,
			FinishedAt:  *order.FinishedAt,
		})
	}

	if entry.OperatorID != "" {
		e.endSession(ctx, order.ID, stationID, entry.OperatorID, models.SessionCompleted)
		e.releaseHeldBy(ctx, stationID, entry.OperatorID)
	}

	return order, nil
}

// Approve moves a requested order to approved. Only owners may approve.
func (e *Engine) Approve(ctx context.Context, workOrderID, approverID string) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "approve",
		attribute.String(otelhelper.WorkOrderIDKey, workOrderID),
		attribute.String(otelhelper.ActorIDKey, approverID),
	)
	defer func() { finish(span, err) }()

	_, err = identity.RequireRole(ctx, e.identity, approverID, models.RoleOwner, models.ActionApprove)
	if err != nil {
		return nil, err
	}

	order, err = e.mutate(ctx, workOrderID, func(_ context.Context, current *models.WorkOrder, _ *models.WorkflowTemplate) (*models.WorkOrder, error) {
		return e.machine.Approve(current, approverID)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Work order approved", "work_order_id", order.ID, "approved_by", approverID)

	e.publish(ctx, order.ID, events.WorkOrderApproved{
		BaseEvent:   events.NewBaseEvent(events.WorkOrderApprovedEvent, order.ID, approverID),
		OrderNumber: order.OrderNumber,
		ApprovedAt:  *order.ApprovedAt,
	})

	return order, nil
}

// Reject moves a requested order to the terminal rejected state. Only owners may reject.
func (e *Engine) Reject(ctx context.Context, workOrderID, rejecterID, reason string) (order *models.WorkOrder, err error) {
	ctx, span := e.startSpan(ctx, "reject",
		attribute.String(otelhelper.WorkOrderIDKey, workOrderID),
		attribute.String(otelhelper.ActorIDKey, rejecterID),
	)
	defer func() { finish(span, err) }()

	_, err = identity.RequireRole(ctx, e.identity, rejecterID, models.RoleOwner, models.ActionReject)
	if err != nil {
		return nil, err
	}

	order, err = e.mutate(ctx, workOrderID, func(_ context.Context, current *models.WorkOrder, _ *models.WorkflowTemplate) (*models.WorkOrder, error) {
		return e.machine.Reject(current, rejecterID, reason)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Work order rejected",
		"work_order_id", order.ID,
		"rejected_by", rejecterID,
		"reason", reason,
	)

	e.publish(ctx, order.ID, events.WorkOrderRejected{
		BaseEvent:   events.NewBaseEvent(events.WorkOrderRejectedEvent, order.ID, rejecterID),
		OrderNumber: order.OrderNumber,
		Reason:      order.RejectionReason,
		RejectedAt:  *order.RejectedAt,
	})

	return order, nil
}

func (e *Engine) resolve(ctx context.Context, identifier string) (*models.WorkOrder, error) {
	order, err := e.persistence.WorkOrders().GetByID(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load work order %s: %w", identifier, err)
	}

	if order != nil {
		return order, nil
	}

	candidates, err := e.persistence.WorkOrders().List(ctx, persistence.WorkOrderFilter{OrderNumberContains: identifier})
	if err != nil {
		return nil, fmt.Errorf("failed to search work orders: %w", err)
	}

	for _, candidate := range candidates {
		if strings.EqualFold(candidate.OrderNumber, identifier) {
			return candidate, nil
		}
	}

	if len(candidates) > 0 {
		return candidates[0], nil
	}

	return nil, &models.NotFoundError{Kind: "work_order", ID: identifier}
}

func (e *Engine) findByOrderNumber(ctx context.Context, orderNumber string) (*models.WorkOrder, error) {
	candidates, err := e.persistence.WorkOrders().List(ctx, persistence.WorkOrderFilter{OrderNumberContains: orderNumber})
	if err != nil {
		return nil, fmt.Errorf("failed to search work orders: %w", err)
	}

	for _, candidate := range candidates {
		if strings.EqualFold(candidate.OrderNumber, orderNumber) {
			return candidate, nil
		}
	}

	return nil, nil
}

// completedEntry returns the most recently completed entry of stationID.
func completedEntry(order *models.WorkOrder, stationID string) models.StationHistoryEntry {
	for i := len(order.StationHistory) - 1; i >= 0; i-- {
		entry := order.StationHistory[i]
		if entry.StationID == stationID && !entry.Open() {
			return entry
		}
	}

	return models.StationHistoryEntry{StationID: stationID}
}

// generateOrderNumber returns WO-<yyyymmdd>-<6 hex digits>.
func generateOrderNumber(now time.Time) string {
	id := uuid.New()

	return fmt.Sprintf("WO-%s-%X", now.Format("20060102"), id[:3])
}
