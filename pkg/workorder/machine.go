// Package workorder implements the work order lifecycle:
// requested, approved or rejected, in progress, finished.
//
// Every transition works on a copy of the order. A failed guard returns a
// typed error from pkg/models and leaves the caller's order untouched.
package workorder

import (
	"slices"
	"strings"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/routing"
)

// Machine applies lifecycle transitions to work orders.
type Machine struct {
	now func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a state machine.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		now: func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// StepResult describes what a completed step changed besides the order itself.
type StepResult struct {
	// Activated lists the stations added to CurrentStations by the step.
	Activated []string
	// Finished is true when the step completed the workflow.
	Finished bool
}

// Approve moves a requested order to approved.
func (m *Machine) Approve(order *models.WorkOrder, approverID string) (*models.WorkOrder, error) {
	if order.Status != models.WorkOrderStatusRequested {
		return nil, &models.InvalidTransitionError{From: order.Status, AttemptedAction: models.ActionApprove}
	}

	if strings.TrimSpace(approverID) == "" {
		return nil, models.NewValidationError("approver_id", "approver id is required")
	}

	now := m.now()

	next := order.Clone()
	next.Status = models.WorkOrderStatusApproved
	next.ApprovedAt = &now
	next.ApprovedBy = approverID

	return next, nil
}

// Reject moves a requested order to the terminal rejected state.
func (m *Machine) Reject(order *models.WorkOrder, rejecterID, reason string) (*models.WorkOrder, error) {
	if order.Status != models.WorkOrderStatusRequested {
		return nil, &models.InvalidTransitionError{From: order.Status, AttemptedAction: models.ActionReject}
	}

	if strings.TrimSpace(rejecterID) == "" {
		return nil, models.NewValidationError("rejecter_id", "rejecter id is required")
	}

	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("reason", "rejection reason is required")
	}

	now := m.now()

	next := order.Clone()
	next.Status = models.WorkOrderStatusRejected
	next.RejectedAt = &now
	next.RejectedBy = rejecterID
	next.RejectionReason = reason

	return next, nil
}

// StartWork records operatorID working at stationID.
//
// From approved, stationID must be a starting station; the order moves to in
// progress and the remaining starting stations are activated unclaimed. From
// in progress, stationID must be current and its open entry is claimed by
// operatorID.
func (m *Machine) StartWork(order *models.WorkOrder, template *models.WorkflowTemplate, stationID, operatorID string) (*models.WorkOrder, error) {
	if order.Status != models.WorkOrderStatusApproved && order.Status != models.WorkOrderStatusInProgress {
		return nil, &models.InvalidTransitionError{From: order.Status, AttemptedAction: models.ActionStartWork}
	}

	err := requireIDs(stationID, operatorID)
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

	now := m.now()
	next := order.Clone()

	if next.Status == models.WorkOrderStatusApproved {
		next.Status = models.WorkOrderStatusInProgress
		next.CurrentStations = []string{stationID}
		next.StationHistory = append(next.StationHistory, models.StationHistoryEntry{
			StationID:  stationID,
			OperatorID: operatorID,
			StartedAt:  now,
		})

		for _, other := range routing.StartingStations(template) {
			activate(next, other, now)
		}

		return next, nil
	}

	idx := next.OpenEntryIndex(stationID)
	if idx < 0 {
		next.StationHistory = append(next.StationHistory, models.StationHistoryEntry{
			StationID:  stationID,
			OperatorID: operatorID,
			StartedAt:  now,
		})

		return next, nil
	}

	// A different operator starts a new attempt at the step.
	entry := &next.StationHistory[idx]
	if entry.OperatorID != operatorID {
		entry.StartedAt = now
		entry.OperatorID = operatorID
	}

	return next, nil
}

// StepReport is what an operator reports when finishing a station.
type StepReport struct {
	// OperatorID claims the entry when nobody started it.
	OperatorID    string
	MaterialsUsed []models.MaterialUsage
	Notes         string
	// QuantityCompleted defaults to one unit when zero.
	QuantityCompleted int64
	QuantityScrapped  int64
}

// CompleteStep closes the open entry of stationID, records the report on it,
// activates the successors and finishes the order once every reachable
// station has been completed.
func (m *Machine) CompleteStep(
	order *models.WorkOrder,
	template *models.WorkflowTemplate,
	stationID string,
	report StepReport,
) (*models.WorkOrder, StepResult, error) {
	err := m.CanComplete(order, stationID)
	if err != nil {
		return nil, StepResult{}, err
	}

	if report.QuantityCompleted < 0 {
		return nil, StepResult{}, models.NewValidationError("quantity_completed", "must not be negative")
	}

	if report.QuantityScrapped < 0 {
		return nil, StepResult{}, models.NewValidationError("quantity_scrapped", "must not be negative")
	}

	now := m.now()
	next := order.Clone()

	entry := &next.StationHistory[next.OpenEntryIndex(stationID)]
	if entry.OperatorID == "" {
		entry.OperatorID = report.OperatorID
	}

	entry.CompletedAt = &now
	entry.MaterialsUsed = slices.Clone(report.MaterialsUsed)
	entry.Notes = report.Notes
	entry.QuantityCompleted = report.QuantityCompleted
	entry.QuantityScrapped = report.QuantityScrapped

	if entry.QuantityCompleted == 0 {
		entry.QuantityCompleted = 1
	}

	next.CurrentStations = slices.DeleteFunc(next.CurrentStations, func(id string) bool {
		return id == stationID
	})

	result := StepResult{Activated: make([]string, 0)}

	for _, successor := range routing.ComputeSuccessors(next, template, stationID) {
		if activate(next, successor, now) {
			result.Activated = append(result.Activated, successor)
		}
	}

	if routing.IsWorkflowComplete(next, template) {
		next.Status = models.WorkOrderStatusFinished
		next.FinishedAt = &now
		result.Finished = true
	}

	return next, result, nil
}

// CanComplete checks the CompleteStep guard without changing anything.
func (m *Machine) CanComplete(order *models.WorkOrder, stationID string) error {
	switch order.Status {
	case models.WorkOrderStatusInProgress, models.WorkOrderStatusFinished:
	default:
		return &models.InvalidTransitionError{From: order.Status, AttemptedAction: models.ActionCompleteStep}
	}

	if order.OpenEntryIndex(stationID) < 0 || !order.HasCurrentStation(stationID) {
		return &models.NoOpenWorkError{WorkOrderID: order.ID, StationID: stationID}
	}

	return nil
}

// activate adds stationID to the current stations with an unclaimed open
// entry. Stations already current are left alone, so a join node is
// activated once by whichever branch reaches it first.
func activate(order *models.WorkOrder, stationID string, now time.Time) bool {
	if order.HasCurrentStation(stationID) {
		return false
	}

	order.CurrentStations = append(order.CurrentStations, stationID)
	order.StationHistory = append(order.StationHistory, models.StationHistoryEntry{
		StationID: stationID,
		StartedAt: now,
	})

	return true
}

func requireIDs(stationID, operatorID string) error {
	if strings.TrimSpace(stationID) == "" {
		return models.NewValidationError("station_id", "station id is required")
	}

	if strings.TrimSpace(operatorID) == "" {
		return models.NewValidationError("operator_id", "operator id is required")
	}

	return nil
}
