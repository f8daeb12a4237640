package models

import (
	"slices"
	"time"
)

// WorkOrderStatus represents the lifecycle state of a work order. Finished and
// rejected are terminal.
type WorkOrderStatus string

const (
	WorkOrderStatusRequested  WorkOrderStatus = "requested"
	WorkOrderStatusApproved   WorkOrderStatus = "approved"
	WorkOrderStatusInProgress WorkOrderStatus = "in_progress"
	WorkOrderStatusFinished   WorkOrderStatus = "finished"
	WorkOrderStatusRejected   WorkOrderStatus = "rejected"
)

// WorkOrderStatuses lists every valid status.
var WorkOrderStatuses = []WorkOrderStatus{
	WorkOrderStatusRequested,
	WorkOrderStatusApproved,
	WorkOrderStatusInProgress,
	WorkOrderStatusFinished,
	WorkOrderStatusRejected,
}

// Valid reports whether s is a known status.
func (s WorkOrderStatus) Valid() bool {
	return slices.Contains(WorkOrderStatuses, s)
}

// Terminal reports whether no further transition can leave s.
func (s WorkOrderStatus) Terminal() bool {
	return s == WorkOrderStatusFinished || s == WorkOrderStatusRejected
}

// MaterialUsage is the quantity of a material actually consumed at a station.
type MaterialUsage struct {
	MaterialID string  `json:"material_id" validate:"required"`
	Qty        float64 `json:"qty"         validate:"gte=0"`
}

// StationHistoryEntry records one pass of a work order through a station.
// An entry with an empty OperatorID has been activated but not yet claimed.
type StationHistoryEntry struct {
	StationID     string          `json:"station_id"`
	OperatorID    string          `json:"operator_id,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	MaterialsUsed []MaterialUsage `json:"materials_used,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	// Units finished and scrapped at the station.
	QuantityCompleted int64 `json:"quantity_completed,omitempty"`
	QuantityScrapped  int64 `json:"quantity_scrapped,omitempty"`
}

// Open reports whether the entry has not been completed yet.
func (e StationHistoryEntry) Open() bool {
	return e.CompletedAt == nil
}

// WorkOrder is an instance of manufacturing work progressing through a template.
type WorkOrder struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	TemplateID      string                `json:"template_id"      validate:"required"`
	CustomerID      string                `json:"customer_id"      validate:"required"`
	SalesPersonID   string                `json:"sales_person_id"`
	Status          WorkOrderStatus       `json:"status"`
	EstimatedPrice  int64                 `json:"estimated_price"  validate:"gte=0"` // minor units
	ActualPrice     *int64                `json:"actual_price,omitempty"`
	RequestedAt     time.Time             `json:"requested_at"`
	ApprovedAt      *time.Time            `json:"approved_at,omitempty"`
	ApprovedBy      string                `json:"approved_by,omitempty"`
	RejectedAt      *time.Time            `json:"rejected_at,omitempty"`
	RejectedBy      string                `json:"rejected_by,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
	CurrentStations []string              `json:"current_stations"`
	StationHistory  []StationHistoryEntry `json:"station_history"`
	Version         int64                 `json:"version"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// HasCurrentStation reports whether stationID is an active station of the order.
func (w *WorkOrder) HasCurrentStation(stationID string) bool {
	return slices.Contains(w.CurrentStations, stationID)
}

// OpenEntryIndex returns the index of the open history entry for stationID, or -1.
func (w *WorkOrder) OpenEntryIndex(stationID string) int {
	for i := len(w.StationHistory) - 1; i >= 0; i-- {
		entry := w.StationHistory[i]
		if entry.StationID == stationID && entry.Open() {
			return i
		}
	}

	return -1
}

// HasCompleted reports whether stationID has at least one completed history entry.
func (w *WorkOrder) HasCompleted(stationID string) bool {
	for _, entry := range w.StationHistory {
		if entry.StationID == stationID && !entry.Open() {
			return true
		}
	}

	return false
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (w *WorkOrder) Clone() *WorkOrder {
	if w == nil {
		return nil
	}

	clone := *w
	clone.ActualPrice = cloneValue(w.ActualPrice)
	clone.ApprovedAt = cloneValue(w.ApprovedAt)
	clone.RejectedAt = cloneValue(w.RejectedAt)
	clone.FinishedAt = cloneValue(w.FinishedAt)
	clone.CurrentStations = slices.Clone(w.CurrentStations)

	if w.StationHistory != nil {
		clone.StationHistory = make([]StationHistoryEntry, len(w.StationHistory))
		for i, entry := range w.StationHistory {
			entry.CompletedAt = cloneValue(entry.CompletedAt)
			entry.MaterialsUsed = slices.Clone(entry.MaterialsUsed)
			clone.StationHistory[i] = entry
		}
	}

	return &clone
}

func cloneValue[T any](v *T) *T {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
