// Package web provides HTTP request and response types for the shop-floor API.
package web

import (
	"github.com/jigged/shopfloor/pkg/models"
)

// RegisterStationRequest represents the request body for registering a station.
type RegisterStationRequest struct {
	ID          string `json:"id"          validate:"required"`
	Name        string `json:"name"        validate:"required,min=1"`
	Description string `json:"description"`
}

// OperatorRequest names the operator occupying or taking over a station.
type OperatorRequest struct {
	OperatorID string `json:"operator_id" validate:"required"`
}

// SubmitWorkOrderRequest represents the request body for submitting a work order.
type SubmitWorkOrderRequest struct {
	OrderNumber    string `json:"order_number"    validate:"omitempty,max=64"`
	TemplateID     string `json:"template_id"     validate:"required"`
	CustomerID     string `json:"customer_id"     validate:"required"`
	SalesPersonID  string `json:"sales_person_id"`
	EstimatedPrice int64  `json:"estimated_price" validate:"gte=0"`
}

type ApproveRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

type RejectRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason"   validate:"required"`
}

type StartWorkRequest struct {
	StationID  string `json:"station_id"  validate:"required"`
	OperatorID string `json:"operator_id" validate:"required"`
}

// StopWorkRequest pauses an operator's work at a station without completing it.
type StopWorkRequest struct {
	StationID  string `json:"station_id"  validate:"required"`
	OperatorID string `json:"operator_id" validate:"required"`
	Notes      string `json:"notes"`
}

// CompleteStepRequest reports the materials consumed at a station. OperatorID
// is only needed when nobody started the step.
type CompleteStepRequest struct {
	StationID         string                 `json:"station_id"         validate:"required"`
	OperatorID        string                 `json:"operator_id"`
	Materials         []models.MaterialUsage `json:"materials"          validate:"dive"`
	Notes             string                 `json:"notes"`
	QuantityCompleted int64                  `json:"quantity_completed" validate:"gte=0"`
	QuantityScrapped  int64                  `json:"quantity_scrapped"  validate:"gte=0"`
}

// WorkOrderListResponse is returned by the work order listing.
type WorkOrderListResponse struct {
	WorkOrders []*models.WorkOrder `json:"work_orders"`
	TotalCount int                 `json:"total_count"`
}
