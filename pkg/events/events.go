// Package events defines the notifications the engine publishes when work
// orders and stations change state.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/jigged/shopfloor/pkg/models"
)

type EventType string

// Topic carries every shop-floor event.
const Topic = "shopfloor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Work order lifecycle events.
	WorkOrderSubmittedEvent EventType = "work_order.submitted"
	WorkOrderApprovedEvent  EventType = "work_order.approved"
	WorkOrderRejectedEvent  EventType = "work_order.rejected"
	WorkOrderFinishedEvent  EventType = "work_order.finished"

	// Station progress events.
	StationStartedEvent   EventType = "station.started"
	StationStoppedEvent   EventType = "station.stopped"
	StationCompletedEvent EventType = "station.completed"

	// Occupancy events.
	StationOccupiedEvent  EventType = "station.occupied"
	StationTakenOverEvent EventType = "station.taken_over"
	StationReleasedEvent  EventType = "station.released"
	OccupancyExpiredEvent EventType = "station.occupancy_expired"

	TemplateRegisteredEvent EventType = "template.registered"
)

// All lists every event type the engine publishes.
var All = []EventType{
	WorkOrderSubmittedEvent,
	WorkOrderApprovedEvent,
	WorkOrderRejectedEvent,
	WorkOrderFinishedEvent,
	StationStartedEvent,
	StationStoppedEvent,
	StationCompletedEvent,
	StationOccupiedEvent,
	StationTakenOverEvent,
	StationReleasedEvent,
	OccupancyExpiredEvent,
	TemplateRegisteredEvent,
}

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkOrderID string         `json:"work_order_id,omitempty"`
	ActorID     string         `json:"actor_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Envelope returns the fields every event shares.
func (e BaseEvent) Envelope() BaseEvent {
	return e
}

func NewBaseEvent(eventType EventType, workOrderID, actorID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkOrderID: workOrderID,
		ActorID:     actorID,
		Metadata:    make(map[string]any),
	}
}

type WorkOrderSubmitted struct {
	BaseEvent

	OrderNumber    string `json:"order_number"`
	TemplateID     string `json:"template_id"`
	CustomerID     string `json:"customer_id"`
	EstimatedPrice int64  `json:"estimated_price"`
}

func (e WorkOrderSubmitted) GetType() EventType {
	return WorkOrderSubmittedEvent
}

type WorkOrderApproved struct {
	BaseEvent

	OrderNumber string    `json:"order_number"`
	ApprovedAt  time.Time `json:"approved_at"`
}

func (e WorkOrderApproved) GetType() EventType {
	return WorkOrderApprovedEvent
}

type WorkOrderRejected struct {
	BaseEvent

	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
	RejectedAt  time.Time `json:"rejected_at"`
}

func (e WorkOrderRejected) GetType() EventType {
	return WorkOrderRejectedEvent
}

// WorkOrderFinished is published once every branch of the order has terminated.
type WorkOrderFinished struct {
	BaseEvent

	OrderNumber string    `json:"order_number"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (e WorkOrderFinished) GetType() EventType {
	return WorkOrderFinishedEvent
}

type StationStarted struct {
	BaseEvent

	StationID  string    `json:"station_id"`
	OperatorID string    `json:"operator_id"`
	StartedAt  time.Time `json:"started_at"`
}

func (e StationStarted) GetType() EventType {
	return StationStartedEvent
}

// StationStopped reports an operator pausing work at a station. The step stays open.
type StationStopped struct {
	BaseEvent

	StationID  string        `json:"station_id"`
	OperatorID string        `json:"operator_id"`
	SessionID  string        `json:"session_id"`
	Worked     time.Duration `json:"worked"`
	Notes      string        `json:"notes,omitempty"`
}

func (e StationStopped) GetType() EventType {
	return StationStoppedEvent
}

// StationCompleted carries the recorded consumption and the stations the
// completion activated.
type StationCompleted struct {
	BaseEvent

	StationID     string                 `json:"station_id"`
	OperatorID    string                 `json:"operator_id,omitempty"`
	MaterialsUsed []models.MaterialUsage `json:"materials_used,omitempty"`
	Activated     []string               `json:"activated,omitempty"`
	CompletedAt   time.Time              `json:"completed_at"`
}

func (e StationCompleted) GetType() EventType {
	return StationCompletedEvent
}

type StationOccupied struct {
	BaseEvent

	Occupancy models.Occupancy `json:"occupancy"`
}

func (e StationOccupied) GetType() EventType {
	return StationOccupiedEvent
}

type StationTakenOver struct {
	BaseEvent

	Occupancy        models.Occupancy `json:"occupancy"`
	PreviousOperator string           `json:"previous_operator,omitempty"`
}

func (e StationTakenOver) GetType() EventType {
	return StationTakenOverEvent
}

type StationReleased struct {
	BaseEvent

	StationID  string `json:"station_id"`
	OperatorID string `json:"operator_id,omitempty"`
}

func (e StationReleased) GetType() EventType {
	return StationReleasedEvent
}

type OccupancyExpired struct {
	BaseEvent

	Occupancy models.Occupancy `json:"occupancy"`
}

func (e OccupancyExpired) GetType() EventType {
	return OccupancyExpiredEvent
}

type TemplateRegistered struct {
	BaseEvent

	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
}

func (e TemplateRegistered) GetType() EventType {
	return TemplateRegisteredEvent
}
