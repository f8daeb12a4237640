// Package persistence provides the data storage abstraction for work orders,
// workflow templates, station definitions and operator work sessions.
package persistence

import (
	"context"

	"github.com/jigged/shopfloor/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	WorkOrders() WorkOrderRepository
	Templates() TemplateRepository
	Stations() StationRepository
	Sessions() SessionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkOrderFilter narrows a work order listing. Zero values match everything.
type WorkOrderFilter struct {
	Status              *models.WorkOrderStatus
	TemplateID          string
	OrderNumberContains string
	// CurrentStation keeps orders with an open step at this station.
	CurrentStation string
}

// Matches reports whether order satisfies the filter.
func (f WorkOrderFilter) Matches(order *models.WorkOrder) bool {
	if f.Status != nil && order.Status != *f.Status {
		return false
	}

	if f.TemplateID != "" && order.TemplateID != f.TemplateID {
		return false
	}

	if f.OrderNumberContains != "" && !containsFold(order.OrderNumber, f.OrderNumberContains) {
		return false
	}

	if f.CurrentStation != "" && !order.HasCurrentStation(f.CurrentStation) {
		return false
	}

	return true
}

// WorkOrderRepository stores work orders. Update is an atomic
// compare-and-swap on Version: a writer holding a stale copy gets
// ErrStaleWorkOrder and nothing is written.
type WorkOrderRepository interface {
	// GetByID returns nil, nil when the work order does not exist.
	GetByID(ctx context.Context, id string) (*models.WorkOrder, error)
	// List returns matching work orders ordered by requested_at, then order number.
	List(ctx context.Context, filter WorkOrderFilter) ([]*models.WorkOrder, error)
	Create(ctx context.Context, order *models.WorkOrder) error
	// Update stores order if the stored version equals expectedVersion and
	// sets order.Version to expectedVersion+1.
	Update(ctx context.Context, order *models.WorkOrder, expectedVersion int64) error
}

// TemplateRepository stores workflow templates.
type TemplateRepository interface {
	// GetByID returns nil, nil when the template does not exist.
	GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	List(ctx context.Context) ([]*models.WorkflowTemplate, error)
	Create(ctx context.Context, template *models.WorkflowTemplate) error
}

// StationRepository stores station reference data.
type StationRepository interface {
	// GetByID returns nil, nil when the station does not exist.
	GetByID(ctx context.Context, id string) (*models.StationDefinition, error)
	List(ctx context.Context) ([]*models.StationDefinition, error)
	Create(ctx context.Context, station *models.StationDefinition) error
}

// SessionRepository stores operator work sessions. An operator has at most
// one active session; Create fails with ErrAlreadyExists otherwise.
type SessionRepository interface {
	// Active returns nil, nil when the operator has no open session.
	Active(ctx context.Context, operatorID string) (*models.WorkSession, error)
	// ListByOperator returns the operator's sessions, most recent first.
	ListByOperator(ctx context.Context, operatorID string) ([]*models.WorkSession, error)
	Create(ctx context.Context, session *models.WorkSession) error
	// Update replaces a stored session, typically to end it.
	Update(ctx context.Context, session *models.WorkSession) error
}
