package file

import (
	"context"
	"sort"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// WorkOrderRepository handles work order file operations.
type WorkOrderRepository struct {
	store *Persistence
}

// GetByID retrieves a work order by its ID from the file system.
func (r *WorkOrderRepository) GetByID(_ context.Context, id string) (*models.WorkOrder, error) {
	var order models.WorkOrder

	found, err := r.store.read(workOrdersDir, id, &order)
	if err != nil || !found {
		return nil, err
	}

	return &order, nil
}

// List returns the work orders matching filter, oldest request first.
func (r *WorkOrderRepository) List(ctx context.Context, filter persistence.WorkOrderFilter) ([]*models.WorkOrder, error) {
	ids, err := r.store.ids(workOrdersDir)
	if err != nil {
		return nil, err
	}

	orders := make([]*models.WorkOrder, 0, len(ids))

	for _, id := range ids {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if order != nil && filter.Matches(order) {
			orders = append(orders, order)
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].RequestedAt.Equal(orders[j].RequestedAt) {
			return orders[i].RequestedAt.Before(orders[j].RequestedAt)
		}

		return orders[i].OrderNumber < orders[j].OrderNumber
	})

	return orders, nil
}

// Create stores a new work order at version 1.
func (r *WorkOrderRepository) Create(_ context.Context, order *models.WorkOrder) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.exists(workOrdersDir, order.ID) {
		return persistence.NewRecordError("Create", "work_order", order.ID, persistence.ErrAlreadyExists)
	}

	order.Version = 1
	order.UpdatedAt = time.Now().UTC()

	return r.store.write(workOrdersDir, order.ID, order)
}

// Update replaces the stored work order when its version still equals expectedVersion.
func (r *WorkOrderRepository) Update(_ context.Context, order *models.WorkOrder, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var stored models.WorkOrder

	found, err := r.store.read(workOrdersDir, order.ID, &stored)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewRecordError("Update", "work_order", order.ID, persistence.ErrWorkOrderNotFound)
	}

	if stored.Version != expectedVersion {
		return persistence.NewRecordError("Update", "work_order", order.ID, persistence.ErrStaleWorkOrder)
	}

	next := *order
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	err = r.store.write(workOrdersDir, order.ID, &next)
	if err != nil {
		return err
	}

	order.Version = next.Version
	order.UpdatedAt = next.UpdatedAt

	return nil
}
