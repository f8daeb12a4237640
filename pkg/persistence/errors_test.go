package persistence_test

import (
	"errors"
	"testing"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestRecordErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		stale := persistence.NewRecordError("Update", "work_order", "wo-1", persistence.ErrStaleWorkOrder)
		missing := persistence.NewRecordError("Update", "work_order", "wo-2", persistence.ErrWorkOrderNotFound)
		duplicate := persistence.NewRecordError("Create", "template", "tpl-1", persistence.ErrAlreadyExists)

		assert.True(t, persistence.IsStaleWorkOrder(stale))
		assert.True(t, persistence.IsWorkOrderNotFound(missing))
		assert.True(t, persistence.IsAlreadyExists(duplicate))
		assert.False(t, persistence.IsStaleWorkOrder(missing))

		assert.True(t, errors.Is(stale, persistence.ErrStaleWorkOrder))
	})

	t.Run("record error contains context", func(t *testing.T) {
		err := persistence.NewRecordError("Update", "work_order", "wo-123", persistence.ErrStaleWorkOrder)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "wo-123")
		assert.Contains(t, err.Error(), "modified concurrently")
	})
}

func TestWorkOrderFilter_Matches(t *testing.T) {
	t.Parallel()

	order := &models.WorkOrder{
		OrderNumber:     "WO-20240301-ABC123",
		TemplateID:      "tpl-1",
		Status:          models.WorkOrderStatusApproved,
		CurrentStations: []string{"B"},
	}

	approved := models.WorkOrderStatusApproved
	finished := models.WorkOrderStatusFinished

	tests := []struct {
		name   string
		filter persistence.WorkOrderFilter
		want   bool
	}{
		{name: "empty filter", filter: persistence.WorkOrderFilter{}, want: true},
		{name: "matching status", filter: persistence.WorkOrderFilter{Status: &approved}, want: true},
		{name: "other status", filter: persistence.WorkOrderFilter{Status: &finished}, want: false},
		{name: "matching template", filter: persistence.WorkOrderFilter{TemplateID: "tpl-1"}, want: true},
		{name: "other template", filter: persistence.WorkOrderFilter{TemplateID: "tpl-2"}, want: false},
		{name: "case insensitive number", filter: persistence.WorkOrderFilter{OrderNumberContains: "abc1"}, want: true},
		{name: "number mismatch", filter: persistence.WorkOrderFilter{OrderNumberContains: "zzz"}, want: false},
		{name: "open at station", filter: persistence.WorkOrderFilter{CurrentStation: "B"}, want: true},
		{name: "not open at station", filter: persistence.WorkOrderFilter{CurrentStation: "A"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(order))
		})
	}
}
