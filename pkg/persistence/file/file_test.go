package file

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkOrder(id, number string, requestedAt time.Time) *models.WorkOrder {
	return &models.WorkOrder{
		ID:              id,
		OrderNumber:     number,
		TemplateID:      "tpl-1",
		CustomerID:      "cust-1",
		SalesPersonID:   "sales-1",
		Status:          models.WorkOrderStatusRequested,
		EstimatedPrice:  12500,
		RequestedAt:     requestedAt,
		CurrentStations: []string{},
		StationHistory:  []models.StationHistoryEntry{},
	}
}

func TestNewPersistence(t *testing.T) {
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	require.NoError(t, fp.HealthCheck(t.Context()))
	require.NoError(t, fp.Close(t.Context()))

	missing := NewPersistence(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, missing.HealthCheck(t.Context()))
}

func TestWorkOrderRepository_CreateAndGet(t *testing.T) {
	testDir := t.TempDir()
	repo := NewPersistence(testDir).WorkOrders()

	order := newWorkOrder("wo-1", "WO-20240301-AAAAAA", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	err := repo.Create(t.Context(), order)
	require.NoError(t, err)

	assert.Equal(t, int64(1), order.Version)
	assert.False(t, order.UpdatedAt.IsZero())
	assert.FileExists(t, filepath.Join(testDir, "work_orders", "wo-1.json"))

	stored, err := repo.GetByID(t.Context(), "wo-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
	assert.Equal(t, models.WorkOrderStatusRequested, stored.Status)
	assert.Equal(t, int64(12500), stored.EstimatedPrice)

	err = repo.Create(t.Context(), newWorkOrder("wo-1", "WO-dup", time.Now()))
	assert.True(t, persistence.IsAlreadyExists(err))
}

func TestWorkOrderRepository_GetByID_NotFound(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkOrders()

	order, err := repo.GetByID(t.Context(), "missing")
	require.NoError(t, err)
	assert.Nil(t, order)

	order, err = repo.GetByID(t.Context(), "../escape")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestWorkOrderRepository_Update(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkOrders()

	order := newWorkOrder("wo-1", "WO-20240301-AAAAAA", time.Now().UTC())
	require.NoError(t, repo.Create(t.Context(), order))

	loaded, err := repo.GetByID(t.Context(), "wo-1")
	require.NoError(t, err)

	loaded.Status = models.WorkOrderStatusApproved
	loaded.ApprovedBy = "owner-1"

	err = repo.Update(t.Context(), loaded, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.Version)

	stored, err := repo.GetByID(t.Context(), "wo-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkOrderStatusApproved, stored.Status)
	assert.Equal(t, "owner-1", stored.ApprovedBy)
	assert.Equal(t, int64(2), stored.Version)

	t.Run("stale version is rejected", func(t *testing.T) {
		stale := order.Clone()
		stale.Status = models.WorkOrderStatusRejected

		err := repo.Update(t.Context(), stale, 1)
		require.Error(t, err)
		assert.True(t, persistence.IsStaleWorkOrder(err))

		current, err := repo.GetByID(t.Context(), "wo-1")
		require.NoError(t, err)
		assert.Equal(t, models.WorkOrderStatusApproved, current.Status)
	})

	t.Run("missing work order", func(t *testing.T) {
		err := repo.Update(t.Context(), newWorkOrder("wo-404", "WO-404", time.Now()), 1)
		assert.True(t, persistence.IsWorkOrderNotFound(err))
	})
}

func TestWorkOrderRepository_Update_Concurrent(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkOrders()
	require.NoError(t, repo.Create(t.Context(), newWorkOrder("wo-1", "WO-1", time.Now().UTC())))

	loaded, err := repo.GetByID(t.Context(), "wo-1")
	require.NoError(t, err)

	const writers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		stale     int
	)

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			order := loaded.Clone()
			order.Status = models.WorkOrderStatusApproved

			err := repo.Update(t.Context(), order, loaded.Version)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case persistence.IsStaleWorkOrder(err):
				stale++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, stale)

	stored, err := repo.GetByID(t.Context(), "wo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestWorkOrderRepository_List(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkOrders()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	second := newWorkOrder("wo-2", "WO-20240301-BBBBBB", base.Add(time.Hour))
	second.TemplateID = "tpl-2"
	first := newWorkOrder("wo-1", "WO-20240301-AAAAAA", base)
	third := newWorkOrder("wo-3", "WO-20240301-CCCCCC", base.Add(time.Hour))
	third.Status = models.WorkOrderStatusRejected

	for _, order := range []*models.WorkOrder{second, first, third} {
		require.NoError(t, repo.Create(t.Context(), order))
	}

	all, err := repo.List(t.Context(), persistence.WorkOrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "wo-1", all[0].ID)
	assert.Equal(t, "wo-2", all[1].ID)
	assert.Equal(t, "wo-3", all[2].ID)

	rejected := models.WorkOrderStatusRejected

	filtered, err := repo.List(t.Context(), persistence.WorkOrderFilter{Status: &rejected})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "wo-3", filtered[0].ID)

	filtered, err = repo.List(t.Context(), persistence.WorkOrderFilter{TemplateID: "tpl-2"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "wo-2", filtered[0].ID)

	filtered, err = repo.List(t.Context(), persistence.WorkOrderFilter{OrderNumberContains: "aaaa"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "wo-1", filtered[0].ID)
}

func TestWorkOrderRepository_List_Empty(t *testing.T) {
	repo := NewPersistence(t.TempDir()).WorkOrders()

	orders, err := repo.List(t.Context(), persistence.WorkOrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestTemplateRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Templates()

	template := &models.WorkflowTemplate{
		ID:   "tpl-1",
		Name: "Cabinet",
		Flow: models.Flow{
			Nodes: []models.FlowNode{
				models.StationNode("n1", "cut", models.MaterialRequirement{MaterialID: "oak", RequiredQty: 2}),
				models.StationNode("n2", "sand"),
				models.EndNode("end"),
			},
			Edges: []models.FlowEdge{
				{ID: "e1", Source: "n1", Target: "n2"},
				{ID: "e2", Source: "n2", Target: "end"},
			},
		},
	}

	require.NoError(t, repo.Create(t.Context(), template))
	assert.False(t, template.CreatedAt.IsZero())

	stored, err := repo.GetByID(t.Context(), "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Cabinet", stored.Name)
	require.Len(t, stored.Flow.Nodes, 3)
	assert.Equal(t, "cut", stored.Flow.Nodes[0].StationID())
	assert.Equal(t, models.NodeKindEnd, stored.Flow.Nodes[2].Kind)

	payload, ok := stored.Flow.Nodes[0].Station()
	require.True(t, ok)
	assert.Equal(t, []models.MaterialRequirement{{MaterialID: "oak", RequiredQty: 2}}, payload.Materials)

	err = repo.Create(t.Context(), &models.WorkflowTemplate{ID: "tpl-1", Name: "Other"})
	assert.True(t, persistence.IsAlreadyExists(err))

	missing, err := repo.GetByID(t.Context(), "tpl-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStationRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Stations()

	require.NoError(t, repo.Create(t.Context(), &models.StationDefinition{ID: "sand", Name: "Sanding"}))
	require.NoError(t, repo.Create(t.Context(), &models.StationDefinition{ID: "cut", Name: "Cutting"}))

	err := repo.Create(t.Context(), &models.StationDefinition{ID: "cut", Name: "Cutting again"})
	assert.True(t, persistence.IsAlreadyExists(err))

	station, err := repo.GetByID(t.Context(), "cut")
	require.NoError(t, err)
	require.NotNil(t, station)
	assert.Equal(t, "Cutting", station.Name)
	assert.False(t, station.CreatedAt.IsZero())

	list, err := repo.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cut", list[0].ID)
	assert.Equal(t, "sand", list[1].ID)
}

func TestSessionRepository(t *testing.T) {
	repo := NewPersistence(t.TempDir()).Sessions()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	active, err := repo.Active(t.Context(), "op-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	first := &models.WorkSession{ID: "s-1", OperatorID: "op-1", WorkOrderID: "wo-1", StationID: "A", StartedAt: start}
	require.NoError(t, repo.Create(t.Context(), first))

	err = repo.Create(t.Context(), &models.WorkSession{ID: "s-2", OperatorID: "op-1", WorkOrderID: "wo-2", StationID: "B", StartedAt: start.Add(time.Hour)})
	assert.True(t, persistence.IsAlreadyExists(err), "second active session for the same operator")

	require.NoError(t, repo.Create(t.Context(), &models.WorkSession{ID: "s-3", OperatorID: "op-2", WorkOrderID: "wo-1", StationID: "B", StartedAt: start}))

	first.End(start.Add(30*time.Minute), models.SessionSwitched, "")
	require.NoError(t, repo.Update(t.Context(), first))
	require.NoError(t, repo.Create(t.Context(), &models.WorkSession{ID: "s-2", OperatorID: "op-1", WorkOrderID: "wo-2", StationID: "B", StartedAt: start.Add(time.Hour)}))

	active, err = repo.Active(t.Context(), "op-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "s-2", active.ID)

	history, err := repo.ListByOperator(t.Context(), "op-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "s-2", history[0].ID)
	assert.Equal(t, models.SessionSwitched, history[1].EndReason)
	assert.Equal(t, 30*time.Minute, history[1].Duration(time.Now()))

	err = repo.Update(t.Context(), &models.WorkSession{ID: "missing", OperatorID: "op-1"})
	assert.ErrorIs(t, err, persistence.ErrSessionNotFound)
}
