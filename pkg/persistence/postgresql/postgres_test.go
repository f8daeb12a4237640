package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/jigged/shopfloor/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{"operator_sessions", "work_orders", "workflow_templates", "stations", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("shopfloor_test"),
			postgres.WithUsername("shopfloor"),
			postgres.WithPassword("shopfloor"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.DiscardHandler)

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func seedTemplate(ctx context.Context, t *testing.T, p *postgresql.Persistence, id string) {
	t.Helper()

	err := p.Templates().Create(ctx, &models.WorkflowTemplate{
		ID:   id,
		Name: "Template " + id,
		Flow: models.Flow{
			Nodes: []models.FlowNode{
				models.StationNode("n1", "cut", models.MaterialRequirement{MaterialID: "oak", RequiredQty: 1.5}),
				models.StationNode("n2", "paint"),
			},
			Edges: []models.FlowEdge{{ID: "e1", Source: "n1", Target: "n2"}},
		},
	})
	require.NoError(t, err)
}

func newOrder(id, number, templateID string, requestedAt time.Time) *models.WorkOrder {
	return &models.WorkOrder{
		ID:              id,
		OrderNumber:     number,
		TemplateID:      templateID,
		CustomerID:      "cust-1",
		SalesPersonID:   "sales-1",
		Status:          models.WorkOrderStatusRequested,
		EstimatedPrice:  99900,
		RequestedAt:     requestedAt,
		CurrentStations: []string{},
		StationHistory:  []models.StationHistoryEntry{},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"operator_sessions", "work_orders", "workflow_templates", "stations", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, p.SchemaVersion(), version)

	again, err := postgresql.NewPersistence(ctx, slog.New(slog.DiscardHandler), databaseURL)
	require.NoError(t, err, "migrations must be idempotent")
	require.NoError(t, again.Close(ctx))

	var applied int

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied)
	require.NoError(t, err)
	assert.Equal(t, version, applied)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestTemplatesAndStations(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	seedTemplate(ctx, t, p, "tpl-1")

	template, err := p.Templates().GetByID(ctx, "tpl-1")
	require.NoError(t, err)
	require.NotNil(t, template)
	require.Len(t, template.Flow.Nodes, 2)
	assert.Equal(t, "cut", template.Flow.Nodes[0].StationID())
	assert.Equal(t, "n2", template.Flow.Edges[0].Target)

	err = p.Templates().Create(ctx, &models.WorkflowTemplate{ID: "tpl-1", Name: "dup"})
	assert.True(t, persistence.IsAlreadyExists(err))

	missing, err := p.Templates().GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, p.Stations().Create(ctx, &models.StationDefinition{ID: "cut", Name: "Cutting"}))

	err = p.Stations().Create(ctx, &models.StationDefinition{ID: "cut", Name: "Cutting"})
	assert.True(t, persistence.IsAlreadyExists(err))

	stations, err := p.Stations().List(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "Cutting", stations[0].Name)
}

func TestWorkOrders_CreateUpdateList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	seedTemplate(ctx, t, p, "tpl-1")

	repo := p.WorkOrders()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	order := newOrder("wo-1", "WO-20240301-AAAAAA", "tpl-1", base)
	require.NoError(t, repo.Create(ctx, order))
	assert.Equal(t, int64(1), order.Version)

	require.NoError(t, repo.Create(ctx, newOrder("wo-2", "WO-20240301-BBBBBB", "tpl-1", base.Add(time.Minute))))

	err := repo.Create(ctx, newOrder("wo-1", "WO-20240301-CCCCCC", "tpl-1", base))
	assert.True(t, persistence.IsAlreadyExists(err))

	loaded, err := repo.GetByID(ctx, "wo-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	approvedAt := base.Add(time.Hour)
	loaded.Status = models.WorkOrderStatusInProgress
	loaded.ApprovedAt = &approvedAt
	loaded.ApprovedBy = "owner-1"
	loaded.CurrentStations = []string{"cut"}
	loaded.StationHistory = []models.StationHistoryEntry{
		{StationID: "cut", OperatorID: "op-1", StartedAt: approvedAt},
	}

	require.NoError(t, repo.Update(ctx, loaded, 1))
	assert.Equal(t, int64(2), loaded.Version)

	stored, err := repo.GetByID(ctx, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkOrderStatusInProgress, stored.Status)
	assert.Equal(t, []string{"cut"}, stored.CurrentStations)
	require.Len(t, stored.StationHistory, 1)
	assert.Equal(t, "op-1", stored.StationHistory[0].OperatorID)
	require.NotNil(t, stored.ApprovedAt)
	assert.True(t, approvedAt.Equal(*stored.ApprovedAt))
	assert.Nil(t, stored.ActualPrice)

	err = repo.Update(ctx, order, 1)
	assert.True(t, persistence.IsStaleWorkOrder(err))

	err = repo.Update(ctx, newOrder("wo-404", "WO-404", "tpl-1", base), 1)
	assert.True(t, persistence.IsWorkOrderNotFound(err))

	inProgress := models.WorkOrderStatusInProgress

	list, err := repo.List(ctx, persistence.WorkOrderFilter{Status: &inProgress})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wo-1", list[0].ID)

	list, err = repo.List(ctx, persistence.WorkOrderFilter{OrderNumberContains: "bbb"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wo-2", list[0].ID)

	list, err = repo.List(ctx, persistence.WorkOrderFilter{CurrentStation: "cut"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wo-1", list[0].ID)

	list, err = repo.List(ctx, persistence.WorkOrderFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wo-1", list[0].ID)
}

func TestSessions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	seedTemplate(ctx, t, p, "tpl-1")
	require.NoError(t, p.WorkOrders().Create(ctx, newOrder("wo-1", "WO-1", "tpl-1", time.Now().UTC())))

	repo := p.Sessions()
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	active, err := repo.Active(ctx, "op-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	first := &models.WorkSession{ID: "s-1", OperatorID: "op-1", WorkOrderID: "wo-1", StationID: "cut", StartedAt: start}
	require.NoError(t, repo.Create(ctx, first))

	err = repo.Create(ctx, &models.WorkSession{ID: "s-2", OperatorID: "op-1", WorkOrderID: "wo-1", StationID: "paint", StartedAt: start.Add(time.Hour)})
	assert.True(t, persistence.IsAlreadyExists(err), "second active session for the same operator")

	first.End(start.Add(20*time.Minute), models.SessionStopped, "waiting for glue")
	require.NoError(t, repo.Update(ctx, first))
	require.NoError(t, repo.Create(ctx, &models.WorkSession{ID: "s-2", OperatorID: "op-1", WorkOrderID: "wo-1", StationID: "paint", StartedAt: start.Add(time.Hour)}))

	active, err = repo.Active(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "paint", active.StationID)

	history, err := repo.ListByOperator(ctx, "op-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "s-2", history[0].ID)
	assert.Equal(t, models.SessionStopped, history[1].EndReason)
	assert.Equal(t, "waiting for glue", history[1].Notes)
	assert.Equal(t, 20*time.Minute, history[1].Duration(time.Now()))

	err = repo.Update(ctx, &models.WorkSession{ID: "missing"})
	assert.ErrorIs(t, err, persistence.ErrSessionNotFound)
}

func TestWorkOrders_ConcurrentUpdate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	seedTemplate(ctx, t, p, "tpl-1")

	repo := p.WorkOrders()
	require.NoError(t, repo.Create(ctx, newOrder("wo-1", "WO-1", "tpl-1", time.Now().UTC())))

	loaded, err := repo.GetByID(ctx, "wo-1")
	require.NoError(t, err)

	const writers = 5

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			order := loaded.Clone()
			order.Status = models.WorkOrderStatusApproved

			if repo.Update(ctx, order, loaded.Version) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
}
