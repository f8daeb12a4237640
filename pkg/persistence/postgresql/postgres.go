// Package postgresql provides PostgreSQL persistence for work orders, templates,
// stations and operator sessions.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/jigged/shopfloor/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	workOrderRepo  *WorkOrderRepository
	templateRepo   *TemplateRepository
	stationRepo    *StationRepository
	sessionRepo    *SessionRepository
	migrationsDone int
}

// NewPersistence connects to databaseURL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrator := sqlbase.NewMigrator(logger, database, migrations())

	err = migrator.Migrate(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:             database,
		logger:         logger,
		workOrderRepo:  NewWorkOrderRepository(database, logger),
		templateRepo:   NewTemplateRepository(database, logger),
		stationRepo:    NewStationRepository(database, logger),
		sessionRepo:    NewSessionRepository(database, logger),
		migrationsDone: migrator.LatestVersion(),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// SchemaVersion returns the schema version reached during start-up.
func (p *Persistence) SchemaVersion() int {
	return p.migrationsDone
}

func (p *Persistence) WorkOrders() persistence.WorkOrderRepository {
	return p.workOrderRepo
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) Stations() persistence.StationRepository {
	return p.stationRepo
}

func (p *Persistence) Sessions() persistence.SessionRepository {
	return p.sessionRepo
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
