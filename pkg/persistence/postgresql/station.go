package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// StationRepository handles station database operations.
type StationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStationRepository creates a new station repository.
func NewStationRepository(db *sql.DB, logger *slog.Logger) *StationRepository {
	return &StationRepository{db: db, logger: logger}
}

func (r *StationRepository) GetByID(ctx context.Context, id string) (*models.StationDefinition, error) {
	var station models.StationDefinition

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM stations WHERE id = $1`, id,
	).Scan(&station.ID, &station.Name, &station.Description, &station.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan station: %w", err)
	}

	return &station, nil
}

func (r *StationRepository) List(ctx context.Context) ([]*models.StationDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	stations := make([]*models.StationDefinition, 0)

	for rows.Next() {
		var station models.StationDefinition

		err := rows.Scan(&station.ID, &station.Name, &station.Description, &station.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station: %w", err)
		}

		stations = append(stations, &station)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating stations: %w", err)
	}

	return stations, nil
}

func (r *StationRepository) Create(ctx context.Context, station *models.StationDefinition) error {
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stations (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		station.ID,
		station.Name,
		station.Description,
		station.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "station", station.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to insert station: %w", err)
	}

	return nil
}
