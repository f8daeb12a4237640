package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

const sessionColumns = `
			id
		  , operator_id
		  , work_order_id
		  , station_id
		  , started_at
		  , ended_at
		  , end_reason
		  , notes`

// SessionRepository handles operator work session database operations.
type SessionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sql.DB, logger *slog.Logger) *SessionRepository {
	return &SessionRepository{db: db, logger: logger}
}

func (r *SessionRepository) Active(ctx context.Context, operatorID string) (*models.WorkSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM operator_sessions
		WHERE operator_id = $1 AND ended_at IS NULL
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, operatorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) ListByOperator(ctx context.Context, operatorID string) ([]*models.WorkSession, error) {
	query := `SELECT` + sessionColumns + `
		FROM operator_sessions
		WHERE operator_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	sessions := make([]*models.WorkSession, 0)

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sessions = append(sessions, session)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.WorkSession) error {
	query := `
		INSERT INTO operator_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.OperatorID,
		session.WorkOrderID,
		session.StationID,
		session.StartedAt,
		session.EndedAt,
		string(session.EndReason),
		session.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "session", session.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (r *SessionRepository) Update(ctx context.Context, session *models.WorkSession) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE operator_sessions SET
			ended_at = $2,
			end_reason = $3,
			notes = $4
		WHERE id = $1
	`, session.ID, session.EndedAt, string(session.EndReason), session.Notes)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewRecordError("Update", "session", session.ID, persistence.ErrSessionNotFound)
	}

	return nil
}

func scanSession(row rowScanner) (*models.WorkSession, error) {
	var (
		session   models.WorkSession
		endedAt   sql.NullTime
		endReason string
	)

	err := row.Scan(
		&session.ID,
		&session.OperatorID,
		&session.WorkOrderID,
		&session.StationID,
		&session.StartedAt,
		&endedAt,
		&endReason,
		&session.Notes,
	)
	if err != nil {
		return nil, err
	}

	session.StartedAt = session.StartedAt.UTC()
	session.EndedAt = nullTime(endedAt)
	session.EndReason = models.SessionEndReason(endReason)

	return &session, nil
}
