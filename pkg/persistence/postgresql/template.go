package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// TemplateRepository handles workflow template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, flow, created_at
		FROM workflow_templates
		WHERE id = $1
	`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, flow, created_at
		FROM workflow_templates
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Create inserts a template. Templates are immutable once stored.
func (r *TemplateRepository) Create(ctx context.Context, template *models.WorkflowTemplate) error {
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	flowJSON, err := json.Marshal(template.Flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflow_templates (id, name, flow, created_at) VALUES ($1, $2, $3, $4)`,
		template.ID,
		template.Name,
		flowJSON,
		template.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewRecordError("Create", "template", template.ID, persistence.ErrAlreadyExists)
		}

		return fmt.Errorf("failed to insert template: %w", err)
	}

	return nil
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template models.WorkflowTemplate
		flowJSON []byte
	)

	err := row.Scan(&template.ID, &template.Name, &flowJSON, &template.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(flowJSON, &template.Flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	return &template, nil
}
