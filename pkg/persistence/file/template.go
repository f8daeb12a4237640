package file

import (
	"context"
	"sort"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/persistence"
)

// TemplateRepository handles workflow template file operations.
type TemplateRepository struct {
	store *Persistence
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	found, err := r.store.read(templatesDir, id, &template)
	if err != nil || !found {
		return nil, err
	}

	return &template, nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	ids, err := r.store.ids(templatesDir)
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if template != nil {
			templates = append(templates, template)
		}
	}

	return templates, nil
}

// Create stores a template. Templates are never overwritten.
func (r *TemplateRepository) Create(_ context.Context, template *models.WorkflowTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if r.store.exists(templatesDir, template.ID) {
		return persistence.NewRecordError("Create", "template", template.ID, persistence.ErrAlreadyExists)
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	return r.store.write(templatesDir, template.ID, template)
}
