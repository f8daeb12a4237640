package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jigged/shopfloor/pkg/events"
	"github.com/jigged/shopfloor/pkg/flow"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	"github.com/jigged/shopfloor/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// RegisterTemplate validates and stores a template. An empty id is generated.
// Every station node must reference a registered station.
func (e *Engine) RegisterTemplate(ctx context.Context, template *models.WorkflowTemplate) (_ *models.WorkflowTemplate, err error) {
	ctx, span := e.startSpan(ctx, "register_template")
	defer func() { finish(span, err) }()

	if template == nil {
		return nil, models.NewValidationError("template", "template cannot be nil")
	}

	stored := *template
	if strings.TrimSpace(stored.ID) == "" {
		stored.ID = uuid.NewString()
	}

	span.SetAttributes(attribute.String(otelhelper.TemplateIDKey, stored.ID))

	err = flow.Validate(&stored)
	if err != nil {
		return nil, err
	}

	err = e.requireStations(ctx, &stored)
	if err != nil {
		return nil, err
	}

	stored.CreatedAt = e.now()

	err = e.persistence.Templates().Create(ctx, &stored)
	if err != nil {
		if persistence.IsAlreadyExists(err) {
			return nil, models.NewValidationError("id", "template "+stored.ID+" already exists")
		}

		return nil, fmt.Errorf("failed to store template %s: %w", stored.ID, err)
	}

	e.logger.InfoContext(ctx, "Template registered",
		"template_id", stored.ID,
		"nodes", len(stored.Flow.Nodes),
		"edges", len(stored.Flow.Edges),
	)

	e.publish(ctx, stored.ID, events.TemplateRegistered{
		BaseEvent:  events.NewBaseEvent(events.TemplateRegisteredEvent, "", ""),
		TemplateID: stored.ID,
		Name:       stored.Name,
	})

	return &stored, nil
}

// RegisterTemplateDocument decodes a JSON template document, checking it
// against the template schema, and registers it.
func (e *Engine) RegisterTemplateDocument(ctx context.Context, raw []byte) (*models.WorkflowTemplate, error) {
	template, err := flow.DecodeTemplate(raw)
	if err != nil {
		return nil, err
	}

	return e.RegisterTemplate(ctx, template)
}

func (e *Engine) Template(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	return e.loadTemplate(ctx, templateID)
}

func (e *Engine) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	templates, err := e.persistence.Templates().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// RegisterStation stores a station definition.
func (e *Engine) RegisterStation(ctx context.Context, station *models.StationDefinition) (_ *models.StationDefinition, err error) {
	ctx, span := e.startSpan(ctx, "register_station")
	defer func() { finish(span, err) }()

	if station == nil {
		return nil, models.NewValidationError("station", "station cannot be nil")
	}

	err = e.validateStruct(station)
	if err != nil {
		return nil, err
	}

	stored := *station
	stored.CreatedAt = e.now()

	span.SetAttributes(attribute.String(otelhelper.StationIDKey, stored.ID))

	err = e.persistence.Stations().Create(ctx, &stored)
	if err != nil {
		if persistence.IsAlreadyExists(err) {
			return nil, models.NewValidationError("id", "station "+stored.ID+" already exists")
		}

		return nil, fmt.Errorf("failed to store station %s: %w", stored.ID, err)
	}

	e.logger.InfoContext(ctx, "Station registered", "station_id", stored.ID, "name", stored.Name)

	return &stored, nil
}

func (e *Engine) Stations(ctx context.Context) ([]*models.StationDefinition, error) {
	stations, err := e.persistence.Stations().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	return stations, nil
}

func (e *Engine) requireStations(ctx context.Context, template *models.WorkflowTemplate) error {
	checked := make(map[string]bool)

	for i, node := range template.Flow.Nodes {
		stationID := node.StationID()
		if stationID == "" || checked[stationID] {
			continue
		}

		checked[stationID] = true

		station, err := e.persistence.Stations().GetByID(ctx, stationID)
		if err != nil {
			return fmt.Errorf("failed to load station %s: %w", stationID, err)
		}

		if station == nil {
			return models.NewValidationError(
				fmt.Sprintf("flow.nodes[%d].station_id", i),
				"unknown station "+stationID,
			)
		}
	}

	return nil
}
