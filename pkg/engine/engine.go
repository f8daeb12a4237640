// Package engine composes routing, the work order state machine, station
// occupancy and material recording behind one API. Every work order write is
// a load, check, write cycle against a versioned record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jigged/shopfloor/pkg/eventbus"
	"github.com/jigged/shopfloor/pkg/identity"
	"github.com/jigged/shopfloor/pkg/materials"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/occupancy"
	"github.com/jigged/shopfloor/pkg/otelhelper"
	"github.com/jigged/shopfloor/pkg/persistence"
	"github.com/jigged/shopfloor/pkg/workorder"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxWriteAttempts bounds the reload and retry loop on lost optimistic updates.
const maxWriteAttempts = 3

// Engine is the shop-floor workflow orchestrator.
type Engine struct {
	persistence persistence.Persistence
	identity    identity.Provider
	occupancy   occupancy.Registry
	recorder    *materials.Recorder
	machine     *workorder.Machine
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock used for order timestamps and occupancy expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine. Without options it publishes into an
// eventbus.Recorder, traces nothing and logs through slog.Default.
func New(store persistence.Persistence, provider identity.Provider, registry occupancy.Registry, opts ...Option) *Engine {
	e := &Engine{
		persistence: store,
		identity:    provider,
		occupancy:   registry,
		recorder:    materials.NewRecorder(),
		publisher:   eventbus.NewRecorder(),
		tracer:      otelhelper.NoopTracer(),
		logger:      slog.Default(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	e.machine = workorder.NewMachine(workorder.WithClock(e.now))
	e.logger = e.logger.With("module", "engine")

	return e
}

// Start clears the occupancy registry. Occupancy never survives a restart.
func (e *Engine) Start(ctx context.Context) error {
	err := e.occupancy.Reset(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset station occupancy: %w", err)
	}

	e.logger.InfoContext(ctx, "Engine started, station occupancy cleared")

	return nil
}

// HealthCheck reports the first unhealthy dependency.
func (e *Engine) HealthCheck(ctx context.Context) error {
	err := e.persistence.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("persistence is unhealthy: %w", err)
	}

	err = e.occupancy.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("occupancy registry is unhealthy: %w", err)
	}

	return nil
}

// transition computes the next version of an order from a freshly loaded
// copy and its template.
type transition func(ctx context.Context, order *models.WorkOrder, template *models.WorkflowTemplate) (*models.WorkOrder, error)

// mutate loads the order, applies fn and writes the result guarded by the
// loaded version. A lost update reloads and re-applies fn, so a losing
// writer sees the guard failure the winner caused.
func (e *Engine) mutate(ctx context.Context, workOrderID string, fn transition) (*models.WorkOrder, error) {
	var lastErr error

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		order, template, err := e.loadWithTemplate(ctx, workOrderID)
		if err != nil {
			return nil, err
		}

		next, err := fn(ctx, order, template)
		if err != nil {
			return nil, err
		}

		err = e.persistence.WorkOrders().Update(ctx, next, order.Version)
		if err == nil {
			trace.SpanFromContext(ctx).SetAttributes(
				attribute.String(otelhelper.WorkOrderStatusKey, string(next.Status)),
			)

			return next, nil
		}

		if !persistence.IsStaleWorkOrder(err) {
			return nil, fmt.Errorf("failed to save work order %s: %w", workOrderID, err)
		}

		lastErr = err

		e.logger.DebugContext(ctx, "Work order changed concurrently, retrying",
			"work_order_id", workOrderID,
			"attempt", attempt,
		)
	}

	return nil, fmt.Errorf("failed to save work order %s after %d attempts: %w", workOrderID, maxWriteAttempts, lastErr)
}

func (e *Engine) loadWorkOrder(ctx context.Context, workOrderID string) (*models.WorkOrder, error) {
	order, err := e.persistence.WorkOrders().GetByID(ctx, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load work order %s: %w", workOrderID, err)
	}

	if order == nil {
		return nil, &models.NotFoundError{Kind: "work_order", ID: workOrderID}
	}

	return order, nil
}

func (e *Engine) loadTemplate(ctx context.Context, templateID string) (*models.WorkflowTemplate, error) {
	template, err := e.persistence.Templates().GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
	}

	if template == nil {
		return nil, &models.NotFoundError{Kind: "template", ID: templateID}
	}

	return template, nil
}

func (e *Engine) loadWithTemplate(ctx context.Context, workOrderID string) (*models.WorkOrder, *models.WorkflowTemplate, error) {
	order, err := e.loadWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, nil, err
	}

	template, err := e.loadTemplate(ctx, order.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	return order, template, nil
}

// publish sends event and only logs failures: the state change is already stored.
func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(),
			"key", key,
			"error", err,
		)
	}
}

// nolint:spancheck // the caller ends the span through finish
func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, e.tracer, "engine."+name, attrs...)
}

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		otelhelper.SetError(span, err, models.Code(err))
	}

	span.End()
}

func (e *Engine) validateStruct(value any) error {
	err := e.validate.Struct(value)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		fieldErr := validationErrors[0]

		return models.NewValidationError(fieldErr.Field(), "failed on the '"+fieldErr.Tag()+"' rule")
	}

	return models.NewValidationError("", err.Error())
}
