// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/jigged/shopfloor/pkg/models"
)

// CreateTestTemplate creates a single-station template that can be overridden.
func CreateTestTemplate(overrides ...func(*models.WorkflowTemplate)) *models.WorkflowTemplate {
	template := &models.WorkflowTemplate{
		ID:   "tpl-" + uuid.NewString()[:8],
		Name: "Test Template",
		Flow: models.Flow{
			Nodes: []models.FlowNode{models.StationNode("n-A", "A")},
			Edges: []models.FlowEdge{},
		},
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(template)
	}

	return template
}

// WithID sets the template id.
func WithID(id string) func(*models.WorkflowTemplate) {
	return func(t *models.WorkflowTemplate) {
		t.ID = id
	}
}

// WithLinearStations replaces the flow with a chain through stationIDs
// followed by an end marker. Node ids are "n-<station>".
func WithLinearStations(stationIDs ...string) func(*models.WorkflowTemplate) {
	return func(t *models.WorkflowTemplate) {
		nodes := make([]models.FlowNode, 0, len(stationIDs)+1)
		edges := make([]models.FlowEdge, 0, len(stationIDs))

		for i, stationID := range stationIDs {
			nodes = append(nodes, models.StationNode("n-"+stationID, stationID))

			if i > 0 {
				edges = append(edges, edge("n-"+stationIDs[i-1], "n-"+stationID))
			}
		}

		nodes = append(nodes, models.EndNode("end"))
		if len(stationIDs) > 0 {
			edges = append(edges, edge("n-"+stationIDs[len(stationIDs)-1], "end"))
		}

		t.Flow = models.Flow{Nodes: nodes, Edges: edges}
	}
}

// WithFanOut replaces the flow with root feeding every branch in parallel.
func WithFanOut(root string, branches ...string) func(*models.WorkflowTemplate) {
	return func(t *models.WorkflowTemplate) {
		nodes := []models.FlowNode{models.StationNode("n-"+root, root)}
		edges := make([]models.FlowEdge, 0, len(branches))

		for _, branch := range branches {
			nodes = append(nodes, models.StationNode("n-"+branch, branch))
			edges = append(edges, edge("n-"+root, "n-"+branch))
		}

		t.Flow = models.Flow{Nodes: nodes, Edges: edges}
	}
}

func edge(source, target string) models.FlowEdge {
	return models.FlowEdge{ID: source + "->" + target, Source: source, Target: target}
}

// CreateTestWorkOrder creates a requested work order for templateID.
func CreateTestWorkOrder(templateID string, overrides ...func(*models.WorkOrder)) *models.WorkOrder {
	order := &models.WorkOrder{
		ID:              uuid.NewString(),
		OrderNumber:     "WO-TEST-" + uuid.NewString()[:6],
		TemplateID:      templateID,
		CustomerID:      "customer-1",
		Status:          models.WorkOrderStatusRequested,
		RequestedAt:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		CurrentStations: []string{},
		StationHistory:  []models.StationHistoryEntry{},
		Version:         1,
	}

	for _, override := range overrides {
		override(order)
	}

	return order
}

// WithStatus sets the work order status.
func WithStatus(status models.WorkOrderStatus) func(*models.WorkOrder) {
	return func(o *models.WorkOrder) {
		o.Status = status
	}
}

// WithVersion sets the stored version of the work order.
func WithVersion(version int64) func(*models.WorkOrder) {
	return func(o *models.WorkOrder) {
		o.Version = version
	}
}
