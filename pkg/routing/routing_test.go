package routing_test

import (
	"testing"
	"time"

	"github.com/jigged/shopfloor/pkg/models"
	"github.com/jigged/shopfloor/pkg/routing"
	"github.com/stretchr/testify/assert"
)

func template(nodes []models.FlowNode, edges ...[2]string) *models.WorkflowTemplate {
	flowEdges := make([]models.FlowEdge, 0, len(edges))
	for _, edge := range edges {
		flowEdges = append(flowEdges, models.FlowEdge{Source: edge[0], Target: edge[1]})
	}

	return &models.WorkflowTemplate{ID: "tpl", Name: "test", Flow: models.Flow{Nodes: nodes, Edges: flowEdges}}
}

// diamond is A -> {B, C} -> D -> end.
func diamond() *models.WorkflowTemplate {
	return template(
		[]models.FlowNode{
			models.StationNode("a", "A"),
			models.StationNode("b", "B"),
			models.StationNode("c", "C"),
			models.StationNode("d", "D"),
			models.EndNode("end"),
		},
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "d"}, [2]string{"c", "d"}, [2]string{"d", "end"},
	)
}

func completed(stationIDs ...string) []models.StationHistoryEntry {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	entries := make([]models.StationHistoryEntry, 0, len(stationIDs))

	for _, id := range stationIDs {
		done := now
		entries = append(entries, models.StationHistoryEntry{StationID: id, OperatorID: "op", StartedAt: now, CompletedAt: &done})
	}

	return entries
}

func TestIsValidNextStation(t *testing.T) {
	tpl := diamond()

	tests := []struct {
		status   models.WorkOrderStatus
		current  []string
		station  string
		expected bool
	}{
		{models.WorkOrderStatusRequested, nil, "A", false},
		{models.WorkOrderStatusApproved, nil, "A", true},
		{models.WorkOrderStatusApproved, nil, "B", false},
		{models.WorkOrderStatusInProgress, []string{"B", "C"}, "B", true},
		{models.WorkOrderStatusInProgress, []string{"B", "C"}, "A", false},
		{models.WorkOrderStatusInProgress, []string{"B", "C"}, "D", false},
		{models.WorkOrderStatusFinished, []string{}, "A", false},
		{models.WorkOrderStatusRejected, []string{}, "A", false},
	}

	for _, tt := range tests {
		order := &models.WorkOrder{Status: tt.status, CurrentStations: tt.current}

		assert.Equal(t, tt.expected, routing.IsValidNextStation(order, tpl, tt.station),
			"status=%s current=%v station=%s", tt.status, tt.current, tt.station)
	}
}

func TestStartingStations(t *testing.T) {
	tpl := template(
		[]models.FlowNode{
			models.StationNode("a1", "A"),
			models.StationNode("x", "X"),
			models.StationNode("a2", "A"),
		},
	)

	assert.Equal(t, []string{"A", "X"}, routing.StartingStations(tpl))
	assert.Equal(t, []string{"A"}, routing.StartingStations(diamond()))
}

func TestComputeSuccessors(t *testing.T) {
	tpl := diamond()

	order := &models.WorkOrder{StationHistory: completed("A")}
	assert.Equal(t, []string{"B", "C"}, routing.ComputeSuccessors(order, tpl, "A"))

	order = &models.WorkOrder{StationHistory: completed("A", "B")}
	assert.Equal(t, []string{"D"}, routing.ComputeSuccessors(order, tpl, "B"))

	order = &models.WorkOrder{StationHistory: completed("A", "B", "C", "D")}
	assert.Empty(t, routing.ComputeSuccessors(order, tpl, "D"), "end markers contribute nothing")

	// A successor that already ran is not activated again.
	order = &models.WorkOrder{StationHistory: completed("A", "C", "D", "B")}
	assert.Empty(t, routing.ComputeSuccessors(order, tpl, "B"))
}

func TestIsWorkflowComplete(t *testing.T) {
	tpl := diamond()

	assert.False(t, routing.IsWorkflowComplete(&models.WorkOrder{
		CurrentStations: []string{"D"},
		StationHistory:  completed("A", "B", "C"),
	}, tpl))

	assert.False(t, routing.IsWorkflowComplete(&models.WorkOrder{
		CurrentStations: []string{},
		StationHistory:  completed("A", "B"),
	}, tpl), "branch C never ran")

	assert.True(t, routing.IsWorkflowComplete(&models.WorkOrder{
		CurrentStations: []string{},
		StationHistory:  completed("A", "B", "C", "D"),
	}, tpl))
}
