// Package routing decides which stations a work order may legally occupy
// given its template and its completed history. Every function is pure.
package routing

import (
	"slices"

	"github.com/jigged/shopfloor/pkg/flow"
	"github.com/jigged/shopfloor/pkg/models"
)

// IsValidNextStation reports whether the order may be scanned or started at stationID.
func IsValidNextStation(order *models.WorkOrder, template *models.WorkflowTemplate, stationID string) bool {
	switch order.Status {
	case models.WorkOrderStatusApproved:
		for _, node := range flow.StartingNodes(template) {
			if node.StationID() == stationID {
				return true
			}
		}

		return false
	case models.WorkOrderStatusInProgress:
		return order.HasCurrentStation(stationID)
	default:
		return false
	}
}

// StartingStations returns the station ids of the template's starting nodes.
func StartingStations(template *models.WorkflowTemplate) []string {
	stations := make([]string, 0)

	for _, node := range flow.StartingNodes(template) {
		if !slices.Contains(stations, node.StationID()) {
			stations = append(stations, node.StationID())
		}
	}

	return stations
}

// ComputeSuccessors returns the stations that become active once
// completedStationID is done. Nodes whose station already has a completed
// history entry are skipped and end markers contribute nothing. When several
// stations are returned they are parallel branches with no ordering between
// them.
func ComputeSuccessors(order *models.WorkOrder, template *models.WorkflowTemplate, completedStationID string) []string {
	successors := make([]string, 0)

	for _, node := range flow.NodesForStation(template, completedStationID) {
		for _, next := range flow.Outgoing(template, node.ID) {
			stationID := next.StationID()
			if stationID == "" {
				continue
			}

			if order.HasCompleted(stationID) || slices.Contains(successors, stationID) {
				continue
			}

			successors = append(successors, stationID)
		}
	}

	return successors
}

// IsWorkflowComplete reports whether every branch of the order has
// terminated: no station is active and every station reachable from a
// starting node has a completed history entry.
func IsWorkflowComplete(order *models.WorkOrder, template *models.WorkflowTemplate) bool {
	if len(order.CurrentStations) > 0 {
		return false
	}

	for _, stationID := range flow.ReachableStations(template) {
		if !order.HasCompleted(stationID) {
			return false
		}
	}

	return true
}
