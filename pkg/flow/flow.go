// Package flow answers structural questions about a template's routing graph.
package flow

import (
	"github.com/jigged/shopfloor/pkg/models"
)

// Node returns the node with the given id.
func Node(template *models.WorkflowTemplate, nodeID string) (models.FlowNode, bool) {
	for _, node := range template.Flow.Nodes {
		if node.ID == nodeID {
			return node, true
		}
	}

	return models.FlowNode{}, false
}

// StartingNodes returns the station nodes that have no incoming edge, in
// declaration order. Start and end markers are never starting nodes.
func StartingNodes(template *models.WorkflowTemplate) []models.FlowNode {
	inDegree := make(map[string]int, len(template.Flow.Nodes))
	for _, edge := range template.Flow.Edges {
		inDegree[edge.Target]++
	}

	starting := make([]models.FlowNode, 0)

	for _, node := range template.Flow.Nodes {
		if node.IsStation() && inDegree[node.ID] == 0 {
			starting = append(starting, node)
		}
	}

	return starting
}

// Outgoing returns the targets of the edges leaving nodeID, in edge order.
func Outgoing(template *models.WorkflowTemplate, nodeID string) []models.FlowNode {
	targets := make([]models.FlowNode, 0)

	for _, edge := range template.Flow.Edges {
		if edge.Source != nodeID {
			continue
		}

		if node, ok := Node(template, edge.Target); ok {
			targets = append(targets, node)
		}
	}

	return targets
}

// NodesForStation returns every station node bound to stationID.
func NodesForStation(template *models.WorkflowTemplate, stationID string) []models.FlowNode {
	nodes := make([]models.FlowNode, 0, 1)

	for _, node := range template.Flow.Nodes {
		if node.StationID() == stationID && node.IsStation() {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// StationNode returns the first station node bound to stationID.
func StationNode(template *models.WorkflowTemplate, stationID string) (models.FlowNode, bool) {
	nodes := NodesForStation(template, stationID)
	if len(nodes) == 0 {
		return models.FlowNode{}, false
	}

	return nodes[0], true
}

// ReachableStations returns the station ids reachable from any starting node,
// the starting stations included, in breadth-first order without duplicates.
func ReachableStations(template *models.WorkflowTemplate) []string {
	visited := make(map[string]bool)
	seenStation := make(map[string]bool)
	stations := make([]string, 0)

	queue := StartingNodes(template)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if visited[node.ID] {
			continue
		}

		visited[node.ID] = true

		if stationID := node.StationID(); stationID != "" && !seenStation[stationID] {
			seenStation[stationID] = true
			stations = append(stations, stationID)
		}

		queue = append(queue, Outgoing(template, node.ID)...)
	}

	return stations
}
