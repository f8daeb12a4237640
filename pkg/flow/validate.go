package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jigged/shopfloor/pkg/models"
)

// ErrCycleDetected is wrapped by Validate when the edges form a cycle.
var ErrCycleDetected = errors.New("flow: cycle detected, graph is not acyclic")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate performs the authoring-time checks a template must pass before it
// can be referenced by work orders.
func Validate(template *models.WorkflowTemplate) error {
	if template == nil {
		return models.NewValidationError("template", "template cannot be nil")
	}

	if strings.TrimSpace(template.ID) == "" {
		return models.NewValidationError("id", "template id is required")
	}

	err := validate.Struct(template)
	if err != nil {
		return fromValidator(err)
	}

	if len(template.Flow.Nodes) == 0 {
		return models.NewValidationError("flow.nodes", "template must have at least one node")
	}

	nodeIDs := make(map[string]bool, len(template.Flow.Nodes))
	for i, node := range template.Flow.Nodes {
		field := fmt.Sprintf("flow.nodes[%d]", i)

		if node.ID == "" {
			return models.NewValidationError(field+".id", "node id is required")
		}

		if nodeIDs[node.ID] {
			return models.NewValidationError(field+".id", "duplicate node id "+node.ID)
		}

		nodeIDs[node.ID] = true

		if payload, ok := node.Station(); ok {
			if payload.StationID == "" {
				return models.NewValidationError(field+".station_id", "station nodes require a station id")
			}

			for j, material := range payload.Materials {
				err := validate.Struct(material)
				if err != nil {
					return models.NewValidationError(
						fmt.Sprintf("%s.materials[%d]", field, j),
						fromValidator(err).Message,
					)
				}
			}
		}
	}

	for i, edge := range template.Flow.Edges {
		field := fmt.Sprintf("flow.edges[%d]", i)

		err := validate.Struct(edge)
		if err != nil {
			return models.NewValidationError(field, fromValidator(err).Message)
		}

		if !nodeIDs[edge.Source] {
			return models.NewValidationError(field+".source", "unknown node "+edge.Source)
		}

		if !nodeIDs[edge.Target] {
			return models.NewValidationError(field+".target", "unknown node "+edge.Target)
		}
	}

	err = validateAcyclic(template.Flow.Nodes, template.Flow.Edges)
	if err != nil {
		return &models.ValidationError{Field: "flow.edges", Message: "edges form a cycle", Err: err}
	}

	if len(StartingNodes(template)) == 0 {
		return models.NewValidationError("flow", "template has no starting station")
	}

	reached := reachableNodes(template)

	for i, node := range template.Flow.Nodes {
		if node.IsStation() && !reached[node.ID] {
			return models.NewValidationError(
				fmt.Sprintf("flow.nodes[%d]", i),
				"station node "+node.ID+" is not reachable from any starting station",
			)
		}
	}

	return nil
}

// reachableNodes returns the ids of the nodes reachable from the starting
// stations, the starting stations included.
func reachableNodes(template *models.WorkflowTemplate) map[string]bool {
	reached := make(map[string]bool, len(template.Flow.Nodes))

	stack := StartingNodes(template)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if reached[node.ID] {
			continue
		}

		reached[node.ID] = true
		stack = append(stack, Outgoing(template, node.ID)...)
	}

	return reached
}

// validateAcyclic checks that the edges don't form a cycle using DFS.
func validateAcyclic(nodes []models.FlowNode, edges []models.FlowEdge) error {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(nodes))

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[id] = visited

		return false
	}

	for _, n := range nodes {
		if state[n.ID] == unvisited && dfs(n.ID) {
			return ErrCycleDetected
		}
	}

	return nil
}

func fromValidator(err error) *models.ValidationError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		first := validationErrors[0]

		return models.NewValidationError(
			strings.ToLower(first.Field()),
			fmt.Sprintf("failed on the '%s' rule", first.Tag()),
		)
	}

	return models.NewValidationError("", err.Error())
}
