package flow_test

import (
	"errors"
	"testing"

	"github.com/jigged/shopfloor/pkg/flow"
	"github.com/jigged/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func template(nodes []models.FlowNode, edges ...[2]string) *models.WorkflowTemplate {
	flowEdges := make([]models.FlowEdge, 0, len(edges))
	for _, edge := range edges {
		flowEdges = append(flowEdges, models.FlowEdge{ID: edge[0] + "->" + edge[1], Source: edge[0], Target: edge[1]})
	}

	return &models.WorkflowTemplate{
		ID:   "tpl",
		Name: "test",
		Flow: models.Flow{Nodes: nodes, Edges: flowEdges},
	}
}

func nodeIDs(nodes []models.FlowNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}

	return ids
}

func TestStartingNodes(t *testing.T) {
	tests := []struct {
		name     string
		template *models.WorkflowTemplate
		expected []string
	}{
		{
			name: "linear",
			template: template(
				[]models.FlowNode{models.StationNode("a", "A"), models.StationNode("b", "B"), models.EndNode("end")},
				[2]string{"a", "b"}, [2]string{"b", "end"},
			),
			expected: []string{"a"},
		},
		{
			name: "start marker gives its target an incoming edge",
			template: template(
				[]models.FlowNode{models.StartNode("start"), models.StationNode("a", "A"), models.StationNode("x", "X")},
				[2]string{"start", "a"},
			),
			expected: []string{"x"},
		},
		{
			name: "several independent entries",
			template: template(
				[]models.FlowNode{models.StationNode("a", "A"), models.StationNode("x", "X"), models.StationNode("j", "J")},
				[2]string{"a", "j"}, [2]string{"x", "j"},
			),
			expected: []string{"a", "x"},
		},
		{
			name:     "markers only",
			template: template([]models.FlowNode{models.StartNode("s"), models.EndNode("e")}),
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nodeIDs(flow.StartingNodes(tt.template)))
		})
	}
}

func TestGraphQueries(t *testing.T) {
	tpl := template(
		[]models.FlowNode{
			models.StationNode("a", "A"),
			models.StationNode("b", "B"),
			models.StationNode("c", "C"),
			models.StationNode("orphan-target", "Z"),
			models.EndNode("end"),
		},
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "end"}, [2]string{"c", "end"},
	)

	assert.Equal(t, []string{"b", "c"}, nodeIDs(flow.Outgoing(tpl, "a")))
	assert.Empty(t, flow.Outgoing(tpl, "end"))

	node, ok := flow.Node(tpl, "c")
	require.True(t, ok)
	assert.Equal(t, "C", node.StationID())

	_, ok = flow.Node(tpl, "missing")
	assert.False(t, ok)

	node, ok = flow.StationNode(tpl, "B")
	require.True(t, ok)
	assert.Equal(t, "b", node.ID)

	_, ok = flow.StationNode(tpl, "Q")
	assert.False(t, ok)

	// Z is a second entry point with no incoming edge.
	assert.Equal(t, []string{"A", "Z", "B", "C"}, flow.ReachableStations(tpl))
}

func TestValidate(t *testing.T) {
	valid := func() *models.WorkflowTemplate {
		return template(
			[]models.FlowNode{models.StationNode("a", "A"), models.StationNode("b", "B")},
			[2]string{"a", "b"},
		)
	}

	require.NoError(t, flow.Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*models.WorkflowTemplate) *models.WorkflowTemplate
		field  string
	}{
		{
			name:   "nil template",
			mutate: func(*models.WorkflowTemplate) *models.WorkflowTemplate { return nil },
			field:  "template",
		},
		{
			name: "missing id",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.ID = " "
				return tpl
			},
			field: "id",
		},
		{
			name: "missing name",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Name = ""
				return tpl
			},
			field: "name",
		},
		{
			name: "no nodes",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow = models.Flow{}
				return tpl
			},
			field: "flow.nodes",
		},
		{
			name: "duplicate node id",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes = append(tpl.Flow.Nodes, models.StationNode("a", "C"))
				return tpl
			},
			field: "flow.nodes[2].id",
		},
		{
			name: "station node without station",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes[1] = models.StationNode("b", "")
				return tpl
			},
			field: "flow.nodes[1].station_id",
		},
		{
			name: "negative material quantity",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes[0] = models.StationNode("a", "A", models.MaterialRequirement{MaterialID: "steel", RequiredQty: -1})
				return tpl
			},
			field: "flow.nodes[0].materials[0]",
		},
		{
			name: "edge to unknown node",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Edges = append(tpl.Flow.Edges, models.FlowEdge{Source: "b", Target: "ghost"})
				return tpl
			},
			field: "flow.edges[1].target",
		},
		{
			name: "cycle",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes = append(tpl.Flow.Nodes, models.StationNode("x", "X"))
				tpl.Flow.Edges = append(tpl.Flow.Edges, models.FlowEdge{Source: "b", Target: "a"})
				return tpl
			},
			field: "flow.edges",
		},
		{
			name: "station only reachable from a start marker",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes = []models.FlowNode{models.StartNode("start"), models.StationNode("a", "A"), models.StationNode("b", "B")}
				tpl.Flow.Edges = []models.FlowEdge{{Source: "start", Target: "b"}}
				return tpl
			},
			field: "flow.nodes[2]",
		},
		{
			name: "station behind a detached marker",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes = append(tpl.Flow.Nodes, models.EndNode("end"), models.StationNode("c", "C"))
				tpl.Flow.Edges = append(tpl.Flow.Edges, models.FlowEdge{Source: "end", Target: "c"})
				return tpl
			},
			field: "flow.nodes[3]",
		},
		{
			name: "no starting station",
			mutate: func(tpl *models.WorkflowTemplate) *models.WorkflowTemplate {
				tpl.Flow.Nodes = append(tpl.Flow.Nodes, models.StartNode("start"))
				tpl.Flow.Edges = append(tpl.Flow.Edges, models.FlowEdge{Source: "start", Target: "a"})
				return tpl
			},
			field: "flow",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := flow.Validate(tt.mutate(valid()))
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))

			var validationErr *models.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestValidate_ReachesStationsThroughMarkers(t *testing.T) {
	tpl := template(
		[]models.FlowNode{
			models.StationNode("a", "A"),
			models.StationNode("b", "B"),
			models.StationNode("c", "C"),
			models.EndNode("end"),
		},
		[2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "end"}, [2]string{"c", "end"},
	)

	require.NoError(t, flow.Validate(tpl))

	independent := template([]models.FlowNode{models.StationNode("a", "A"), models.StationNode("b", "B")})
	assert.NoError(t, flow.Validate(independent), "every station without an incoming edge is a starting station")
}

func TestValidate_CycleIsDetectable(t *testing.T) {
	tpl := template(
		[]models.FlowNode{models.StationNode("s", "S"), models.StationNode("a", "A"), models.StationNode("b", "B")},
		[2]string{"s", "a"}, [2]string{"a", "b"}, [2]string{"b", "a"},
	)

	err := flow.Validate(tpl)
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrCycleDetected)
}

func TestDecodeTemplate(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		tpl, err := flow.DecodeTemplate([]byte(`{
			"id": "bracket",
			"name": "Bracket",
			"flow": {
				"nodes": [
					{"id": "cut", "kind": "station", "station_id": "SAW", "materials": [{"material_id": "steel", "required_qty": 1.5}]},
					{"id": "weld", "kind": "station", "station_id": "WELD"},
					{"id": "done", "kind": "end"}
				],
				"edges": [
					{"id": "e1", "source": "cut", "target": "weld"},
					{"id": "e2", "source": "weld", "target": "done"}
				]
			}
		}`))
		require.NoError(t, err)

		assert.Equal(t, "bracket", tpl.ID)
		require.Len(t, tpl.Flow.Nodes, 3)

		payload, ok := tpl.Flow.Nodes[0].Station()
		require.True(t, ok)
		assert.Equal(t, []models.MaterialRequirement{{MaterialID: "steel", RequiredQty: 1.5}}, payload.Materials)
		assert.Equal(t, models.NodeKindEnd, tpl.Flow.Nodes[2].Kind)
	})

	t.Run("id is optional", func(t *testing.T) {
		tpl, err := flow.DecodeTemplate([]byte(`{"name":"x","flow":{"nodes":[{"id":"a","kind":"station","station_id":"A"}]}}`))
		require.NoError(t, err)
		assert.Empty(t, tpl.ID)
	})

	invalid := map[string]string{
		"not json":           `{`,
		"missing name":       `{"id":"x","flow":{"nodes":[{"id":"a","kind":"station","station_id":"A"}]}}`,
		"unknown kind":       `{"id":"x","name":"x","flow":{"nodes":[{"id":"a","kind":"robot"}]}}`,
		"station without id": `{"id":"x","name":"x","flow":{"nodes":[{"id":"a","kind":"station"}]}}`,
		"end with payload":   `{"id":"x","name":"x","flow":{"nodes":[{"id":"a","kind":"station","station_id":"A"},{"id":"e","kind":"end","station_id":"A"}]}}`,
		"empty nodes":        `{"id":"x","name":"x","flow":{"nodes":[]}}`,
		"numeric id":         `{"id":7,"name":"x","flow":{"nodes":[{"id":"a","kind":"station","station_id":"A"}]}}`,
	}

	for name, document := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := flow.DecodeTemplate([]byte(document))
			require.Error(t, err)
			assert.True(t, models.IsValidation(err))
		})
	}
}
