// Package models defines the core domain models for station routing on the shop floor.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind discriminates the variants of a flow node.
type NodeKind string

const (
	NodeKindStation NodeKind = "station"
	NodeKindStart   NodeKind = "start"
	NodeKindEnd     NodeKind = "end"
)

// StationDefinition is reference data describing a physical work location.
type StationDefinition struct {
	ID          string    `json:"id"          validate:"required"`
	Name        string    `json:"name"        validate:"required,min=1"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// MaterialRequirement is a material a station node declares it consumes.
type MaterialRequirement struct {
	MaterialID  string  `json:"material_id"  validate:"required"`
	RequiredQty float64 `json:"required_qty" validate:"gte=0"`
}

// StationPayload is the data carried only by station nodes.
type StationPayload struct {
	StationID string                `json:"station_id"`
	Materials []MaterialRequirement `json:"materials,omitempty"`
}

// FlowNode is one vertex of a template's flow. It is either a station, a
// start marker or an end marker; only station nodes carry a payload.
type FlowNode struct {
	ID      string
	Kind    NodeKind
	station *StationPayload
}

// StationNode builds a station node.
func StationNode(id, stationID string, materials ...MaterialRequirement) FlowNode {
	return FlowNode{
		ID:   id,
		Kind: NodeKindStation,
		station: &StationPayload{
			StationID: stationID,
			Materials: materials,
		},
	}
}

// StartNode builds a start marker node.
func StartNode(id string) FlowNode {
	return FlowNode{ID: id, Kind: NodeKindStart}
}

// EndNode builds an end marker node.
func EndNode(id string) FlowNode {
	return FlowNode{ID: id, Kind: NodeKindEnd}
}

// Station returns the station payload and true for station nodes.
func (n FlowNode) Station() (StationPayload, bool) {
	if n.Kind != NodeKindStation || n.station == nil {
		return StationPayload{}, false
	}

	return *n.station, true
}

// StationID is a shorthand returning "" for non-station nodes.
func (n FlowNode) StationID() string {
	payload, ok := n.Station()
	if !ok {
		return ""
	}

	return payload.StationID
}

// IsStation reports whether the node is a station node.
func (n FlowNode) IsStation() bool {
	_, ok := n.Station()

	return ok
}

type flowNodeJSON struct {
	ID        string                `json:"id"`
	Kind      NodeKind              `json:"kind"`
	StationID string                `json:"station_id,omitempty"`
	Materials []MaterialRequirement `json:"materials,omitempty"`
}

// MarshalJSON flattens the variant into a single object keyed by kind.
func (n FlowNode) MarshalJSON() ([]byte, error) {
	out := flowNodeJSON{ID: n.ID, Kind: n.Kind}
	if payload, ok := n.Station(); ok {
		out.StationID = payload.StationID
		out.Materials = payload.Materials
	}

	return json.Marshal(out)
}

// UnmarshalJSON rejects unknown kinds and payloads on non-station nodes.
func (n *FlowNode) UnmarshalJSON(data []byte) error {
	var in flowNodeJSON

	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}

	switch in.Kind {
	case NodeKindStation:
		*n = StationNode(in.ID, in.StationID, in.Materials...)
	case NodeKindStart, NodeKindEnd:
		if in.StationID != "" || len(in.Materials) > 0 {
			return fmt.Errorf("node %s: %s nodes cannot carry a station payload", in.ID, in.Kind)
		}

		*n = FlowNode{ID: in.ID, Kind: in.Kind}
	default:
		return fmt.Errorf("node %s: unknown node kind %q", in.ID, in.Kind)
	}

	return nil
}

// FlowEdge is a directed connection between two nodes of the same template.
type FlowEdge struct {
	ID     string `json:"id"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// Flow holds the nodes and edges of a template.
type Flow struct {
	Nodes []FlowNode `json:"nodes"`
	Edges []FlowEdge `json:"edges"`
}

// WorkflowTemplate is a reusable routing graph. Templates are read-only once
// work orders reference them.
type WorkflowTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"       validate:"required,min=1"`
	Flow      Flow      `json:"flow"`
	CreatedAt time.Time `json:"created_at"`
}
