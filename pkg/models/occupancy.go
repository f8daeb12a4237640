package models

import "time"

// Occupancy binds one operator to one station for an operating session.
// It is never persisted with the business records.
type Occupancy struct {
	StationID  string    `json:"station_id"`
	OperatorID string    `json:"operator_id"`
	Since      time.Time `json:"since"`
}

// Role is the role an actor holds according to the identity provider.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleSalesperson Role = "salesperson"
	RoleOperator    Role = "operator"
)

// Actor is an identified operator, approver or salesperson.
type Actor struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role Role   `json:"role" yaml:"role"`
}
