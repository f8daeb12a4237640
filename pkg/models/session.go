package models

import "time"

// SessionEndReason records why a work session ended.
type SessionEndReason string

const (
	SessionStopped   SessionEndReason = "stopped"
	SessionCompleted SessionEndReason = "completed"
	// SessionSwitched ends a session because the operator started other work.
	SessionSwitched SessionEndReason = "switched"
)

// WorkSession is one uninterrupted period an operator spent on a work order
// at a station. An operator has at most one active session.
type WorkSession struct {
	ID          string           `json:"id"`
	OperatorID  string           `json:"operator_id"`
	WorkOrderID string           `json:"work_order_id"`
	StationID   string           `json:"station_id"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
	EndReason   SessionEndReason `json:"end_reason,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

// Active reports whether the session has not ended.
func (s *WorkSession) Active() bool {
	return s.EndedAt == nil
}

// Covers reports whether the session is for workOrderID at stationID.
func (s *WorkSession) Covers(workOrderID, stationID string) bool {
	return s.WorkOrderID == workOrderID && s.StationID == stationID
}

// Duration is the length of an ended session, or the time elapsed until now.
func (s *WorkSession) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}

	return now.Sub(s.StartedAt)
}

// End closes the session at endedAt. Notes are kept unless notes is empty.
func (s *WorkSession) End(endedAt time.Time, reason SessionEndReason, notes string) {
	s.EndedAt = &endedAt
	s.EndReason = reason

	if notes != "" {
		s.Notes = notes
	}
}
