package models

import "time"

// SessionState is the liveness state machine for a pooled WebDriver session.
type SessionState string

const (
	SessionHealthy SessionState = "HEALTHY"
	SessionSuspect SessionState = "SUSPECT"
	SessionDead    SessionState = "DEAD"
)

// SessionEntry is the pool's bookkeeping record for one live session slot,
// per spec.md §3. The handle itself is not part of this value type — it is
// owned internally by the pool and lent out through a scoped handle (see
// internal/pool.Lease).
type SessionEntry struct {
	SessionID     string       `json:"sessionId"`
	Capability    string       `json:"capability"`
	State         SessionState `json:"state"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastCheckedAt time.Time    `json:"lastCheckedAt"`
}
