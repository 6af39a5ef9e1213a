package models

import "time"

// LockInfo is the on-disk record backing one held lock.
type LockInfo struct {
	LockKey    string    `json:"lock_key"`
	UUID       string    `json:"uuid"`
	AcquiredAt time.Time `json:"acquired_at"`
	TTLSeconds float64   `json:"ttl_seconds"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock is no longer live as of now.
func (l LockInfo) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
