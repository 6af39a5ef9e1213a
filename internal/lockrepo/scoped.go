package lockrepo

import (
	"sync"
	"time"

	"github.com/sideruntime/sidesvc/internal/apperr"
)

// ScopedLock is an owner-held handle returned by AcquireScoped. Release is
// idempotent and safe to call from a defer on every exit path — including
// panic unwind — per spec.md §9's scope-guard requirement.
type ScopedLock struct {
	repo  *Repository
	key   string
	token string

	mu       sync.Mutex
	released bool
}

// Key is the lock key this handle owns.
func (s *ScopedLock) Key() string { return s.key }

// Token is the owner token this handle holds.
func (s *ScopedLock) Token() string { return s.token }

// Release gives up ownership. Calling it more than once is a no-op.
func (s *ScopedLock) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return s.repo.Release(s.key, s.token)
}

// AcquireScoped blocks, polling for availability, until it acquires key or
// waitTimeout elapses. A waitTimeout of zero still attempts once, matching
// executeAny's "first success proceeds, failures move on" use (spec.md §4.7).
func (r *Repository) AcquireScoped(key string, ttl, waitTimeout time.Duration) (*ScopedLock, error) {
	deadline := time.Now().Add(waitTimeout)

	for {
		token, _, err := r.Acquire(key, ttl)
		if err == nil {
			return &ScopedLock{repo: r, key: key, token: token}, nil
		}
		if !apperr.Is(err, apperr.AlreadyHeld) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, apperr.New(apperr.Timeout, "lock %q: wait timeout exceeded", key)
		}

		remaining := time.Until(deadline)
		wait := r.pollInterval
		if remaining < wait {
			wait = remaining
		}
		time.Sleep(wait)
	}
}
