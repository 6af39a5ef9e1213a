// Package lockrepo implements the durable, TTL-bounded mutual-exclusion
// layer described in spec.md §4.4. Each lock is two sibling files under a
// configured root: a zero-byte marker created with exclusive-create
// semantics (the cross-process ordering authority, per spec.md §9) and a
// JSON info file carrying the owner token and expiry.
package lockrepo

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// Repository is a filesystem-backed Lock Repository rooted at one directory.
type Repository struct {
	root string
	log  logrus.FieldLogger

	pollInterval time.Duration
	orphanGrace  time.Duration
}

// New creates a Repository rooted at root, creating the directory if needed.
func New(root string, log logrus.FieldLogger) (*Repository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.NotFound, err, "create lock root %q", root)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Repository{
		root:         root,
		log:          log,
		pollInterval: 100 * time.Millisecond,
		orphanGrace:  2 * time.Second,
	}, nil
}

// infoFile is the on-disk JSON shape, per spec.md §6: epoch-second fields,
// fractional so sub-second expiries survive the round trip.
type infoFile struct {
	UUID       string  `json:"uuid"`
	AcquiredAt float64 `json:"acquired_at"`
	TTLSeconds float64 `json:"ttl_seconds"`
	ExpiresAt  float64 `json:"expires_at"`
}

func (r *Repository) safeKey(key string) string {
	safe := strings.ReplaceAll(key, "/", "_")
	safe = strings.ReplaceAll(safe, "\\", "_")
	return safe
}

func (r *Repository) markerPath(key string) string {
	return filepath.Join(r.root, r.safeKey(key)+".lock")
}

func (r *Repository) infoPath(key string) string {
	return filepath.Join(r.root, r.safeKey(key)+".lock.json")
}

// Acquire atomically test-and-sets the lock for key. It fails with
// AlreadyHeld if a live record already exists.
func (r *Repository) Acquire(key string, ttl time.Duration) (string, models.LockInfo, error) {
	for attempt := 0; attempt < 2; attempt++ {
		now := time.Now()

		if _, held := r.readLive(key, now); held {
			return "", models.LockInfo{}, apperr.New(apperr.AlreadyHeld, "lock %q already held", key)
		}

		marker := r.markerPath(key)
		f, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			token, info := r.buildInfo(key, now, ttl)
			if err := r.writeInfo(key, info); err != nil {
				os.Remove(marker)
				return "", models.LockInfo{}, apperr.Wrap(apperr.Timeout, err, "write lock info %q", key)
			}
			return token, info, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return "", models.LockInfo{}, apperr.Wrap(apperr.Timeout, err, "create marker %q", key)
		}

		// Marker exists with no live info backing it. That alone doesn't
		// prove a crash: a concurrent acquirer may have just created the
		// marker and not yet written its info file. Only treat the marker
		// as orphaned once it has sat unaccompanied longer than
		// orphanGrace, mirroring the original's _cleanup_expired_lock,
		// which never fires on mere info-absence.
		if _, held := r.readLive(key, now); held {
			return "", models.LockInfo{}, apperr.New(apperr.AlreadyHeld, "lock %q already held", key)
		}

		stat, statErr := os.Stat(marker)
		if statErr != nil {
			// Marker vanished between the failed create and here (its
			// owner released or its TTL lapsed); retry the create.
			continue
		}
		if now.Sub(stat.ModTime()) < r.orphanGrace {
			return "", models.LockInfo{}, apperr.New(apperr.AlreadyHeld, "lock %q already held", key)
		}

		r.log.WithField("lock_key", key).Warn("recovering orphaned lock marker")
		os.Remove(marker)
		r.deleteInfoFile(key)
	}

	return "", models.LockInfo{}, apperr.New(apperr.Timeout, "lock %q: exhausted crash-recovery retry", key)
}

// Release deletes key's record if token matches. It is idempotent if the
// record is already gone, and fails with NotOwner on a token mismatch
// without mutating any state.
func (r *Repository) Release(key, token string) error {
	info, ok := r.readInfoFile(key)
	if !ok {
		return nil
	}
	if info.UUID != token {
		return apperr.New(apperr.NotOwner, "lock %q not owned by supplied token", key)
	}
	r.deleteInfoFile(key)
	os.Remove(r.markerPath(key))
	return nil
}

// Info returns the live LockInfo for key, or false if free.
func (r *Repository) Info(key string) (models.LockInfo, bool) {
	return r.readLive(key, time.Now())
}

// IsHeld reports whether key has a live (non-expired) record.
func (r *Repository) IsHeld(key string) bool {
	_, held := r.readLive(key, time.Now())
	return held
}

// FilterIdle returns the subset of keys that are not held, as of one pass.
// Not linearizable with concurrent Acquire — callers must follow up with a
// real Acquire (spec.md §4.4).
func (r *Repository) FilterIdle(keys []string) []string {
	idle := make([]string, 0, len(keys))
	for _, k := range keys {
		if !r.IsHeld(k) {
			idle = append(idle, k)
		}
	}
	return idle
}

// readLive loads key's info record, treating a missing file, a corrupt
// file, or an expired record as absent. An expired record is lazily
// cleaned up as a side effect, per spec.md §4.4.
func (r *Repository) readLive(key string, now time.Time) (models.LockInfo, bool) {
	info, ok := r.readInfoFile(key)
	if !ok {
		return models.LockInfo{}, false
	}
	if info.Expired(now) {
		r.deleteInfoFile(key)
		os.Remove(r.markerPath(key))
		return models.LockInfo{}, false
	}
	return info, true
}

func (r *Repository) readInfoFile(key string) (models.LockInfo, bool) {
	raw, err := os.ReadFile(r.infoPath(key))
	if err != nil {
		return models.LockInfo{}, false
	}
	var disk infoFile
	if err := json.Unmarshal(raw, &disk); err != nil {
		return models.LockInfo{}, false
	}
	return models.LockInfo{
		LockKey:    key,
		UUID:       disk.UUID,
		AcquiredAt: time.Unix(0, int64(disk.AcquiredAt*float64(time.Second))),
		TTLSeconds: disk.TTLSeconds,
		ExpiresAt:  time.Unix(0, int64(disk.ExpiresAt*float64(time.Second))),
	}, true
}

func (r *Repository) writeInfo(key string, info models.LockInfo) error {
	disk := infoFile{
		UUID:       info.UUID,
		AcquiredAt: float64(info.AcquiredAt.UnixNano()) / float64(time.Second),
		TTLSeconds: info.TTLSeconds,
		ExpiresAt:  float64(info.ExpiresAt.UnixNano()) / float64(time.Second),
	}
	raw, err := json.Marshal(disk)
	if err != nil {
		return err
	}
	return os.WriteFile(r.infoPath(key), raw, 0o644)
}

func (r *Repository) deleteInfoFile(key string) {
	os.Remove(r.infoPath(key))
}

func (r *Repository) buildInfo(key string, now time.Time, ttl time.Duration) (string, models.LockInfo) {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	info := models.LockInfo{
		LockKey:    key,
		UUID:       token,
		AcquiredAt: now,
		TTLSeconds: ttl.Seconds(),
		ExpiresAt:  now.Add(ttl),
	}
	return token, info
}
