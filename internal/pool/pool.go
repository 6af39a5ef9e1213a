// Package pool is the Session Pool (spec.md §4.5): it keeps a warm set of
// live WebDriver sessions against a Selenium Grid endpoint, replaces dead
// ones, and lends scoped handles to callers. Mutual exclusion between
// concurrent acquirers of the same session_id is the Lock Repository's job,
// not this package's.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/selenium"
	"golang.org/x/sync/semaphore"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// maxConcurrentDials bounds how many grid dials WarmUp runs at once,
// mirroring the teacher's semaphore.Weighted-bounded concurrency slots in
// internal/session.Manager (there scoped per project, here scoped to one
// warm-up batch against a single grid).
const maxConcurrentDials = 10

// Driver is the subset of selenium.WebDriver the pool itself needs. A real
// selenium.WebDriver value always satisfies this narrower interface.
type Driver interface {
	CurrentURL() (string, error)
	Quit() error
}

// Grid opens WebDriver sessions against a Selenium Grid and reports how many
// it can currently support.
type Grid interface {
	Capacity(ctx context.Context) (int, error)
	Dial(ctx context.Context) (selenium.WebDriver, error)
}

type entry struct {
	id            string
	capability    string
	driver        Driver
	state         models.SessionState
	createdAt     time.Time
	lastCheckedAt time.Time
}

// Pool is the Session Pool. Its zero value is not usable; construct with New.
type Pool struct {
	grid        Grid
	initTimeout time.Duration
	capability  string
	log         logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
}

// New builds a Pool against grid. initTimeout bounds WarmUp's startup budget
// (spec.md's T_init). capability is the descriptive capability string
// (spec.md §3's SessionEntry.capability) every slot dialed by this pool
// shares, e.g. a rendered browserName/version pair.
func New(grid Grid, initTimeout time.Duration, capability string, log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		grid:        grid,
		initTimeout: initTimeout,
		capability:  capability,
		log:         log,
		entries:     make(map[string]*entry),
	}
}

// WarmUp queries the grid for slot capacity and opens that many sessions,
// bounded to maxConcurrentDials in flight at once and each bounded by the
// pool's init timeout. It blocks until every attempt finishes or times out,
// so callers that want a non-blocking service entry point must run it in
// its own goroutine (spec.md §4.5).
func (p *Pool) WarmUp(ctx context.Context) {
	capacity, err := p.grid.Capacity(ctx)
	if err != nil {
		p.log.WithError(err).Warn("warm-up: could not query grid capacity")
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentDials)
	var wg sync.WaitGroup
	for i := 0; i < capacity; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			p.log.WithError(err).Warn("warm-up: aborted acquiring a dial slot")
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			dialCtx, cancel := context.WithTimeout(ctx, p.initTimeout)
			defer cancel()
			if err := p.openSlot(dialCtx, uuid.New().String()); err != nil {
				p.log.WithError(err).Warn("warm-up: failed to open session")
			}
		}()
	}
	wg.Wait()
}

// openSlot dials a fresh driver and registers it under id, appending id to
// insertion order if it is new.
func (p *Pool) openSlot(ctx context.Context, id string) error {
	driver, err := p.grid.Dial(ctx)
	if err != nil {
		return apperr.Wrap(apperr.GridUnreachable, err, "dial grid for session %q", id)
	}

	now := time.Now()
	p.mu.Lock()
	_, existed := p.entries[id]
	p.entries[id] = &entry{
		id: id, capability: p.capability, driver: driver,
		state: models.SessionHealthy, createdAt: now, lastCheckedAt: now,
	}
	if !existed {
		p.order = append(p.order, id)
	}
	p.mu.Unlock()
	return nil
}

// replace closes id's current driver (best-effort) and dials a new one,
// keeping id's position in insertion order stable — spec.md §4.5 requires
// the new session to "inherit the same slot" atomically from list()'s view.
func (p *Pool) replace(ctx context.Context, id string) error {
	p.mu.Lock()
	old := p.entries[id]
	p.mu.Unlock()

	if old != nil {
		if err := old.driver.Quit(); err != nil {
			p.log.WithField("session_id", id).WithError(err).Warn("close of dead session failed, ignoring")
		}
	}

	return p.openSlot(ctx, id)
}

// Lease is the scoped handle acquire lends out.
type Lease struct {
	SessionID string
	Driver    selenium.WebDriver
}

// Acquire looks up id, replacing it if absent or Dead, probes liveness, and
// replaces once more on a failed probe before giving up with NoSuchSession.
func (p *Pool) Acquire(ctx context.Context, id string) (*Lease, error) {
	e := p.lookup(id)
	if e == nil || e.state == models.SessionDead {
		if err := p.replace(ctx, id); err != nil {
			return nil, apperr.New(apperr.NoSuchSession, "session %q: %v", id, err)
		}
		e = p.lookup(id)
	}

	if err := p.probe(e); err != nil {
		p.markDead(id)
		if err := p.replace(ctx, id); err != nil {
			return nil, apperr.New(apperr.NoSuchSession, "session %q: %v", id, err)
		}
		e = p.lookup(id)
		if err := p.probe(e); err != nil {
			return nil, apperr.New(apperr.NoSuchSession, "session %q unreachable after replacement", id)
		}
	}

	driver, ok := e.driver.(selenium.WebDriver)
	if !ok {
		return nil, apperr.New(apperr.NoSuchSession, "session %q has no usable driver", id)
	}
	return &Lease{SessionID: e.id, Driver: driver}, nil
}

func (p *Pool) lookup(id string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entries[id]
}

func (p *Pool) markDead(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		e.state = models.SessionDead
	}
}

// probe is a cheap liveness check: fetch the current URL.
func (p *Pool) probe(e *entry) error {
	if e == nil {
		return apperr.New(apperr.NoSuchSession, "entry missing")
	}
	_, err := e.driver.CurrentURL()
	p.mu.Lock()
	e.lastCheckedAt = time.Now()
	p.mu.Unlock()
	return err
}

// List returns current session ids in insertion order, excluding Dead ones.
func (p *Pool) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.order))
	for _, id := range p.order {
		if e, ok := p.entries[id]; ok && e.state != models.SessionDead {
			ids = append(ids, id)
		}
	}
	return ids
}

// Entries returns the spec.md §3 SessionEntry snapshot for every live
// (non-Dead) session, in the same insertion order as List.
func (p *Pool) Entries() []models.SessionEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.SessionEntry, 0, len(p.order))
	for _, id := range p.order {
		e, ok := p.entries[id]
		if !ok || e.state == models.SessionDead {
			continue
		}
		out = append(out, models.SessionEntry{
			SessionID:     e.id,
			Capability:    e.capability,
			State:         e.state,
			CreatedAt:     e.createdAt,
			LastCheckedAt: e.lastCheckedAt,
		})
	}
	return out
}

// Shutdown closes every handle, ignoring per-handle errors, and drains the
// pool to empty.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.order = nil
	p.mu.Unlock()

	for id, e := range entries {
		if err := e.driver.Quit(); err != nil {
			p.log.WithField("session_id", id).WithError(err).Warn("shutdown: failed to close session")
		}
	}
}
