// Package dispatcher is the Execution Dispatcher (spec.md §4.7): it wires
// the Lock Repository, Session Pool, Script Store, Template Renderer,
// Script Loader, and Command Executor together into the two execution
// entry points, executeAny and executeOn, plus the session selection policy
// openStream shares with executeAny.
package dispatcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sideruntime/sidesvc/internal/apperr"
	"github.com/sideruntime/sidesvc/internal/executor"
	"github.com/sideruntime/sidesvc/internal/lockrepo"
	"github.com/sideruntime/sidesvc/internal/pool"
	"github.com/sideruntime/sidesvc/internal/script"
	"github.com/sideruntime/sidesvc/internal/sidestore"
	"github.com/sideruntime/sidesvc/internal/template"
	"github.com/sideruntime/sidesvc/pkg/models"
)

// Dispatcher is the Execution Dispatcher.
type Dispatcher struct {
	Pool     *pool.Pool
	Locks    *lockrepo.Repository
	Store    *sidestore.Store
	Renderer *template.Renderer

	RunTTL       time.Duration
	OnTargetWait time.Duration
	ImplicitWait time.Duration

	log logrus.FieldLogger
}

// New builds a Dispatcher from its constituent components.
func New(p *pool.Pool, locks *lockrepo.Repository, store *sidestore.Store, renderer *template.Renderer, runTTL, onTargetWait, implicitWait time.Duration, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		Pool: p, Locks: locks, Store: store, Renderer: renderer,
		RunTTL: runTTL, OnTargetWait: onTargetWait, ImplicitWait: implicitWait,
		log: log,
	}
}

// ExecuteAny auto-selects an idle session and runs req against it, per
// spec.md §4.7 steps 1-8.
func (d *Dispatcher) ExecuteAny(ctx context.Context, req models.ExecuteRequest) (models.ExecuteResult, error) {
	idle := d.Locks.FilterIdle(d.Pool.List())
	if len(idle) == 0 {
		return models.ExecuteResult{}, apperr.New(apperr.NoCapacity, "no idle session available")
	}

	for _, id := range idle {
		scoped, err := d.Locks.AcquireScoped(id, d.RunTTL, 0)
		if err != nil {
			if apperr.Is(err, apperr.Timeout) {
				continue
			}
			return models.ExecuteResult{}, err
		}
		return d.runLocked(ctx, id, scoped, req)
	}
	return models.ExecuteResult{}, apperr.New(apperr.NoCapacity, "no idle session could be acquired")
}

// ExecuteOn runs req against a caller-specified session, waiting up to
// OnTargetWait for it to become free.
func (d *Dispatcher) ExecuteOn(ctx context.Context, id string, req models.ExecuteRequest) (models.ExecuteResult, error) {
	scoped, err := d.Locks.AcquireScoped(id, d.RunTTL, d.OnTargetWait)
	if err != nil {
		return models.ExecuteResult{}, err
	}
	return d.runLocked(ctx, id, scoped, req)
}

// runLocked performs steps 5-8 of executeAny/executeOn while holding scoped.
func (d *Dispatcher) runLocked(ctx context.Context, id string, scoped *lockrepo.ScopedLock, req models.ExecuteRequest) (models.ExecuteResult, error) {
	defer scoped.Release()
	return d.RunScript(ctx, id, req)
}

// RunScript performs steps 5-8 of executeAny/executeOn (script preparation
// and command execution) against a session the caller already holds the
// lock for. The Pinned Stream Gateway calls this directly for execute_side
// messages, since it pins its own lock across the connection's lifetime
// instead of scoping one per call (spec.md §4.7's openStream).
func (d *Dispatcher) RunScript(ctx context.Context, id string, req models.ExecuteRequest) (models.ExecuteResult, error) {
	raw, err := d.Store.Get(req.ScriptID)
	if err != nil {
		return models.ExecuteResult{}, err
	}
	rendered, err := d.Renderer.Render(raw, req.Params)
	if err != nil {
		return models.ExecuteResult{}, err
	}
	project, err := script.Load(rendered)
	if err != nil {
		return models.ExecuteResult{}, err
	}

	tests, err := selectTests(project, req)
	if err != nil {
		return models.ExecuteResult{}, err
	}

	lease, err := d.Pool.Acquire(ctx, id)
	if err != nil {
		return models.ExecuteResult{}, err
	}

	scope := executor.NewScope(req.Params)
	exec := executor.New(lease.Driver, project.URL, scope, d.ImplicitWait)

	for _, test := range tests {
		for _, cmd := range test.Commands {
			if err := exec.Run(cmd); err != nil {
				pageSource, psErr := lease.Driver.PageSource()
				if psErr != nil {
					return models.ExecuteResult{SessionID: id}, err
				}
				return models.ExecuteResult{SessionID: id, PageSource: pageSource}, err
			}
		}
	}

	pageSource, err := lease.Driver.PageSource()
	if err != nil {
		return models.ExecuteResult{}, apperr.Wrap(apperr.CommandFailed, err, "read final page source")
	}
	return models.ExecuteResult{SessionID: id, PageSource: pageSource}, nil
}

// selectTests chooses the Test by name, or every Test in the named (or
// first) Suite, per spec.md §4.7 step 6.
func selectTests(project *models.Project, req models.ExecuteRequest) ([]models.Test, error) {
	if req.Test != "" {
		t, ok := project.GetTestByName(req.Test)
		if !ok {
			return nil, apperr.New(apperr.InvalidReference, "test %q not found", req.Test)
		}
		return []models.Test{t}, nil
	}

	suite, ok := project.GetSuite(req.Suite)
	if !ok {
		return nil, apperr.New(apperr.InvalidReference, "suite %q not found", req.Suite)
	}
	return project.TestsForSuite(suite), nil
}

// PickIdleSession runs the same idle-scan policy executeAny uses, returning
// one candidate session id. The Pinned Stream Gateway calls this directly
// because it needs the id before deciding to acquire a non-scoped,
// connection-lifetime lock (spec.md §4.7's openStream step 1).
func (d *Dispatcher) PickIdleSession() (string, error) {
	idle := d.Locks.FilterIdle(d.Pool.List())
	if len(idle) == 0 {
		return "", apperr.New(apperr.NoCapacity, "no idle session available")
	}
	return idle[0], nil
}
