// Package handlers implements the per-stage work a Run performs, and
// the registry the scheduler looks handlers up in by stage name.
package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// ArtifactDraft is a handler's request to record an artifact; the
// scheduler persists it in the same transaction as the run's status
// transition.
type ArtifactDraft struct {
	Kind string
	Data []byte
}

// Outcome is a handler's verdict for one invocation.
//
//   - Status PASS: the run succeeded; the scheduler enqueues the
//     successor stage (or marks the Task DONE past MERGE).
//   - Status FAIL: the run failed; the scheduler spawns a retry or
//     rework run, or fails the Task once attempts are exhausted.
//   - Status PENDING: the run is suspended awaiting an external event
//     (HUMAN_APPROVAL with no decision yet); the scheduler leaves it
//     PENDING and enqueues nothing.
type Outcome struct {
	Status   domain.RunStatus
	Error    string
	Artifact *ArtifactDraft

	// Result, when set, is stored on the run alongside its terminal
	// status (e.g. MERGE's {merged, pr_number}).
	Result []byte

	// ReworkStage, when set alongside FAIL, names an earlier stage the
	// scheduler should re-run instead of retrying the current one.
	ReworkStage domain.Stage
}

// Func is the shape every stage handler implements: given the task and
// the run claimed for it, produce an Outcome. Implementations read
// whatever prior artifacts they need via store.Store and scope.
type Func func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error)

// Registry maps a stage name to the Func that handles it. Safe for
// concurrent use: Register happens once at startup, Get is called on
// every scheduler tick from potentially many worker goroutines.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Stage]Func
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.Stage]Func)}
}

// Register associates fn with stage. It returns an error if stage is
// empty, fn is nil, or a handler is already registered for stage —
// registering two handlers for one stage is always a programming
// mistake, never a valid override.
func (r *Registry) Register(stage domain.Stage, fn Func) error {
	if stage == "" {
		return fmt.Errorf("handlers: stage name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("handlers: handler for stage %q must not be nil", stage)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stage]; exists {
		return fmt.Errorf("handlers: duplicate handler registration for stage %q", stage)
	}
	r.handlers[stage] = fn
	return nil
}

// Get returns the handler registered for stage, if any.
func (r *Registry) Get(stage domain.Stage) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[stage]
	return fn, ok
}
