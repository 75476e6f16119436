package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pipeline/handlers"
	"github.com/flowforge/orchestrator/internal/platform/logger"
	"github.com/flowforge/orchestrator/internal/store"
)

// SchedulerConfig tunes retry/rework behavior and polling cadence.
type SchedulerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	Retry        RetryPolicy
	ReworkCaps   map[string]int
}

// Scheduler claims one Run per tick, invokes its stage handler, and
// commits the resulting status transition — enqueueing a successor,
// retry, or rework run as appropriate — all inside a single
// transaction per tick, grounded on the teacher's ticker-driven worker
// loop with panic recovery.
type Scheduler struct {
	store     *store.Store
	registry  *handlers.Registry
	publisher *store.Publisher
	log       *logger.Logger
	cfg       SchedulerConfig
}

// NewScheduler builds a Scheduler. publisher may be nil; the scheduler
// never sends notifications through it, and early wake-ups reach it only
// through the wake channel passed to Run.
func NewScheduler(st *store.Store, registry *handlers.Registry, publisher *store.Publisher, log *logger.Logger, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{store: st, registry: registry, publisher: publisher, log: log, cfg: cfg}
}

// Run polls forever, ticking the scheduler on every interval and on
// every LISTEN/NOTIFY wake, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, wake <-chan struct{}) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tickSafely(ctx)
		case <-wake:
			s.tickSafely(ctx)
		}
	}
}

// tickSafely runs Tick, recovering from any panic a handler raises so
// one bad stage invocation never kills the scheduler loop.
func (s *Scheduler) tickSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: recovered from panic", "panic", r)
		}
	}()
	if err := s.Tick(ctx); err != nil && !errors.Is(err, store.ErrNoWork) {
		s.log.Error("scheduler: tick failed", "error", err)
	}
}

// Tick claims the oldest claimable run, invokes its handler, and
// commits the resulting transition. Returns store.ErrNoWork when there
// was nothing to claim.
func (s *Scheduler) Tick(ctx context.Context) error {
	return s.store.WithinScope(ctx, func(scope *store.Scope) error {
		run, err := s.store.ClaimNextPendingRun(scope)
		if errors.Is(err, store.ErrNoWork) {
			return store.ErrNoWork
		}
		if err != nil {
			return err
		}

		task, err := s.store.GetTaskWithChildren(scope, run.TaskID)
		if err != nil {
			return err
		}

		log := s.log.With("task_id", task.ID, "stage", string(run.Stage), "attempt", run.Attempt)

		fn, ok := s.registry.Get(run.Stage)
		if !ok {
			log.Error("scheduler: no handler registered for stage")
			if err := s.store.UpdateRunStatus(scope, run, domain.RunFail, "no handler registered for stage"); err != nil {
				return err
			}
			return s.spawnRetryOrFailTask(scope, task, run)
		}

		// A handler panic becomes a FAIL outcome, so the run is failed and
		// retried like any other failure instead of rolling back the tick.
		outcome, err := func() (out handlers.Outcome, err error) {
			defer func() {
				if r := recover(); r != nil {
					out = handlers.Outcome{Status: domain.RunFail, Error: fmt.Sprintf("handler panicked: %v", r)}
					err = nil
				}
			}()
			return fn(ctx, s.store, scope, task, run)
		}()
		if err != nil {
			return err
		}

		if outcome.Artifact != nil {
			if _, err := s.store.CreateArtifact(scope, task.ID, run.ID, outcome.Artifact.Kind, outcome.Artifact.Data); err != nil {
				return err
			}
		}

		switch outcome.Status {
		case domain.RunPass:
			log.Info("scheduler: run passed")
			if err := s.store.UpdateRunStatus(scope, run, domain.RunPass, ""); err != nil {
				return err
			}
			if outcome.Result != nil {
				if err := s.store.UpdateRunResult(scope, run, outcome.Result); err != nil {
					return err
				}
			}
			return s.advance(scope, task, run)

		case domain.RunFail:
			log.Warn("scheduler: run failed", "error", outcome.Error)
			if err := s.store.UpdateRunStatus(scope, run, domain.RunFail, outcome.Error); err != nil {
				return err
			}
			if outcome.ReworkStage != "" {
				return s.spawnReworkOrFailTask(scope, task, run, outcome.ReworkStage)
			}
			return s.spawnRetryOrFailTask(scope, task, run)

		case domain.RunPending:
			log.Info("scheduler: run suspended awaiting external decision")
			return s.store.UpdateRunStatus(scope, run, domain.RunPending, "")

		default:
			return s.store.UpdateRunStatus(scope, run, domain.RunFail, "handler returned an unrecognized status")
		}
	})
}

// advance enqueues the stage after run.Stage, or marks the task DONE
// if run.Stage was the terminal MERGE stage.
func (s *Scheduler) advance(scope *store.Scope, task *domain.Task, run *domain.Run) error {
	next, ok := NextStageAfter(run.Stage)
	if !ok {
		return s.store.SetTaskStatus(scope, task.ID, domain.TaskDone)
	}
	_, err := s.store.CreateRun(scope, task.ID, next, 1, s.cfg.MaxAttempts)
	return err
}

// spawnRetryOrFailTask re-enqueues the same stage with attempt+1, or
// fails the task once the run's own MaxAttempts is exhausted.
func (s *Scheduler) spawnRetryOrFailTask(scope *store.Scope, task *domain.Task, run *domain.Run) error {
	if run.Attempt >= run.MaxAttempts {
		s.log.Warn("scheduler: task failed, retries exhausted", "task_id", task.ID, "stage", string(run.Stage))
		return s.store.SetTaskStatus(scope, task.ID, domain.TaskFailed)
	}
	runAfter := time.Now().Add(ComputeBackoff(s.cfg.Retry, run.Attempt+1))
	_, err := s.store.CreateRunAfter(scope, task.ID, run.Stage, run.Attempt+1, run.MaxAttempts, runAfter)
	return err
}

// spawnReworkOrFailTask re-enqueues reworkStage at attempt 1, capped by
// the total number of runs ever recorded for that stage — counted
// across every rework cycle, not just the immediate failure's attempt
// counter — resolving the ambiguity the original source left between
// per-attempt retry limits and cross-cycle rework limits.
func (s *Scheduler) spawnReworkOrFailTask(scope *store.Scope, task *domain.Task, failedRun *domain.Run, reworkStage domain.Stage) error {
	existing, err := s.store.RunsForStage(scope, task.ID, reworkStage)
	if err != nil {
		return err
	}

	cap := s.cfg.MaxAttempts
	if c, ok := s.cfg.ReworkCaps[string(reworkStage)]; ok && c > 0 {
		cap = c
	}
	if len(existing) >= cap {
		s.log.Warn("scheduler: task failed, rework cap exhausted", "task_id", task.ID, "rework_stage", string(reworkStage))
		return s.store.SetTaskStatus(scope, task.ID, domain.TaskFailed)
	}

	runAfter := time.Now().Add(ComputeBackoff(s.cfg.Retry, len(existing)+1))
	_, err = s.store.CreateRunAfter(scope, task.ID, reworkStage, 1, s.cfg.MaxAttempts, runAfter)
	return err
}
