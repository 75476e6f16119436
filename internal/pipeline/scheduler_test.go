package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pipeline/handlers"
	"github.com/flowforge/orchestrator/internal/store"
	"github.com/flowforge/orchestrator/internal/store/testutil"
)

func newTestScheduler(t *testing.T, registry *handlers.Registry, cfg SchedulerConfig) (*Scheduler, *store.Store) {
	t.Helper()
	st := store.New(testutil.DB(t))
	log := testutil.Logger(t)
	sched := NewScheduler(st, registry, nil, log, cfg)
	return sched, st
}

func defaultCfg() SchedulerConfig {
	return SchedulerConfig{
		PollInterval: time.Second,
		MaxAttempts:  3,
		Retry:        RetryPolicy{MinBackoff: time.Millisecond, MaxBackoff: time.Millisecond, JitterFraction: 0},
		ReworkCaps:   map[string]int{},
	}
}

func createTask(t *testing.T, st *store.Store, stage domain.Stage, maxAttempts int) uint {
	t.Helper()
	var id uint
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		task, err := st.CreateTask(scope, "test task", stage, maxAttempts)
		if err != nil {
			return err
		}
		id = task.ID
		return nil
	}); err != nil {
		t.Fatalf("createTask: %v", err)
	}
	return id
}

func TestTickAdvancesOnPass(t *testing.T) {
	registry := handlers.NewRegistry()
	if err := registry.Register(domain.StageProduct, func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (handlers.Outcome, error) {
		return handlers.Outcome{Status: domain.RunPass}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	sched, st := newTestScheduler(t, registry, defaultCfg())
	taskID := createTask(t, st, domain.StageProduct, 3)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		task, err := st.GetTaskWithChildren(scope, taskID)
		if err != nil {
			return err
		}
		if len(task.Runs) != 2 {
			t.Fatalf("expected a successor run to be enqueued, got %d runs", len(task.Runs))
		}
		if task.Runs[1].Stage != domain.StageOrchestrate {
			t.Fatalf("expected ORCHESTRATE successor, got %s", task.Runs[1].Stage)
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestTickFailsTaskAfterRetriesExhausted(t *testing.T) {
	registry := handlers.NewRegistry()
	if err := registry.Register(domain.StageProduct, func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (handlers.Outcome, error) {
		return handlers.Outcome{Status: domain.RunFail, Error: "boom"}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := defaultCfg()
	cfg.MaxAttempts = 2
	// Zero backoff so the retry run is claimable on the very next tick.
	cfg.Retry = RetryPolicy{}
	sched, st := newTestScheduler(t, registry, cfg)
	taskID := createTask(t, st, domain.StageProduct, 2)

	for i := 0; i < 2; i++ {
		if err := sched.Tick(context.Background()); err != nil {
			t.Fatalf("Tick %d: %v", i, err)
		}
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		task, err := st.GetTaskWithChildren(scope, taskID)
		if err != nil {
			return err
		}
		if task.Status != domain.TaskFailed {
			t.Fatalf("expected task FAILED after exhausting retries, got %s", task.Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestTickReworksToEarlierStage(t *testing.T) {
	registry := handlers.NewRegistry()
	if err := registry.Register(domain.StageQABackend, func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (handlers.Outcome, error) {
		return handlers.Outcome{Status: domain.RunFail, Error: "qa failed", ReworkStage: domain.StageBackend}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	sched, st := newTestScheduler(t, registry, defaultCfg())
	taskID := createTask(t, st, domain.StageQABackend, 3)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		runs, err := st.RunsForStage(scope, taskID, domain.StageBackend)
		if err != nil {
			return err
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 rework run for BACKEND, got %d", len(runs))
		}
		if runs[0].Attempt != 1 {
			t.Fatalf("expected rework run to start at attempt 1, got %d", runs[0].Attempt)
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestTickSuspendsOnPending(t *testing.T) {
	registry := handlers.NewRegistry()
	if err := registry.Register(domain.StageHumanApproval, handlers.HumanApproval()); err != nil {
		t.Fatalf("register: %v", err)
	}

	sched, st := newTestScheduler(t, registry, defaultCfg())
	taskID := createTask(t, st, domain.StageHumanApproval, 3)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		task, err := st.GetTaskWithChildren(scope, taskID)
		if err != nil {
			return err
		}
		if task.Runs[0].Status != domain.RunPending {
			t.Fatalf("expected run to remain PENDING awaiting a decision, got %s", task.Runs[0].Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
