package store

import (
	"context"
	"errors"
	"testing"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.DB(t))
}

func TestCreateTaskSeedsEntryRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var taskID uint
	if err := s.WithinScope(ctx, func(scope *Scope) error {
		task, err := s.CreateTask(scope, "build the widget", domain.StageProduct, 3)
		if err != nil {
			return err
		}
		taskID = task.ID
		return nil
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := s.WithinScope(ctx, func(scope *Scope) error {
		task, err := s.GetTaskWithChildren(scope, taskID)
		if err != nil {
			return err
		}
		if len(task.Runs) != 1 {
			t.Fatalf("expected 1 seeded run, got %d", len(task.Runs))
		}
		if task.Runs[0].Stage != domain.StageProduct {
			t.Fatalf("expected entry stage PRODUCT, got %s", task.Runs[0].Stage)
		}
		if task.Runs[0].Status != domain.RunPending {
			t.Fatalf("expected PENDING status, got %s", task.Runs[0].Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("GetTaskWithChildren: %v", err)
	}
}

func TestClaimNextPendingRunOrdersByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var taskID uint
	if err := s.WithinScope(ctx, func(scope *Scope) error {
		task, err := s.CreateTask(scope, "ordering task", domain.StageProduct, 3)
		if err != nil {
			return err
		}
		taskID = task.ID
		if _, err := s.CreateRun(scope, taskID, domain.StageOrchestrate, 1, 3); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var first *domain.Run
	if err := s.WithinScope(ctx, func(scope *Scope) error {
		run, err := s.ClaimNextPendingRun(scope)
		if err != nil {
			return err
		}
		first = run
		return nil
	}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Stage != domain.StageProduct {
		t.Fatalf("expected PRODUCT claimed first, got %s", first.Stage)
	}
	if first.Status != domain.RunRunning {
		t.Fatalf("expected claimed run to be RUNNING, got %s", first.Status)
	}

	if err := s.WithinScope(ctx, func(scope *Scope) error {
		run, err := s.ClaimNextPendingRun(scope)
		if err != nil {
			return err
		}
		if run.Stage != domain.StageOrchestrate {
			t.Fatalf("expected ORCHESTRATE claimed second, got %s", run.Stage)
		}
		return nil
	}); err != nil {
		t.Fatalf("second claim: %v", err)
	}

	err := s.WithinScope(ctx, func(scope *Scope) error {
		_, err := s.ClaimNextPendingRun(scope)
		return err
	})
	if !errors.Is(err, ErrNoWork) {
		t.Fatalf("expected ErrNoWork once queue is drained, got %v", err)
	}
}

func TestArtifactAndDecisionLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var taskID, runID uint
	if err := s.WithinScope(ctx, func(scope *Scope) error {
		task, err := s.CreateTask(scope, "artifact task", domain.StageHumanApproval, 3)
		if err != nil {
			return err
		}
		taskID = task.ID
		run, err := s.ClaimNextPendingRun(scope)
		if err != nil {
			return err
		}
		runID = run.ID
		if _, err := s.CreateArtifact(scope, taskID, runID, "pr_number", []byte(`{"pr_number":42}`)); err != nil {
			return err
		}
		if _, err := s.CreateDecision(scope, taskID, domain.DecisionApprove, "looks good"); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.WithinScope(ctx, func(scope *Scope) error {
		artifact, err := s.LatestArtifactOfKind(scope, taskID, "pr_number")
		if err != nil {
			return err
		}
		if string(artifact.Data) != `{"pr_number":42}` {
			t.Fatalf("unexpected artifact payload: %s", artifact.Data)
		}

		decision, err := s.LatestDecisionForTask(scope, taskID)
		if err != nil {
			return err
		}
		if decision.Kind != domain.DecisionApprove {
			t.Fatalf("expected APPROVE decision, got %s", decision.Kind)
		}
		return nil
	}); err != nil {
		t.Fatalf("lookups: %v", err)
	}
}

// TestDecisionRecordableBeforeHumanApprovalRunExists covers the
// original system's behavior: Decision is task-scoped, so an operator
// can approve or reject before the pipeline has even reached
// HUMAN_APPROVAL and created its run.
func TestDecisionRecordableBeforeHumanApprovalRunExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var taskID uint
	if err := s.WithinScope(ctx, func(scope *Scope) error {
		task, err := s.CreateTask(scope, "pre-approval task", domain.StageProduct, 3)
		if err != nil {
			return err
		}
		taskID = task.ID
		_, err = s.CreateDecision(scope, taskID, domain.DecisionApprove, "pre-approved")
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.WithinScope(ctx, func(scope *Scope) error {
		decision, err := s.LatestDecisionForTask(scope, taskID)
		if err != nil {
			return err
		}
		if decision.Kind != domain.DecisionApprove {
			t.Fatalf("expected APPROVE decision, got %s", decision.Kind)
		}
		return nil
	}); err != nil {
		t.Fatalf("lookups: %v", err)
	}
}
