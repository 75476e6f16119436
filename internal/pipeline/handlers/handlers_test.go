package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/flowforge/orchestrator/internal/adapters/ciwait"
	"github.com/flowforge/orchestrator/internal/adapters/codehost"
	"github.com/flowforge/orchestrator/internal/adapters/secrets"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
	"github.com/flowforge/orchestrator/internal/store/testutil"
)

type fakeDispatcher struct {
	out map[string]any
	err error
}

func (f *fakeDispatcher) Call(ctx context.Context, role string, input map[string]any) (map[string]any, error) {
	return f.out, f.err
}

type fakeCodehost struct {
	status codehost.PRStatus
}

func (f *fakeCodehost) CreateBranch(ctx context.Context, repo, branch, fromRef string) error {
	return nil
}
func (f *fakeCodehost) CreatePullRequest(ctx context.Context, repo, branch, title, body string) (int, error) {
	return 7, nil
}
func (f *fakeCodehost) CommentPullRequest(ctx context.Context, repo string, prNumber int, body string) error {
	return nil
}
func (f *fakeCodehost) CheckPRStatus(ctx context.Context, repo string, prNumber int) (codehost.PRStatus, error) {
	return f.status, nil
}

func seedTask(t *testing.T, st *store.Store, stage domain.Stage) (*domain.Task, *domain.Run) {
	t.Helper()
	var task *domain.Task
	var run *domain.Run
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		var err error
		task, err = st.CreateTask(scope, "handler task", stage, 3)
		if err != nil {
			return err
		}
		run, err = st.ClaimNextPendingRun(scope)
		return err
	}); err != nil {
		t.Fatalf("seedTask: %v", err)
	}
	return task, run
}

func TestQAHandlerFailReworksToBackend(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageQABackend)

	fn := QA(&fakeDispatcher{out: map[string]any{"result": "FAIL", "report": "unit tests broke"}}, "qa_backend", "qa_backend_report", domain.StageBackend)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunFail {
			t.Fatalf("expected FAIL, got %s", outcome.Status)
		}
		if outcome.ReworkStage != domain.StageBackend {
			t.Fatalf("expected rework to BACKEND, got %s", outcome.ReworkStage)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestQAHandlerPass(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageQABackend)

	fn := QA(&fakeDispatcher{out: map[string]any{"result": "PASS", "report": "all good"}}, "qa_backend", "qa_backend_report", domain.StageBackend)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPass {
			t.Fatalf("expected PASS, got %s", outcome.Status)
		}
		if outcome.Artifact == nil || outcome.Artifact.Kind != "qa_backend_report" {
			t.Fatalf("expected a qa_backend_report artifact draft")
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestSecurityHandlerFindsSecret(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, backendRun := seedTask(t, st, domain.StageBackend)

	var securityRun *domain.Run
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		var err error
		if _, err := st.CreateArtifact(scope, task.ID, backendRun.ID, "backend_diff", []byte(`const key = "sk-ABCDEFGHIJK"`)); err != nil {
			return err
		}
		securityRun, err = st.CreateRun(scope, task.ID, domain.StageSecurity, 1, 3)
		return err
	}); err != nil {
		t.Fatalf("seed backend diff: %v", err)
	}

	fn := Security(secrets.New())

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, securityRun)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunFail {
			t.Fatalf("expected FAIL due to leaked secret, got %s", outcome.Status)
		}
		if outcome.ReworkStage != domain.StageBackend {
			t.Fatalf("expected rework to BACKEND, got %s", outcome.ReworkStage)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestGateRecordsArtifactOnBothBranches(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageBackendGate)

	fn := BackendGate()
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunFail {
			t.Fatalf("expected FAIL while BACKEND/QA_BACKEND/SECURITY have never run, got %s", outcome.Status)
		}
		if outcome.Artifact == nil || outcome.Artifact.Kind != "Gate-BACKEND_GATE" {
			t.Fatalf("expected a Gate-BACKEND_GATE artifact draft on the fail branch")
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		for _, stage := range []domain.Stage{domain.StageBackend, domain.StageQABackend, domain.StageSecurity} {
			r, err := st.CreateRun(scope, task.ID, stage, 1, 3)
			if err != nil {
				return err
			}
			if err := st.UpdateRunStatus(scope, r, domain.RunPass, ""); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed passing inputs: %v", err)
	}

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPass {
			t.Fatalf("expected PASS once all inputs pass, got %s", outcome.Status)
		}
		if outcome.Artifact == nil || outcome.Artifact.Kind != "Gate-BACKEND_GATE" {
			t.Fatalf("expected a Gate-BACKEND_GATE artifact draft on the pass branch")
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestHumanApprovalPendingWithoutDecision(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageHumanApproval)

	fn := HumanApproval()
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPending {
			t.Fatalf("expected PENDING with no decision recorded, got %s", outcome.Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestHumanApprovalPassesOnApprove(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageHumanApproval)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		_, err := st.CreateDecision(scope, task.ID, domain.DecisionApprove, "ship it")
		return err
	}); err != nil {
		t.Fatalf("seed decision: %v", err)
	}

	fn := HumanApproval()
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPass {
			t.Fatalf("expected PASS after APPROVE, got %s", outcome.Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestCIWaitPassesOnGreen(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageCIWait)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		_, err := st.CreateArtifact(scope, task.ID, run.ID, "pr_number", []byte(`{"pr_number":7}`))
		return err
	}); err != nil {
		t.Fatalf("seed pr artifact: %v", err)
	}

	waiter := ciwait.New(&fakeCodehost{status: codehost.StatusGreen}, time.Millisecond)
	fn := CIWait(waiter, "acme/widgets", 50*time.Millisecond)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPass {
			t.Fatalf("expected PASS on green checks, got %s", outcome.Status)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}

func TestMergeHandlerPostsComment(t *testing.T) {
	st := store.New(testutil.DB(t))
	task, run := seedTask(t, st, domain.StageMerge)

	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		_, err := st.CreateArtifact(scope, task.ID, run.ID, "pr_number", []byte(`{"pr_number":7}`))
		return err
	}); err != nil {
		t.Fatalf("seed pr artifact: %v", err)
	}

	fn := Merge(&fakeCodehost{}, "acme/widgets")
	if err := st.WithinScope(context.Background(), func(scope *store.Scope) error {
		outcome, err := fn(context.Background(), st, scope, task, run)
		if err != nil {
			return err
		}
		if outcome.Status != domain.RunPass {
			t.Fatalf("expected PASS, got %s", outcome.Status)
		}
		var result struct {
			Merged   bool `json:"merged"`
			PRNumber int  `json:"pr_number"`
		}
		if err := json.Unmarshal(outcome.Result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if !result.Merged || result.PRNumber != 7 {
			t.Fatalf("expected {merged:true, pr_number:7}, got %+v", result)
		}
		return nil
	}); err != nil {
		t.Fatalf("run handler: %v", err)
	}
}
