package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/orchestrator/internal/adapters/codehost"
	"github.com/flowforge/orchestrator/internal/adapters/roles"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pipeline"
	"github.com/flowforge/orchestrator/internal/store"
)

// Orchestrate dispatches to the "orchestrate" role for a work plan,
// opens the task's branch and pull request on the code-hosting
// service, and records the pr_number artifact CI_WAIT and MERGE read.
func Orchestrate(dispatcher roles.Dispatcher, host codehost.Client, repo string) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		pack, err := pipeline.BuildContextPack(st, scope, task, run.Stage)
		if err != nil {
			return Outcome{}, err
		}

		plan, err := dispatcher.Call(ctx, "orchestrate", map[string]any{"context": pack})
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		branch := fmt.Sprintf("task-%d", task.ID)
		if err := host.CreateBranch(ctx, repo, branch, "main"); err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		prNumber, err := host.CreatePullRequest(ctx, repo, branch, task.Title, fmt.Sprintf("Automated pipeline for task %d", task.ID))
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		planData, err := json.Marshal(plan)
		if err != nil {
			return Outcome{}, fmt.Errorf("orchestrate: encoding plan: %w", err)
		}
		prData, err := json.Marshal(map[string]any{"pr_number": prNumber, "branch": branch})
		if err != nil {
			return Outcome{}, fmt.Errorf("orchestrate: encoding pr artifact: %w", err)
		}

		if _, err := st.CreateArtifact(scope, task.ID, run.ID, "plan", planData); err != nil {
			return Outcome{}, err
		}

		return Outcome{
			Status:   domain.RunPass,
			Artifact: &ArtifactDraft{Kind: "pr_number", Data: prData},
		}, nil
	}
}
