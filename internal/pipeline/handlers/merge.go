package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/orchestrator/internal/adapters/codehost"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// Merge posts a merge notice against the task's pull request. It is
// the pipeline's terminal stage: the scheduler marks the owning Task
// DONE on a PASS here instead of enqueueing a successor.
func Merge(host codehost.Client, repo string) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		artifact, err := st.LatestArtifactOfKind(scope, task.ID, "pr_number")
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: fmt.Sprintf("merge: no pr_number artifact recorded: %v", err)}, nil
		}

		var payload struct {
			PRNumber int `json:"pr_number"`
		}
		if err := json.Unmarshal(artifact.Data, &payload); err != nil {
			return Outcome{}, fmt.Errorf("merge: decoding pr_number artifact: %w", err)
		}

		notice := fmt.Sprintf("Task %d approved and ready to merge.", task.ID)
		if err := host.CommentPullRequest(ctx, repo, payload.PRNumber, notice); err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		result, err := json.Marshal(map[string]any{"merged": true, "pr_number": payload.PRNumber})
		if err != nil {
			return Outcome{}, fmt.Errorf("merge: encoding result: %w", err)
		}
		return Outcome{Status: domain.RunPass, Result: result}, nil
	}
}
