package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge/orchestrator/internal/adapters/ciwait"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// CIWait extracts the pr_number recorded by ORCHESTRATE and waits,
// bounded by timeout, for its checks to resolve. A red or timed-out
// result retries CI_WAIT itself rather than reworking an earlier
// stage: the fix, if any, happens outside the pipeline (a human
// pushing a follow-up commit) and the next retry simply re-polls.
func CIWait(waiter *ciwait.Waiter, repo string, timeout time.Duration) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		artifact, err := st.LatestArtifactOfKind(scope, task.ID, "pr_number")
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: fmt.Sprintf("ci_wait: no pr_number artifact recorded: %v", err)}, nil
		}

		var payload struct {
			PRNumber int `json:"pr_number"`
		}
		if err := json.Unmarshal(artifact.Data, &payload); err != nil {
			return Outcome{}, fmt.Errorf("ci_wait: decoding pr_number artifact: %w", err)
		}

		green, err := waiter.WaitForChecks(ctx, repo, payload.PRNumber, timeout)
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}
		if !green {
			return Outcome{Status: domain.RunFail, Error: "pull request checks did not pass within the wait window"}, nil
		}
		return Outcome{Status: domain.RunPass}, nil
	}
}
