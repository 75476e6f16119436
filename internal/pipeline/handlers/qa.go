package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/orchestrator/internal/adapters/roles"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pipeline"
	"github.com/flowforge/orchestrator/internal/store"
)

// qaVerdict is the structured shape a QA role's output must contain.
type qaVerdict struct {
	Result string `json:"result"`
	Report string `json:"report"`
}

// QA builds a handler for QA_BACKEND or QA_FRONTEND: it dispatches to
// role, and on a FAIL verdict sends the task back to reworkTarget
// (BACKEND or FRONTEND respectively) rather than merely retrying QA
// itself.
func QA(dispatcher roles.Dispatcher, role, artifactKind string, reworkTarget domain.Stage) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		pack, err := pipeline.BuildContextPack(st, scope, task, run.Stage)
		if err != nil {
			return Outcome{}, err
		}

		raw, err := dispatcher.Call(ctx, role, map[string]any{"context": pack})
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		data, err := json.Marshal(raw)
		if err != nil {
			return Outcome{}, fmt.Errorf("qa[%s]: encoding output: %w", role, err)
		}
		var verdict qaVerdict
		if err := json.Unmarshal(data, &verdict); err != nil {
			return Outcome{Status: domain.RunFail, Error: fmt.Sprintf("qa[%s]: malformed verdict: %v", role, err)}, nil
		}

		if verdict.Result != "PASS" {
			return Outcome{
				Status:      domain.RunFail,
				Error:       verdict.Report,
				ReworkStage: reworkTarget,
				Artifact:    &ArtifactDraft{Kind: artifactKind, Data: data},
			}, nil
		}

		return Outcome{
			Status:   domain.RunPass,
			Artifact: &ArtifactDraft{Kind: artifactKind, Data: data},
		}, nil
	}
}
