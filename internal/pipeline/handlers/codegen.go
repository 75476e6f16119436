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

// CodeGen builds a handler for a role that produces code or docs for
// one side of the pipeline (BACKEND, FRONTEND, DOCS). It shares a
// single shape across all three stages since each is "dispatch to a
// role, record the result as an artifact" with nothing stage-specific
// beyond the role name and artifact kind.
func CodeGen(dispatcher roles.Dispatcher, role, artifactKind string) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		pack, err := pipeline.BuildContextPack(st, scope, task, run.Stage)
		if err != nil {
			return Outcome{}, err
		}

		out, err := dispatcher.Call(ctx, role, map[string]any{"context": pack})
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return Outcome{}, fmt.Errorf("codegen[%s]: encoding output: %w", role, err)
		}

		return Outcome{
			Status:   domain.RunPass,
			Artifact: &ArtifactDraft{Kind: artifactKind, Data: data},
		}, nil
	}
}
