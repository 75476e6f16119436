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

// Product dispatches to the "product" role to turn a task's title into
// a structured task_spec artifact every later stage reads from.
func Product(dispatcher roles.Dispatcher) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		pack, err := pipeline.BuildContextPack(st, scope, task, run.Stage)
		if err != nil {
			return Outcome{}, err
		}

		out, err := dispatcher.Call(ctx, "product", map[string]any{"context": pack})
		if err != nil {
			return Outcome{Status: domain.RunFail, Error: err.Error()}, nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			return Outcome{}, fmt.Errorf("product: encoding task spec: %w", err)
		}

		return Outcome{
			Status:   domain.RunPass,
			Artifact: &ArtifactDraft{Kind: "task_spec", Data: data},
		}, nil
	}
}
