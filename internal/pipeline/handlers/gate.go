package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pipeline"
	"github.com/flowforge/orchestrator/internal/store"
)

// gateEvaluator is satisfied by the pipeline package's three
// Evaluate*Gate functions.
type gateEvaluator func(st *store.Store, scope *store.Scope, taskID uint) (pipeline.GateVerdict, error)

// Gate wraps a gate-evaluation function as a stage handler. A gate
// never calls an external role: it only inspects runs already
// recorded for the stages feeding into it. It always records a
// "Gate-<NAME>" artifact carrying {gate, passed, details}, on both the
// pass and fail path.
func Gate(evaluate gateEvaluator) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		verdict, err := evaluate(st, scope, task.ID)
		if err != nil {
			return Outcome{}, err
		}

		data, err := json.Marshal(map[string]any{
			"gate":    string(run.Stage),
			"passed":  verdict.Passed,
			"details": verdict.Reason,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("gate: encoding report: %w", err)
		}
		artifact := &ArtifactDraft{Kind: "Gate-" + string(run.Stage), Data: data}

		if !verdict.Passed {
			return Outcome{
				Status:      domain.RunFail,
				Error:       verdict.Reason,
				ReworkStage: verdict.ReworkStage,
				Artifact:    artifact,
			}, nil
		}
		return Outcome{Status: domain.RunPass, Artifact: artifact}, nil
	}
}

// BackendGate evaluates EvaluateBackendGate as a stage handler.
func BackendGate() Func { return Gate(pipeline.EvaluateBackendGate) }

// FrontendGate evaluates EvaluateFrontendGate as a stage handler.
func FrontendGate() Func { return Gate(pipeline.EvaluateFrontendGate) }

// DocsGate evaluates EvaluateDocsGate as a stage handler.
func DocsGate() Func { return Gate(pipeline.EvaluateDocsGate) }
