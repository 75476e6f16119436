package pipeline

import (
	"errors"

	"gorm.io/gorm"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// GateVerdict is a gate's pass/fail decision plus, on failure, the
// earliest stage in Order that needs to be reworked.
type GateVerdict struct {
	Passed      bool
	ReworkStage domain.Stage
	Reason      string
}

var backendGateInputs = []domain.Stage{domain.StageBackend, domain.StageQABackend, domain.StageSecurity}
var frontendGateInputs = []domain.Stage{domain.StageFrontend, domain.StageQAFrontend}

// EvaluateBackendGate passes iff the latest BACKEND, QA_BACKEND, and
// SECURITY runs are all PASS.
func EvaluateBackendGate(st *store.Store, scope *store.Scope, taskID uint) (GateVerdict, error) {
	return evaluateAllLatestPass(st, scope, taskID, backendGateInputs)
}

// EvaluateFrontendGate passes iff the latest FRONTEND and QA_FRONTEND
// runs are both PASS.
func EvaluateFrontendGate(st *store.Store, scope *store.Scope, taskID uint) (GateVerdict, error) {
	return evaluateAllLatestPass(st, scope, taskID, frontendGateInputs)
}

// EvaluateDocsGate passes iff any DOCS run (not necessarily the latest)
// has ever recorded PASS.
func EvaluateDocsGate(st *store.Store, scope *store.Scope, taskID uint) (GateVerdict, error) {
	runs, err := st.RunsForStage(scope, taskID, domain.StageDocs)
	if err != nil {
		return GateVerdict{}, err
	}
	for _, r := range runs {
		if r.Status == domain.RunPass {
			return GateVerdict{Passed: true}, nil
		}
	}
	return GateVerdict{Passed: false, ReworkStage: domain.StageDocs, Reason: "no DOCS run has passed yet"}, nil
}

func evaluateAllLatestPass(st *store.Store, scope *store.Scope, taskID uint, stages []domain.Stage) (GateVerdict, error) {
	for _, stage := range stages {
		run, err := st.LatestRunForStage(scope, taskID, stage)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return GateVerdict{Passed: false, ReworkStage: stage, Reason: "stage has never run"}, nil
		}
		if err != nil {
			return GateVerdict{}, err
		}
		if run.Status != domain.RunPass {
			return GateVerdict{Passed: false, ReworkStage: stage, Reason: "latest run for stage did not pass"}, nil
		}
	}
	return GateVerdict{Passed: true}, nil
}
