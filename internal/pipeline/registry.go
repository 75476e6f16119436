// Package pipeline implements the stage order, gate predicates, and
// scheduler that drive a Task through its Runs.
package pipeline

import "github.com/flowforge/orchestrator/internal/domain"

// Order is the fixed stage sequence every Task moves through. A
// stage's successor is simply the next entry in this slice; MERGE has
// no successor and instead marks the owning Task DONE.
var Order = []domain.Stage{
	domain.StageProduct,
	domain.StageOrchestrate,
	domain.StageBackend,
	domain.StageQABackend,
	domain.StageSecurity,
	domain.StageBackendGate,
	domain.StageFrontend,
	domain.StageQAFrontend,
	domain.StageFrontendGate,
	domain.StageDocs,
	domain.StageDocsGate,
	domain.StageCIWait,
	domain.StageHumanApproval,
	domain.StageMerge,
}

var indexOf = func() map[domain.Stage]int {
	m := make(map[domain.Stage]int, len(Order))
	for i, s := range Order {
		m[s] = i
	}
	return m
}()

// NextStageAfter returns the stage following s, or ("", false) if s is
// the terminal stage (MERGE) or not part of the fixed order at all.
func NextStageAfter(s domain.Stage) (domain.Stage, bool) {
	i, ok := indexOf[s]
	if !ok || i+1 >= len(Order) {
		return "", false
	}
	return Order[i+1], true
}

// IndexOf returns s's position in Order, or -1 if s is not a stage in
// the fixed pipeline (gates included).
func IndexOf(s domain.Stage) int {
	if i, ok := indexOf[s]; ok {
		return i
	}
	return -1
}

// IsGate reports whether s is one of the three gate stages, which pass
// or fail by inspecting prior runs rather than invoking an external
// role or service.
func IsGate(s domain.Stage) bool {
	switch s {
	case domain.StageBackendGate, domain.StageFrontendGate, domain.StageDocsGate:
		return true
	default:
		return false
	}
}
