package pipeline

import (
	"testing"

	"github.com/flowforge/orchestrator/internal/domain"
)

func TestNextStageAfterFollowsFixedOrder(t *testing.T) {
	next, ok := NextStageAfter(domain.StageProduct)
	if !ok || next != domain.StageOrchestrate {
		t.Fatalf("expected ORCHESTRATE after PRODUCT, got %s (ok=%v)", next, ok)
	}
}

func TestNextStageAfterMergeHasNoSuccessor(t *testing.T) {
	if _, ok := NextStageAfter(domain.StageMerge); ok {
		t.Fatalf("expected MERGE to be terminal")
	}
}

func TestIsGate(t *testing.T) {
	for _, stage := range []domain.Stage{domain.StageBackendGate, domain.StageFrontendGate, domain.StageDocsGate} {
		if !IsGate(stage) {
			t.Fatalf("expected %s to be a gate stage", stage)
		}
	}
	if IsGate(domain.StageBackend) {
		t.Fatalf("BACKEND is not a gate stage")
	}
}
