package handlers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// HumanApproval suspends the run until a Decision is recorded against
// the task (Decision is task-scoped, not run-scoped, per invariant D1:
// only the newest Decision for a Task is authoritative). No decision
// yet returns PENDING, which the scheduler leaves as is without
// enqueueing a successor. A REJECT keeps the run in the HUMAN_APPROVAL
// stage (retry, not rework) so a later APPROVE can still land against
// the same run's successors.
func HumanApproval() Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		decision, err := st.LatestDecisionForTask(scope, task.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{Status: domain.RunPending}, nil
		}
		if err != nil {
			return Outcome{}, err
		}

		switch decision.Kind {
		case domain.DecisionApprove:
			return Outcome{Status: domain.RunPass}, nil
		case domain.DecisionReject:
			return Outcome{Status: domain.RunFail, Error: decision.Comment}, nil
		default:
			return Outcome{Status: domain.RunPending}, nil
		}
	}
}
