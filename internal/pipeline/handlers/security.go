package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/flowforge/orchestrator/internal/adapters/secrets"
	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// Security scans the most recent backend diff artifact for leaked
// credentials. Any hit sends the task back to BACKEND for rework
// rather than merely retrying SECURITY, since the fix lives upstream.
func Security(scanner *secrets.Scanner) Func {
	return func(ctx context.Context, st *store.Store, scope *store.Scope, task *domain.Task, run *domain.Run) (Outcome, error) {
		artifact, err := st.LatestArtifactOfKind(scope, task.ID, "backend_diff")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{Status: domain.RunPass}, nil
		}
		if err != nil {
			return Outcome{}, err
		}

		issues := scanner.Scan(string(artifact.Data))
		data, err := json.Marshal(map[string]any{"issues": issues})
		if err != nil {
			return Outcome{}, fmt.Errorf("security: encoding report: %w", err)
		}

		if len(issues) > 0 {
			return Outcome{
				Status:      domain.RunFail,
				Error:       fmt.Sprintf("secret scanner found %d issue(s)", len(issues)),
				ReworkStage: domain.StageBackend,
				Artifact:    &ArtifactDraft{Kind: "security_report", Data: data},
			}, nil
		}

		return Outcome{
			Status:   domain.RunPass,
			Artifact: &ArtifactDraft{Kind: "security_report", Data: data},
		}, nil
	}
}
