package pipeline

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/store"
)

// taskSpecKind is the artifact kind a PRODUCT-stage handler records to
// hand later stages a structured description of what to build.
const taskSpecKind = "task_spec"

// ArtifactView is an Artifact projected for role consumption: callers
// outside the store never need the row's id or creation time, only
// what kind of thing it is, which run produced it, and its payload.
type ArtifactView struct {
	Kind  string          `json:"kind"`
	Data  json.RawMessage `json:"data"`
	RunID uint            `json:"run_id"`
}

// ContextPack is the read model every stage handler builds a role
// request from: enough of a task's history to act without re-deriving
// it from scratch.
type ContextPack struct {
	TaskID   uint            `json:"task_id"`
	Title    string          `json:"title"`
	Stage    domain.Stage    `json:"stage"`
	TaskSpec map[string]any  `json:"task_spec"`
	Artifacts []ArtifactView `json:"artifacts"`
}

// BuildContextPack assembles a ContextPack for task at stage, pulling
// the most recent task_spec artifact (or a title-only default if the
// PRODUCT stage hasn't recorded one yet) and every artifact the task
// has accumulated so far, oldest first.
func BuildContextPack(st *store.Store, scope *store.Scope, task *domain.Task, stage domain.Stage) (*ContextPack, error) {
	spec := map[string]any{"title": task.Title}
	if artifact, err := st.LatestArtifactOfKind(scope, task.ID, taskSpecKind); err == nil {
		var parsed map[string]any
		if jsonErr := json.Unmarshal(artifact.Data, &parsed); jsonErr == nil {
			spec = parsed
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	rows, err := st.ArtifactsForTask(scope, task.ID)
	if err != nil {
		return nil, err
	}
	views := make([]ArtifactView, 0, len(rows))
	for _, a := range rows {
		views = append(views, ArtifactView{Kind: a.Kind, Data: json.RawMessage(a.Data), RunID: a.RunID})
	}

	return &ContextPack{
		TaskID:    task.ID,
		Title:     task.Title,
		Stage:     stage,
		TaskSpec:  spec,
		Artifacts: views,
	}, nil
}
