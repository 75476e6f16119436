// Package domain holds the persisted pipeline entities: Task, Run,
// Artifact, and Decision. All four share an autogenerated integer
// identity column and are migrated together by internal/store.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Stage names the pipeline's fixed stage order. Handlers, the gate
// predicates, and the scheduler's successor lookup all key off these
// string constants rather than an enum type so that stored rows remain
// human-readable.
type Stage string

const (
	StageProduct        Stage = "PRODUCT"
	StageOrchestrate     Stage = "ORCHESTRATE"
	StageBackend         Stage = "BACKEND"
	StageQABackend       Stage = "QA_BACKEND"
	StageSecurity        Stage = "SECURITY"
	StageBackendGate     Stage = "BACKEND_GATE"
	StageFrontend        Stage = "FRONTEND"
	StageQAFrontend      Stage = "QA_FRONTEND"
	StageFrontendGate    Stage = "FRONTEND_GATE"
	StageDocs            Stage = "DOCS"
	StageDocsGate        Stage = "DOCS_GATE"
	StageCIWait          Stage = "CI_WAIT"
	StageHumanApproval   Stage = "HUMAN_APPROVAL"
	StageMerge           Stage = "MERGE"
)

// RunStatus is the lifecycle of a single Run attempt.
type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunPass    RunStatus = "PASS"
	RunFail    RunStatus = "FAIL"
)

// TaskStatus is the lifecycle of the owning Task.
type TaskStatus string

const (
	TaskActive TaskStatus = "ACTIVE"
	TaskDone   TaskStatus = "DONE"
	TaskFailed TaskStatus = "FAILED"
)

// DecisionKind is the human verdict recorded against a Task.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "APPROVE"
	DecisionReject  DecisionKind = "REJECT"
)

// Task is the top-level unit of work carried through the stage order.
// Runs, Artifacts, and Decisions all cascade-delete with their Task.
type Task struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Title     string     `gorm:"not null" json:"title"`
	Status    TaskStatus `gorm:"not null;default:ACTIVE;index" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Runs      []Run      `gorm:"constraint:OnDelete:CASCADE" json:"runs,omitempty"`
	Artifacts []Artifact `gorm:"constraint:OnDelete:CASCADE" json:"artifacts,omitempty"`
	Decisions []Decision `gorm:"constraint:OnDelete:CASCADE" json:"decisions,omitempty"`
}

func (Task) TableName() string { return "tasks" }

// Run is one attempt of one stage for a Task. Invariant R1: at most one
// RUNNING row exists per (task_id, stage) at a time, enforced by the
// Store claiming runs under a row lock rather than by a DB constraint.
type Run struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TaskID      uint           `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"task_id"`
	Stage       Stage          `gorm:"not null;index" json:"stage"`
	Attempt     int            `gorm:"not null;default:1" json:"attempt"`
	MaxAttempts int            `gorm:"not null;default:3" json:"max_attempts"`
	Status      RunStatus      `gorm:"not null;default:PENDING;index" json:"status"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	Result      datatypes.JSON `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RunAfter    *time.Time     `gorm:"index" json:"run_after,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Run) TableName() string { return "runs" }

// Artifact is a piece of recorded stage output, addressed by the kind
// of payload it carries (e.g. "task_spec", "pr_number", "qa_backend_report").
type Artifact struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	TaskID    uint           `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"task_id"`
	RunID     uint           `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"run_id"`
	Kind      string         `gorm:"not null;index" json:"kind"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (Artifact) TableName() string { return "artifacts" }

// Decision is a human verdict against a Task, not any single Run.
// Invariant D1: only the newest Decision for a Task is authoritative;
// older ones are kept as history.
type Decision struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	TaskID    uint         `gorm:"not null;index;constraint:OnDelete:CASCADE" json:"task_id"`
	Kind      DecisionKind `gorm:"not null" json:"kind"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt time.Time    `gorm:"index" json:"created_at"`
}

func (Decision) TableName() string { return "decisions" }
