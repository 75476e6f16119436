// Package store persists Tasks, Runs, Artifacts, and Decisions and
// provides the transactional claim primitive the scheduler relies on
// for exclusive work assignment.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/pkg/dbctx"
)

// ErrNoWork is returned by ClaimNextPendingRun when no PENDING run is
// available to claim. Callers treat this as a normal "nothing to do"
// outcome, not a failure.
var ErrNoWork = errors.New("store: no pending run available")

// Scope is a transaction-scoped handle every Store method operates
// through. Creating one (via WithinScope) opens a database transaction;
// returning a non-nil error from the WithinScope callback rolls it
// back, otherwise it is committed on return.
type Scope struct {
	dbctx.Context
}

// Store is the persistence contract the scheduler, handlers, and HTTP
// layer use. All mutation happens through a Scope obtained from
// WithinScope so that a tick's claim, handler invocation, and status
// transition commit atomically.
type Store struct {
	db *gorm.DB
}

// New wraps an already-migrated *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithinScope runs fn inside a single database transaction.
func (s *Store) WithinScope(ctx context.Context, fn func(scope *Scope) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Scope{dbctx.Context{Ctx: ctx, Tx: tx}})
	})
}

// CreateTask inserts a new Task and its first PENDING run for the
// pipeline's entry stage.
func (s *Store) CreateTask(scope *Scope, title string, entryStage domain.Stage, maxAttempts int) (*domain.Task, error) {
	task := &domain.Task{Title: title, Status: domain.TaskActive}
	if err := scope.Tx.Create(task).Error; err != nil {
		return nil, fmt.Errorf("store: creating task: %w", err)
	}
	if _, err := s.CreateRun(scope, task.ID, entryStage, 1, maxAttempts); err != nil {
		return nil, err
	}
	return task, nil
}

// CreateRun inserts a new PENDING run for a task's stage and attempt,
// claimable as soon as the scheduler next looks.
func (s *Store) CreateRun(scope *Scope, taskID uint, stage domain.Stage, attempt, maxAttempts int) (*domain.Run, error) {
	return s.CreateRunAfter(scope, taskID, stage, attempt, maxAttempts, time.Time{})
}

// CreateRunAfter inserts a new PENDING run that is only claimable once
// runAfter has passed, used for backoff-delayed retries and reworks. A
// zero runAfter means claimable immediately.
func (s *Store) CreateRunAfter(scope *Scope, taskID uint, stage domain.Stage, attempt, maxAttempts int, runAfter time.Time) (*domain.Run, error) {
	run := &domain.Run{
		TaskID:      taskID,
		Stage:       stage,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Status:      domain.RunPending,
	}
	if !runAfter.IsZero() {
		run.RunAfter = &runAfter
	}
	if err := scope.Tx.Create(run).Error; err != nil {
		return nil, fmt.Errorf("store: creating run: %w", err)
	}
	return run, nil
}

// ClaimNextPendingRun locks and claims the oldest PENDING run, flipping
// it to RUNNING inside the caller's transaction. Uses SELECT ... FOR
// UPDATE SKIP LOCKED so concurrent schedulers never claim the same row
// twice: a locked row is simply invisible to a competing claim rather
// than blocking it.
func (s *Store) ClaimNextPendingRun(scope *Scope) (*domain.Run, error) {
	var run domain.Run
	err := scope.Tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND (run_after IS NULL OR run_after <= ?)", domain.RunPending, time.Now()).
		Order("created_at ASC, id ASC").
		Limit(1).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoWork
	}
	if err != nil {
		return nil, fmt.Errorf("store: claiming next pending run: %w", err)
	}

	run.Status = domain.RunRunning
	if err := scope.Tx.Model(&run).Update("status", domain.RunRunning).Error; err != nil {
		return nil, fmt.Errorf("store: marking run running: %w", err)
	}
	return &run, nil
}

// UpdateRunStatus transitions a run to status, recording errMsg (if
// any) as the run's stored error.
func (s *Store) UpdateRunStatus(scope *Scope, run *domain.Run, status domain.RunStatus, errMsg string) error {
	run.Status = status
	run.Error = errMsg
	if err := scope.Tx.Model(run).Updates(map[string]any{
		"status": status,
		"error":  errMsg,
	}).Error; err != nil {
		return fmt.Errorf("store: updating run status: %w", err)
	}
	return nil
}

// UpdateRunResult records result against run, alongside whatever
// status transition UpdateRunStatus already applied.
func (s *Store) UpdateRunResult(scope *Scope, run *domain.Run, result []byte) error {
	run.Result = datatypes.JSON(result)
	if err := scope.Tx.Model(run).Update("result", datatypes.JSON(result)).Error; err != nil {
		return fmt.Errorf("store: updating run result: %w", err)
	}
	return nil
}

// SetTaskStatus transitions the owning Task (e.g. to DONE or FAILED).
func (s *Store) SetTaskStatus(scope *Scope, taskID uint, status domain.TaskStatus) error {
	if err := scope.Tx.Model(&domain.Task{}).Where("id = ?", taskID).Update("status", status).Error; err != nil {
		return fmt.Errorf("store: updating task status: %w", err)
	}
	return nil
}

// CreateArtifact records a stage's output against a task and run.
func (s *Store) CreateArtifact(scope *Scope, taskID, runID uint, kind string, data []byte) (*domain.Artifact, error) {
	artifact := &domain.Artifact{TaskID: taskID, RunID: runID, Kind: kind, Data: data}
	if err := scope.Tx.Create(artifact).Error; err != nil {
		return nil, fmt.Errorf("store: creating artifact: %w", err)
	}
	return artifact, nil
}

// ArtifactsForTask returns every artifact for a task, oldest first.
func (s *Store) ArtifactsForTask(scope *Scope, taskID uint) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	if err := scope.Tx.Where("task_id = ?", taskID).Order("id ASC").Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("store: listing artifacts: %w", err)
	}
	return artifacts, nil
}

// LatestArtifactOfKind returns the most recently created artifact of
// kind for a task, or gorm.ErrRecordNotFound if none exists.
func (s *Store) LatestArtifactOfKind(scope *Scope, taskID uint, kind string) (*domain.Artifact, error) {
	var artifact domain.Artifact
	err := scope.Tx.
		Where("task_id = ? AND kind = ?", taskID, kind).
		Order("id DESC").
		Limit(1).
		First(&artifact).Error
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// LatestRunForStage returns the highest-attempt run for a task's stage,
// or gorm.ErrRecordNotFound if the stage has never run.
func (s *Store) LatestRunForStage(scope *Scope, taskID uint, stage domain.Stage) (*domain.Run, error) {
	var run domain.Run
	err := scope.Tx.
		Where("task_id = ? AND stage = ?", taskID, stage).
		Order("attempt DESC, id DESC").
		Limit(1).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RunsForStage returns every run recorded for a task's stage, oldest
// attempt first. Used to compute rework attempt counts.
func (s *Store) RunsForStage(scope *Scope, taskID uint, stage domain.Stage) ([]domain.Run, error) {
	var runs []domain.Run
	if err := scope.Tx.
		Where("task_id = ? AND stage = ?", taskID, stage).
		Order("attempt ASC, id ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("store: listing runs for stage: %w", err)
	}
	return runs, nil
}

// CreateDecision records a human verdict against a Task, independent
// of whichever HUMAN_APPROVAL run is current when it arrives.
func (s *Store) CreateDecision(scope *Scope, taskID uint, kind domain.DecisionKind, comment string) (*domain.Decision, error) {
	decision := &domain.Decision{TaskID: taskID, Kind: kind, Comment: comment}
	if err := scope.Tx.Create(decision).Error; err != nil {
		return nil, fmt.Errorf("store: creating decision: %w", err)
	}
	return decision, nil
}

// LatestDecisionForTask returns the newest decision recorded against
// taskID (invariant D1: only the newest is authoritative), or
// gorm.ErrRecordNotFound if none has arrived yet.
func (s *Store) LatestDecisionForTask(scope *Scope, taskID uint) (*domain.Decision, error) {
	var decision domain.Decision
	err := scope.Tx.
		Where("task_id = ?", taskID).
		Order("id DESC").
		Limit(1).
		First(&decision).Error
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

// GetTaskWithChildren preloads a task's runs, artifacts, and decisions.
func (s *Store) GetTaskWithChildren(scope *Scope, id uint) (*domain.Task, error) {
	var task domain.Task
	err := scope.Tx.
		Preload("Runs", func(db *gorm.DB) *gorm.DB { return db.Order("runs.id ASC") }).
		Preload("Artifacts", func(db *gorm.DB) *gorm.DB { return db.Order("artifacts.id ASC") }).
		Preload("Decisions", func(db *gorm.DB) *gorm.DB { return db.Order("decisions.id ASC") }).
		First(&task, id).Error
	if err != nil {
		return nil, fmt.Errorf("store: loading task %d: %w", id, err)
	}
	return &task, nil
}

// GetRun loads a single run by id.
func (s *Store) GetRun(scope *Scope, id uint) (*domain.Run, error) {
	var run domain.Run
	if err := scope.Tx.First(&run, id).Error; err != nil {
		return nil, fmt.Errorf("store: loading run %d: %w", id, err)
	}
	return &run, nil
}
