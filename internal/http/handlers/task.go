package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/internal/domain"
	"github.com/flowforge/orchestrator/internal/http/response"
	"github.com/flowforge/orchestrator/internal/platform/apierr"
	"github.com/flowforge/orchestrator/internal/store"
)

// TaskHandler exposes CRUD plus the human-decision endpoints the
// pipeline's HUMAN_APPROVAL stage waits on.
type TaskHandler struct {
	store       *store.Store
	publisher   *store.Publisher
	maxAttempts int
}

// NewTaskHandler builds a TaskHandler. publisher may be nil, in which
// case Kick is a no-op beyond validating the task exists. maxAttempts
// seeds every Run this handler creates directly (the entry PRODUCT run).
func NewTaskHandler(st *store.Store, publisher *store.Publisher, maxAttempts int) *TaskHandler {
	return &TaskHandler{store: st, publisher: publisher, maxAttempts: maxAttempts}
}

type createTaskRequest struct {
	Title string `json:"title" binding:"required"`
}

// CreateTask inserts a new task and seeds its PRODUCT-stage entry run.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	var task *domain.Task
	err := h.store.WithinScope(c.Request.Context(), func(scope *store.Scope) error {
		var err error
		task, err = h.store.CreateTask(scope, req.Title, domain.StageProduct, h.maxAttempts)
		return err
	})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "create_task_failed", err)
		return
	}

	h.notify(c.Request.Context())
	response.RespondOK(c, task)
}

// GetTask returns a task with its full run/artifact/decision history.
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	var task *domain.Task
	err = h.store.WithinScope(c.Request.Context(), func(scope *store.Scope) error {
		t, loadErr := h.store.GetTaskWithChildren(scope, id)
		if loadErr != nil {
			return apierr.New(http.StatusNotFound, "task_not_found", loadErr)
		}
		task = t
		return nil
	})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_task_failed", err)
		return
	}

	response.RespondOK(c, task)
}

type decisionRequest struct {
	Comment string `json:"comment"`
}

// Approve appends an APPROVE Decision against the task. It does not
// itself advance any state; the HUMAN_APPROVAL stage picks it up on
// its next tick. A decision may be recorded before a HUMAN_APPROVAL
// run even exists, matching the original source's task-scoped approval.
func (h *TaskHandler) Approve(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	err = h.store.WithinScope(c.Request.Context(), func(scope *store.Scope) error {
		_, err := h.store.CreateDecision(scope, id, domain.DecisionApprove, req.Comment)
		return err
	})
	if err != nil {
		response.RespondError(c, http.StatusConflict, "decision_failed", err)
		return
	}

	h.notify(c.Request.Context())
	response.RespondOK(c, gin.H{"status": "recorded"})
}

// Reject appends a REJECT Decision against the task and immediately
// fails it; comment is required.
func (h *TaskHandler) Reject(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Comment == "" {
		response.RespondError(c, http.StatusBadRequest, "comment_required", fmt.Errorf("reject requires a comment"))
		return
	}

	err = h.store.WithinScope(c.Request.Context(), func(scope *store.Scope) error {
		if _, err := h.store.CreateDecision(scope, id, domain.DecisionReject, req.Comment); err != nil {
			return err
		}
		return h.store.SetTaskStatus(scope, id, domain.TaskFailed)
	})
	if err != nil {
		response.RespondError(c, http.StatusConflict, "decision_failed", err)
		return
	}

	h.notify(c.Request.Context())
	response.RespondOK(c, gin.H{"status": "recorded"})
}

// Kick nudges the scheduler to look for work on this task sooner than
// its next poll tick, without changing any stored state itself.
func (h *TaskHandler) Kick(c *gin.Context) {
	id, err := parseTaskID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}

	err = h.store.WithinScope(c.Request.Context(), func(scope *store.Scope) error {
		_, err := h.store.GetTaskWithChildren(scope, id)
		return err
	})
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "task_not_found", err)
		return
	}

	h.notify(c.Request.Context())
	response.RespondOK(c, gin.H{"status": "kicked"})
}

func (h *TaskHandler) notify(ctx context.Context) {
	if h.publisher != nil {
		h.publisher.NotifyRunEnqueued(ctx)
	}
}

func parseTaskID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
