package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// TaskHandler handles the task CRUD endpoints.
type TaskHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(st *store.Store, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		store:  st,
		logger: log,
	}
}

// loadOwned loads the task from the URL and enforces ownership. Absent and
// not-owned both read as 404 so task IDs do not leak across users.
func (h *TaskHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	taskID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(taskID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid task ID format")
		return nil, false
	}

	task, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
		} else {
			h.logger.Error("failed to load task", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load task")
		}
		return nil, false
	}
	if task.UserID != userID {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}

// List handles GET /api/v1/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	tasks, err := h.store.ListTasksByUser(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListTasksResponse{
		Tasks: tasks,
		Total: len(tasks),
	})
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDescription(req.Description); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}

	task := &model.Task{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    priority,
		DueDate:     req.DueDate,
	}
	task.SetStatus(model.StatusPending)

	if err := h.store.CreateTask(ctx, task); err != nil {
		h.logger.Error("failed to create task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	metrics.TasksTotal.WithLabelValues("add").Inc()
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/v1/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update handles PUT /api/v1/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var req model.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		if err := middleware.ValidateTitle(*req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		if err := middleware.ValidateDescription(*req.Description); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task.Description = *req.Description
	}
	if req.Completed != nil {
		task.SetCompleted(*req.Completed)
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.DueDate != nil {
		task.DueDate = *req.DueDate
	}
	task.UpdatedAt = time.Now()

	if err := h.store.SaveTask(ctx, task); err != nil {
		h.logger.Error("failed to update task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}

	metrics.TasksTotal.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, task)
}

// Complete handles POST /api/v1/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	task.SetStatus(model.StatusCompleted)
	task.UpdatedAt = time.Now()

	if err := h.store.SaveTask(ctx, task); err != nil {
		h.logger.Error("failed to complete task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete task")
		return
	}

	metrics.TasksTotal.WithLabelValues("complete").Inc()
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteTask(ctx, task.ID); err != nil {
		h.logger.Error("failed to delete task", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	metrics.TasksTotal.WithLabelValues("delete").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": task.ID,
		"deleted": true,
	})
}
