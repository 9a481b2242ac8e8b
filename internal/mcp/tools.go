package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/taskpilot-ai/taskpilot/internal/llm"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// RegisterTaskTools registers the five task management tools on the server.
func RegisterTaskTools(server *Server, st *store.Store) {
	server.Register(&AddTaskTool{store: st})
	server.Register(&ListTasksTool{store: st})
	server.Register(&UpdateTaskTool{store: st})
	server.Register(&CompleteTaskTool{store: st})
	server.Register(&DeleteTaskTool{store: st})
}

// stringParam extracts a string parameter. Returns ok=false when the key is
// absent, empty, or not a string.
func stringParam(params map[string]any, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// optionalParam extracts a string parameter, distinguishing "absent" from
// "present but empty".
func optionalParam(params map[string]any, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, true
}

func parseID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return invalidID(field, value)
	}
	return nil
}

// requireUser verifies that the referenced user exists.
func requireUser(ctx context.Context, st *store.Store, userID string) error {
	exists, err := st.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return &NotFoundError{Kind: "user", ID: userID}
	}
	return nil
}

// ownsTask reports whether the task exists and belongs to userID. Used as the
// ownership pre-check before the mutating load; the load re-checks ownership
// so both must hold.
func ownsTask(ctx context.Context, st *store.Store, taskID, userID string) (bool, error) {
	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return false, nil
		}
		return false, err
	}
	return task.UserID == userID, nil
}

// loadOwnedTask loads the task and re-validates ownership.
func loadOwnedTask(ctx context.Context, st *store.Store, taskID, userID, action string) (*model.Task, error) {
	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, &NotFoundError{Kind: "task", ID: taskID}
		}
		return nil, err
	}
	if task.UserID != userID {
		return nil, &AuthorizationError{UserID: userID, Action: action}
	}
	return task, nil
}

// AddTaskTool adds a new task to the user's list.
type AddTaskTool struct {
	store *store.Store
}

func (t *AddTaskTool) Name() string { return "add_task" }

func (t *AddTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "add_task",
		Description: "Add a new task to the user's todo list",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"title":       {Type: jsonschema.String, Description: "The title of the task to add"},
				"description": {Type: jsonschema.String, Description: "A detailed description of the task"},
				"user_id":     {Type: jsonschema.String, Description: "The ID of the user creating the task"},
			},
			Required: []string{"title", "user_id"},
		},
	}
}

func (t *AddTaskTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	title, ok := stringParam(params, "title")
	if !ok {
		return nil, missingParam("title")
	}
	userID, ok := stringParam(params, "user_id")
	if !ok {
		return nil, missingParam("user_id")
	}
	description, _ := optionalParam(params, "description")

	if err := parseID("user_id", userID); err != nil {
		return nil, err
	}

	task := &model.Task{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Priority:    "medium",
	}
	task.SetStatus(model.StatusPending)

	err := t.store.Transaction(func(tx *store.Store) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		return tx.CreateTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksTotal.WithLabelValues("add").Inc()

	return map[string]any{
		"task_id":     task.ID,
		"title":       task.Title,
		"description": task.Description,
		"status":      string(task.Status),
		"created_at":  task.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// ListTasksTool retrieves all tasks owned by the user.
type ListTasksTool struct {
	store *store.Store
}

func (t *ListTasksTool) Name() string { return "list_tasks" }

func (t *ListTasksTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "list_tasks",
		Description: "Retrieve all tasks for the current user",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"user_id": {Type: jsonschema.String, Description: "The ID of the user whose tasks to retrieve"},
			},
			Required: []string{"user_id"},
		},
	}
}

func (t *ListTasksTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	userID, ok := stringParam(params, "user_id")
	if !ok {
		return nil, missingParam("user_id")
	}
	if err := parseID("user_id", userID); err != nil {
		return nil, err
	}
	if err := requireUser(ctx, t.store, userID); err != nil {
		return nil, err
	}

	tasks, err := t.store.ListTasksByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		list = append(list, map[string]any{
			"task_id":     task.ID,
			"title":       task.Title,
			"description": task.Description,
			"status":      string(task.Status),
			"created_at":  task.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at":  task.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	return map[string]any{"tasks": list}, nil
}

// UpdateTaskTool updates an existing task's properties.
type UpdateTaskTool struct {
	store *store.Store
}

func (t *UpdateTaskTool) Name() string { return "update_task" }

func (t *UpdateTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "update_task",
		Description: "Update an existing task's properties",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"task_id":     {Type: jsonschema.String, Description: "The ID of the task to update"},
				"user_id":     {Type: jsonschema.String, Description: "The ID of the user who owns the task"},
				"title":       {Type: jsonschema.String, Description: "The new title of the task"},
				"description": {Type: jsonschema.String, Description: "The new description of the task"},
				"status": {
					Type:        jsonschema.String,
					Description: "The new status of the task",
					Enum:        []string{"pending", "in_progress", "completed"},
				},
			},
			Required: []string{"task_id", "user_id"},
		},
	}
}

func (t *UpdateTaskTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	taskID, ok := stringParam(params, "task_id")
	if !ok {
		return nil, missingParam("task_id")
	}
	userID, ok := stringParam(params, "user_id")
	if !ok {
		return nil, missingParam("user_id")
	}
	if err := parseID("task_id", taskID); err != nil {
		return nil, err
	}
	if err := parseID("user_id", userID); err != nil {
		return nil, err
	}

	status, hasStatus := optionalParam(params, "status")
	if hasStatus && !model.ValidStatus(model.TaskStatus(status)) {
		return nil, &ValidationError{Field: "status", Reason: "must be one of pending, in_progress, completed"}
	}

	owns, err := ownsTask(ctx, t.store, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, &AuthorizationError{UserID: userID, Action: "update task " + taskID}
	}

	var task *model.Task
	err = t.store.Transaction(func(tx *store.Store) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		task, err = loadOwnedTask(ctx, tx, taskID, userID, "update task "+taskID)
		if err != nil {
			return err
		}

		if title, ok := optionalParam(params, "title"); ok {
			task.Title = title
		}
		if description, ok := optionalParam(params, "description"); ok {
			task.Description = description
		}
		if hasStatus {
			task.SetStatus(model.TaskStatus(status))
		}
		task.UpdatedAt = time.Now()

		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksTotal.WithLabelValues("update").Inc()

	return map[string]any{
		"task_id":     task.ID,
		"title":       task.Title,
		"description": task.Description,
		"status":      string(task.Status),
		"updated_at":  task.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// CompleteTaskTool marks a task as completed. Completing an already-completed
// task succeeds and re-stamps updated_at.
type CompleteTaskTool struct {
	store *store.Store
}

func (t *CompleteTaskTool) Name() string { return "complete_task" }

func (t *CompleteTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "complete_task",
		Description: "Mark a task as completed",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"task_id": {Type: jsonschema.String, Description: "The ID of the task to complete"},
				"user_id": {Type: jsonschema.String, Description: "The ID of the user who owns the task"},
			},
			Required: []string{"task_id", "user_id"},
		},
	}
}

func (t *CompleteTaskTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	taskID, ok := stringParam(params, "task_id")
	if !ok {
		return nil, missingParam("task_id")
	}
	userID, ok := stringParam(params, "user_id")
	if !ok {
		return nil, missingParam("user_id")
	}
	if err := parseID("task_id", taskID); err != nil {
		return nil, err
	}
	if err := parseID("user_id", userID); err != nil {
		return nil, err
	}

	owns, err := ownsTask(ctx, t.store, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, &AuthorizationError{UserID: userID, Action: "complete task " + taskID}
	}

	var task *model.Task
	err = t.store.Transaction(func(tx *store.Store) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		task, err = loadOwnedTask(ctx, tx, taskID, userID, "complete task "+taskID)
		if err != nil {
			return err
		}

		task.SetStatus(model.StatusCompleted)
		task.UpdatedAt = time.Now()

		return tx.SaveTask(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksTotal.WithLabelValues("complete").Inc()

	return map[string]any{
		"task_id":      task.ID,
		"title":        task.Title,
		"status":       string(task.Status),
		"completed_at": task.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// DeleteTaskTool hard-deletes a task from the user's list.
type DeleteTaskTool struct {
	store *store.Store
}

func (t *DeleteTaskTool) Name() string { return "delete_task" }

func (t *DeleteTaskTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "delete_task",
		Description: "Delete a task from the user's todo list",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"task_id": {Type: jsonschema.String, Description: "The ID of the task to delete"},
				"user_id": {Type: jsonschema.String, Description: "The ID of the user who owns the task"},
			},
			Required: []string{"task_id", "user_id"},
		},
	}
}

func (t *DeleteTaskTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	taskID, ok := stringParam(params, "task_id")
	if !ok {
		return nil, missingParam("task_id")
	}
	userID, ok := stringParam(params, "user_id")
	if !ok {
		return nil, missingParam("user_id")
	}
	if err := parseID("task_id", taskID); err != nil {
		return nil, err
	}
	if err := parseID("user_id", userID); err != nil {
		return nil, err
	}

	owns, err := ownsTask(ctx, t.store, taskID, userID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, &AuthorizationError{UserID: userID, Action: "delete task " + taskID}
	}

	err = t.store.Transaction(func(tx *store.Store) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := loadOwnedTask(ctx, tx, taskID, userID, "delete task "+taskID); err != nil {
			return err
		}
		return tx.DeleteTask(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksTotal.WithLabelValues("delete").Inc()

	return map[string]any{
		"task_id": taskID,
		"deleted": true,
	}, nil
}
