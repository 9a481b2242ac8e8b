package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// setupToolServer builds a registry over an in-memory store with one
// provisioned user, returning the server, store and user ID.
func setupToolServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	st, err := store.New(db)
	require.NoError(t, err)

	userID := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, st.CreateUser(context.Background(), &model.User{
		ID:    userID,
		Email: userID + "@example.com",
	}))

	server := NewServer(logger.NewNop())
	RegisterTaskTools(server, st)
	return server, st, userID
}

func addTask(t *testing.T, server *Server, userID, title string) string {
	t.Helper()

	result := server.Execute(context.Background(), Call{
		ToolName: "add_task",
		Parameters: map[string]any{
			"title":   title,
			"user_id": userID,
		},
	})
	require.True(t, result.Success, "add_task failed: %s", result.Error)

	taskID, ok := result.Result["task_id"].(string)
	require.True(t, ok)
	return taskID
}

func TestMissingRequiredParams(t *testing.T) {
	server, st, userID := setupToolServer(t)
	taskID := addTask(t, server, userID, "Existing")

	cases := []struct {
		tool    string
		params  map[string]any
		missing string
	}{
		{"add_task", map[string]any{"user_id": userID}, "title"},
		{"add_task", map[string]any{"title": "x"}, "user_id"},
		{"list_tasks", map[string]any{}, "user_id"},
		{"update_task", map[string]any{"user_id": userID}, "task_id"},
		{"update_task", map[string]any{"task_id": taskID}, "user_id"},
		{"complete_task", map[string]any{"user_id": userID}, "task_id"},
		{"delete_task", map[string]any{"user_id": userID}, "task_id"},
	}

	for _, tc := range cases {
		t.Run(tc.tool+"_missing_"+tc.missing, func(t *testing.T) {
			result := server.Execute(context.Background(), Call{
				ToolName:   tc.tool,
				Parameters: tc.params,
			})
			assert.False(t, result.Success)
			assert.Equal(t, tc.missing+": required parameter is missing", result.Error)
		})
	}

	// None of the refused calls touched the store.
	tasks, err := st.ListTasksByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Existing", tasks[0].Title)
	assert.Equal(t, model.StatusPending, tasks[0].Status)
}

func TestAddTaskMissingTitle(t *testing.T) {
	server, st, userID := setupToolServer(t)

	result := server.Execute(context.Background(), Call{
		ToolName:   "add_task",
		Parameters: map[string]any{"user_id": userID},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "title: required parameter is missing", result.Error)

	tasks, err := st.ListTasksByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestAddTaskEmptyTitle(t *testing.T) {
	server, _, userID := setupToolServer(t)

	result := server.Execute(context.Background(), Call{
		ToolName:   "add_task",
		Parameters: map[string]any{"title": "", "user_id": userID},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "title: required parameter is missing", result.Error)
}

func TestAddTaskMalformedUserID(t *testing.T) {
	server, _, _ := setupToolServer(t)

	result := server.Execute(context.Background(), Call{
		ToolName:   "add_task",
		Parameters: map[string]any{"title": "x", "user_id": "not-a-uuid"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid ID format")
}

func TestAddTaskUnknownUser(t *testing.T) {
	server, st, _ := setupToolServer(t)
	ghost := uuid.Must(uuid.NewV7()).String()

	result := server.Execute(context.Background(), Call{
		ToolName:   "add_task",
		Parameters: map[string]any{"title": "x", "user_id": ghost},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "user "+ghost+" not found", result.Error)

	tasks, err := st.ListTasksByUser(context.Background(), ghost)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestAddThenListTasks(t *testing.T) {
	server, _, userID := setupToolServer(t)

	taskID := addTask(t, server, userID, "Write report")

	result := server.Execute(context.Background(), Call{
		ToolName:   "list_tasks",
		Parameters: map[string]any{"user_id": userID},
	})
	require.True(t, result.Success)

	tasks, ok := result.Result["tasks"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0]["task_id"])
	assert.Equal(t, "Write report", tasks[0]["title"])
	assert.Equal(t, "pending", tasks[0]["status"])
}

func TestListTasksEmpty(t *testing.T) {
	server, _, userID := setupToolServer(t)

	result := server.Execute(context.Background(), Call{
		ToolName:   "list_tasks",
		Parameters: map[string]any{"user_id": userID},
	})
	require.True(t, result.Success)

	tasks, ok := result.Result["tasks"].([]map[string]any)
	require.True(t, ok)
	assert.Empty(t, tasks)
}

func TestUpdateTaskInvalidStatus(t *testing.T) {
	server, st, userID := setupToolServer(t)
	taskID := addTask(t, server, userID, "Tidy up")

	result := server.Execute(context.Background(), Call{
		ToolName: "update_task",
		Parameters: map[string]any{
			"task_id": taskID,
			"user_id": userID,
			"status":  "done",
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "status: must be one of pending, in_progress, completed", result.Error)

	task, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, task.Status)
}

func TestUpdateTaskFields(t *testing.T) {
	server, st, userID := setupToolServer(t)
	taskID := addTask(t, server, userID, "Draft email")

	result := server.Execute(context.Background(), Call{
		ToolName: "update_task",
		Parameters: map[string]any{
			"task_id":     taskID,
			"user_id":     userID,
			"title":       "Send email",
			"description": "to the whole team",
			"status":      "in_progress",
		},
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Send email", result.Result["title"])
	assert.Equal(t, "in_progress", result.Result["status"])

	task, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "Send email", task.Title)
	assert.Equal(t, "to the whole team", task.Description)
	assert.Equal(t, model.StatusInProgress, task.Status)
	assert.False(t, task.Completed)
}

func TestUpdateTaskOwnershipViolation(t *testing.T) {
	server, st, owner := setupToolServer(t)
	taskID := addTask(t, server, owner, "Private task")

	intruder := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, st.CreateUser(context.Background(), &model.User{
		ID:    intruder,
		Email: intruder + "@example.com",
	}))

	result := server.Execute(context.Background(), Call{
		ToolName: "update_task",
		Parameters: map[string]any{
			"task_id": taskID,
			"user_id": intruder,
			"title":   "Hijacked",
		},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "user "+intruder+" is not authorized to update task "+taskID, result.Error)

	task, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, "Private task", task.Title)
}

func TestUpdateTaskNotFound(t *testing.T) {
	server, _, userID := setupToolServer(t)
	ghost := uuid.Must(uuid.NewV7()).String()

	result := server.Execute(context.Background(), Call{
		ToolName: "update_task",
		Parameters: map[string]any{
			"task_id": ghost,
			"user_id": userID,
			"title":   "x",
		},
	})

	assert.False(t, result.Success)
	// Absent and not-owned collapse into the same refusal.
	assert.Equal(t, "user "+userID+" is not authorized to update task "+ghost, result.Error)
}

func TestCompleteTaskIdempotent(t *testing.T) {
	server, st, userID := setupToolServer(t)
	taskID := addTask(t, server, userID, "Repeatable")

	first := server.Execute(context.Background(), Call{
		ToolName:   "complete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": userID},
	})
	require.True(t, first.Success, first.Error)
	assert.Equal(t, "completed", first.Result["status"])

	afterFirst, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.True(t, afterFirst.Completed)

	time.Sleep(10 * time.Millisecond)

	second := server.Execute(context.Background(), Call{
		ToolName:   "complete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": userID},
	})
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "completed", second.Result["status"])

	afterSecond, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.True(t, afterSecond.UpdatedAt.After(afterFirst.UpdatedAt))
}

func TestDeleteTask(t *testing.T) {
	server, st, userID := setupToolServer(t)
	taskID := addTask(t, server, userID, "Disposable")

	result := server.Execute(context.Background(), Call{
		ToolName:   "delete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": userID},
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, taskID, result.Result["task_id"])
	assert.Equal(t, true, result.Result["deleted"])

	_, err := st.GetTask(context.Background(), taskID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestDeleteTaskOwnershipViolation(t *testing.T) {
	server, st, owner := setupToolServer(t)
	taskID := addTask(t, server, owner, "Keep out")

	intruder := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, st.CreateUser(context.Background(), &model.User{
		ID:    intruder,
		Email: intruder + "@example.com",
	}))

	result := server.Execute(context.Background(), Call{
		ToolName:   "delete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": intruder},
	})

	assert.False(t, result.Success)

	_, err := st.GetTask(context.Background(), taskID)
	require.NoError(t, err)
}

func TestTaskLifecycle(t *testing.T) {
	server, _, userID := setupToolServer(t)
	ctx := context.Background()

	taskID := addTask(t, server, userID, "Plan sprint")

	update := server.Execute(ctx, Call{
		ToolName: "update_task",
		Parameters: map[string]any{
			"task_id": taskID,
			"user_id": userID,
			"status":  "in_progress",
		},
	})
	require.True(t, update.Success, update.Error)

	complete := server.Execute(ctx, Call{
		ToolName:   "complete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": userID},
	})
	require.True(t, complete.Success, complete.Error)

	del := server.Execute(ctx, Call{
		ToolName:   "delete_task",
		Parameters: map[string]any{"task_id": taskID, "user_id": userID},
	})
	require.True(t, del.Success, del.Error)

	list := server.Execute(ctx, Call{
		ToolName:   "list_tasks",
		Parameters: map[string]any{"user_id": userID},
	})
	require.True(t, list.Success)
	tasks, ok := list.Result["tasks"].([]map[string]any)
	require.True(t, ok)
	assert.Empty(t, tasks)
}
