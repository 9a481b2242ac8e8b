package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taskpilot-ai/taskpilot/internal/llm"
	"github.com/taskpilot-ai/taskpilot/internal/mcp"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// fakeLLM replays a scripted sequence of responses and records every request
// it receives.
type fakeLLM struct {
	responses []*llm.CompletionResponse
	errs      []error
	requests  []*llm.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		resp := f.responses[i]
		if resp.Model == "" {
			resp.Model = "fake"
		}
		return resp, nil
	}
	return &llm.CompletionResponse{Content: "done", Model: "fake"}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"fake"} }

func setupAgent(t *testing.T, client llm.Client) (*ChatAgent, *store.Store, string) {
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

	server := mcp.NewServer(logger.NewNop())
	mcp.RegisterTaskTools(server, st)

	a := New(st, server, client, nil, "fake", logger.NewNop())
	return a, st, userID
}

func TestProcessMessagePlainReply(t *testing.T) {
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		{Content: "Hello! How can I help with your tasks?"},
	}}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()

	resp := a.ProcessMessage(ctx, userID, "", "hi there")

	assert.Empty(t, resp.Error)
	assert.Equal(t, "Hello! How can I help with your tasks?", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)
	assert.NotEmpty(t, resp.MessageID)
	assert.Empty(t, resp.ToolCalls)

	// Exactly one conversation was created, with the session title.
	convs, err := st.ListConversationsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, strings.HasPrefix(convs[0].Title, "AI Chat Session - "))

	// User message then assistant reply, and the reply row backs MessageID.
	msgs, err := st.ListMessages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi there", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, resp.MessageID, msgs[1].ID)

	// The model saw the system instruction first, the current message last,
	// and all five tools.
	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "hi there", req.Messages[len(req.Messages)-1].Content)
	assert.Len(t, req.Tools, 5)
}

func TestProcessMessageContinuesConversation(t *testing.T) {
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		{Content: "first reply"},
		{Content: "second reply"},
	}}
	a, _, userID := setupAgent(t, client)
	ctx := context.Background()

	first := a.ProcessMessage(ctx, userID, "", "remember the milk")
	require.Empty(t, first.Error)

	second := a.ProcessMessage(ctx, userID, first.ConversationID, "did you get that?")
	require.Empty(t, second.Error)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// The second call's context carries the first exchange.
	require.Len(t, client.requests, 2)
	var contents []string
	for _, m := range client.requests[1].Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "remember the milk")
	assert.Contains(t, contents, "first reply")
	assert.Equal(t, "did you get that?", contents[len(contents)-1])
}

func TestProcessMessageToolPhase(t *testing.T) {
	wrongUser := uuid.Must(uuid.NewV7()).String()
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "add_task",
			Arguments: `{"title":"Water plants","user_id":"` + wrongUser + `"}`,
		}}},
		{Content: "Added the task for you."},
	}}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()

	resp := a.ProcessMessage(ctx, userID, "", "add a task to water the plants")

	require.Empty(t, resp.Error)
	assert.Equal(t, "Added the task for you.", resp.Response)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "add_task", resp.ToolCalls[0].ToolName)

	// The authenticated user overrides whatever the model supplied.
	assert.Equal(t, userID, resp.ToolCalls[0].Parameters["user_id"])
	assert.Equal(t, "Water plants", resp.ToolCalls[0].Result["title"])

	tasks, err := st.ListTasksByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Water plants", tasks[0].Title)

	stray, err := st.ListTasksByUser(ctx, wrongUser)
	require.NoError(t, err)
	assert.Empty(t, stray)

	// The second call carries the raw tool request and a tool-role result
	// referencing it, and advertises no tools.
	require.Len(t, client.requests, 2)
	followUp := client.requests[1]
	assert.Empty(t, followUp.Tools)

	var sawRequest, sawResult bool
	for _, m := range followUp.Messages {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 && m.ToolCalls[0].ID == "call_1" {
			sawRequest = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawResult = true
			assert.Contains(t, m.Content, "Water plants")
		}
	}
	assert.True(t, sawRequest)
	assert.True(t, sawResult)
}

func TestProcessMessageToolFailureFeedsModel(t *testing.T) {
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "complete_task",
			Arguments: `{"task_id":"not-a-uuid"}`,
		}}},
		{Content: "That task ID does not look right."},
	}}
	a, _, userID := setupAgent(t, client)

	resp := a.ProcessMessage(context.Background(), userID, "", "finish my task")

	// A tool-level refusal is not a turn failure.
	require.Empty(t, resp.Error)
	assert.Equal(t, "That task ID does not look right.", resp.Response)
	require.Len(t, resp.ToolCalls, 1)
	assert.Contains(t, resp.ToolCalls[0].Result["error"], "invalid ID format")
}

func TestProcessMessageMalformedArguments(t *testing.T) {
	client := &fakeLLM{responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:        "call_1",
			Name:      "add_task",
			Arguments: `{not json`,
		}}},
	}}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()

	resp := a.ProcessMessage(ctx, userID, "", "add something")

	assert.NotEmpty(t, resp.Error)
	assert.Contains(t, resp.Error, "invalid arguments for tool add_task")
	assert.True(t, strings.HasPrefix(resp.Response, "I'm sorry, I encountered an error processing your request:"))

	// Nothing was dispatched.
	tasks, err := st.ListTasksByUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestProcessMessageModelFailure(t *testing.T) {
	client := &fakeLLM{errs: []error{errors.New("rate limited")}}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()

	resp := a.ProcessMessage(ctx, userID, "", "hello?")

	assert.Contains(t, resp.Error, "rate limited")
	assert.True(t, strings.HasPrefix(resp.Response, "I'm sorry, I encountered an error processing your request:"))
	assert.NotEmpty(t, resp.ConversationID)
	assert.Empty(t, resp.MessageID)

	// The user message survived the failure and the explanation follows it.
	msgs, err := st.ListMessages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello?", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, resp.Response, msgs[1].Content)
}

// storeKillingLLM closes the database before replying, so every store write
// after the model call fails.
type storeKillingLLM struct {
	st *store.Store
}

func (c *storeKillingLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := c.st.Close(); err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: "too late", Model: "fake"}, nil
}

func (c *storeKillingLLM) Name() string     { return "fake" }
func (c *storeKillingLLM) Models() []string { return []string{"fake"} }

func TestProcessMessageStoreFailureAfterModelCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, st.CreateUser(ctx, &model.User{
		ID:    userID,
		Email: userID + "@example.com",
	}))

	server := mcp.NewServer(logger.NewNop())
	mcp.RegisterTaskTools(server, st)
	a := New(st, server, &storeKillingLLM{st: st}, nil, "fake", logger.NewNop())

	resp := a.ProcessMessage(ctx, userID, "", "hello?")

	assert.NotEmpty(t, resp.Error)
	assert.True(t, strings.HasPrefix(resp.Response, "I'm sorry, I encountered an error processing your request:"))
	require.NotEmpty(t, resp.ConversationID)
	assert.Empty(t, resp.MessageID)

	// The user message written before the model call survives the failure.
	reopened, err := store.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.ListMessages(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello?", msgs[0].Content)
}

func TestProcessMessageUnknownConversation(t *testing.T) {
	client := &fakeLLM{}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()
	ghost := uuid.Must(uuid.NewV7()).String()

	resp := a.ProcessMessage(ctx, userID, ghost, "hi")

	assert.Equal(t, "conversation not found", resp.Error)
	assert.Empty(t, client.requests)

	// No dangling rows under the unresolved conversation id.
	msgs, err := st.ListMessages(ctx, ghost)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessMessageForeignConversation(t *testing.T) {
	client := &fakeLLM{}
	a, st, userID := setupAgent(t, client)
	ctx := context.Background()

	other := uuid.Must(uuid.NewV7()).String()
	conv := &model.Conversation{
		ID:     uuid.Must(uuid.NewV7()).String(),
		UserID: other,
		Title:  "someone else's thread",
	}
	require.NoError(t, st.CreateConversation(ctx, conv))

	resp := a.ProcessMessage(ctx, userID, conv.ID, "hi")

	assert.Equal(t, ErrConversationOwnership.Error(), resp.Error)
	assert.Empty(t, client.requests)

	// The refusal must not write into the other user's thread.
	msgs, err := st.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAvailableTools(t *testing.T) {
	a, _, _ := setupAgent(t, &fakeLLM{})

	assert.Equal(t, []string{
		"add_task",
		"complete_task",
		"delete_task",
		"list_tasks",
		"update_task",
	}, a.AvailableTools())
}
