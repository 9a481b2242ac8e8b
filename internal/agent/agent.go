// Package agent implements the conversational orchestrator that turns an
// inbound natural-language message into tool executions and a persisted reply.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/events"
	"github.com/taskpilot-ai/taskpilot/internal/llm"
	"github.com/taskpilot-ai/taskpilot/internal/mcp"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// historyLimit bounds the conversation context presented to the model.
const historyLimit = 10

// systemPrompt is the fixed instruction prefixed to every model call.
const systemPrompt = "You are a helpful AI assistant that manages tasks for users. " +
	"You can add, list, update, complete, and delete tasks using the available tools. " +
	"Always ensure that user IDs match the authenticated user for security."

// Typed failures of conversation resolution.
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationOwnership = errors.New("conversation does not belong to the authenticated user")
)

// ChatAgent drives the two-phase tool-calling exchange with the language
// model for one chat turn at a time.
type ChatAgent struct {
	store     *store.Store
	server    *mcp.Server
	llmClient llm.Client
	publisher *events.Publisher
	model     string
	logger    *logger.Logger
}

// New creates a chat agent. publisher may be nil when event publishing is
// disabled.
func New(
	st *store.Store,
	server *mcp.Server,
	llmClient llm.Client,
	publisher *events.Publisher,
	modelName string,
	log *logger.Logger,
) *ChatAgent {
	return &ChatAgent{
		store:     st,
		server:    server,
		llmClient: llmClient,
		publisher: publisher,
		model:     modelName,
		logger:    log,
	}
}

// AvailableTools returns the names of the tools the agent can use.
func (a *ChatAgent) AvailableTools() []string {
	return a.server.ListTools()
}

// ProcessMessage runs one chat turn. It never returns an error: any failure
// is converted into an apologetic assistant reply that is persisted into the
// conversation (when one was resolved) and carried in the response's Error
// field.
func (a *ChatAgent) ProcessMessage(ctx context.Context, userID, conversationID, message string) *model.ChatResponse {
	turn := &turnState{conversationID: conversationID}

	resp, err := a.run(ctx, userID, message, turn)
	if err == nil {
		metrics.ChatTurnsTotal.WithLabelValues("success").Inc()
		return resp
	}

	a.logger.Error("chat turn failed",
		zap.String("user_id", userID),
		zap.String("conversation_id", turn.conversationID),
		zap.Error(err),
	)

	reply := fmt.Sprintf("I'm sorry, I encountered an error processing your request: %s", err)

	// The explanation is appended after the already-persisted user message so
	// the thread stays usable. It is only written once the conversation has
	// passed ownership resolution; a failed resolution must not leave rows in
	// a thread the caller does not own.
	if turn.resolved {
		errMsg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			UserID:         userID,
			ConversationID: turn.conversationID,
			Role:           model.RoleAssistant,
			Content:        reply,
		}
		if perr := a.store.CreateMessage(ctx, errMsg); perr != nil {
			a.logger.Error("failed to persist error reply", zap.Error(perr))
		} else {
			metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
		}
	}

	a.publisher.PublishChatTurn(ctx, &events.ChatTurnEvent{
		UserID:         userID,
		ConversationID: turn.conversationID,
		Failed:         true,
		CreatedAt:      time.Now(),
	})

	metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
	return &model.ChatResponse{
		Response:       reply,
		ConversationID: turn.conversationID,
		ToolCalls:      []model.ToolCallResult{},
		Error:          err.Error(),
	}
}

// turnState carries what the error path needs when run fails midway.
// resolved flips only after the conversation passed the ownership check.
type turnState struct {
	conversationID string
	resolved       bool
}

func (a *ChatAgent) run(ctx context.Context, userID, message string, turn *turnState) (*model.ChatResponse, error) {
	conv, err := a.resolveConversation(ctx, userID, turn.conversationID)
	if err != nil {
		return nil, err
	}
	turn.conversationID = conv.ID
	turn.resolved = true

	// Persist the user message before any model call so history survives a
	// downstream failure.
	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		UserID:         userID,
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        message,
	}
	if err := a.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	history, err := a.buildContext(ctx, conv.ID, message)
	if err != nil {
		return nil, err
	}

	first, err := a.complete(ctx, &llm.CompletionRequest{
		Model:    a.model,
		Messages: history,
		Tools:    a.server.Definitions(),
	})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	reply := first.Content
	toolResults := []model.ToolCallResult{}
	var toolNames []string

	if len(first.ToolCalls) > 0 {
		reply, toolResults, toolNames, err = a.toolPhase(ctx, userID, history, first)
		if err != nil {
			return nil, err
		}
	}

	assistantMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		UserID:         userID,
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        reply,
	}
	if err := a.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	// Message append implicitly refreshes the thread's updated_at.
	conv.UpdatedAt = time.Now()
	if err := a.store.SaveConversation(ctx, conv); err != nil {
		a.logger.Warn("failed to refresh conversation timestamp", zap.Error(err))
	}

	a.publisher.PublishChatTurn(ctx, &events.ChatTurnEvent{
		UserID:         userID,
		ConversationID: conv.ID,
		MessageID:      assistantMsg.ID,
		ToolsInvoked:   toolNames,
		CreatedAt:      time.Now(),
	})

	return &model.ChatResponse{
		Response:       reply,
		ConversationID: conv.ID,
		ToolCalls:      toolResults,
		MessageID:      assistantMsg.ID,
	}, nil
}

// resolveConversation loads the supplied conversation, enforcing ownership,
// or lazily creates a new one when no identifier was supplied.
func (a *ChatAgent) resolveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		conv := &model.Conversation{
			ID:     uuid.Must(uuid.NewV7()).String(),
			UserID: userID,
			Title:  fmt.Sprintf("AI Chat Session - %s", time.Now().Format("2006-01-02 15:04:05")),
		}
		if err := a.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		metrics.ConversationsTotal.Inc()
		return conv, nil
	}

	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrConversationOwnership
	}
	return conv, nil
}

// buildContext assembles the model message history: the fixed system
// instruction, the most recent historical messages in chronological order,
// then the current user message.
func (a *ChatAgent) buildContext(ctx context.Context, conversationID, message string) ([]llm.ChatMessage, error) {
	recent, err := a.store.RecentMessages(ctx, conversationID, historyLimit)
	if err != nil {
		return nil, err
	}

	history := make([]llm.ChatMessage, 0, len(recent)+2)
	history = append(history, llm.ChatMessage{
		Role:    string(model.RoleSystem),
		Content: systemPrompt,
	})

	// recent is newest-first; present oldest-first.
	for i := len(recent) - 1; i >= 0; i-- {
		history = append(history, llm.ChatMessage{
			Role:    string(recent[i].Role),
			Content: recent[i].Content,
		})
	}

	history = append(history, llm.ChatMessage{
		Role:    string(model.RoleUser),
		Content: message,
	})

	return history, nil
}

// toolPhase executes the requested tool calls sequentially, in request order,
// then resubmits the augmented history for the final reply. Each call is
// executed exactly once; its result feeds both the caller-visible list and
// the second model call.
func (a *ChatAgent) toolPhase(
	ctx context.Context,
	userID string,
	history []llm.ChatMessage,
	first *llm.CompletionResponse,
) (string, []model.ToolCallResult, []string, error) {
	// The second call's history must include the raw tool-request structure
	// so the model can reconcile results against requests.
	followUp := append(append([]llm.ChatMessage{}, history...), llm.ChatMessage{
		Role:      string(model.RoleAssistant),
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	toolResults := make([]model.ToolCallResult, 0, len(first.ToolCalls))
	toolNames := make([]string, 0, len(first.ToolCalls))

	for _, tc := range first.ToolCalls {
		var params map[string]any
		if err := json.Unmarshal([]byte(tc.Arguments), &params); err != nil {
			return "", nil, nil, fmt.Errorf("invalid arguments for tool %s: %w", tc.Name, err)
		}
		if params == nil {
			params = map[string]any{}
		}

		// Sole tenant-isolation point at this layer: the authenticated user id
		// always wins over whatever the model supplied.
		params["user_id"] = userID

		result := a.server.Execute(ctx, mcp.Call{
			ToolName:   tc.Name,
			Parameters: params,
		})

		payload := result.Result
		if !result.Success {
			payload = map[string]any{"error": result.Error}
		}

		toolResults = append(toolResults, model.ToolCallResult{
			ToolName:   tc.Name,
			Parameters: params,
			Result:     payload,
		})
		toolNames = append(toolNames, tc.Name)

		if result.Success {
			a.publishTaskEvent(ctx, userID, tc.Name, result.Result)
		}

		content, err := json.Marshal(payload)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to encode result for tool %s: %w", tc.Name, err)
		}
		followUp = append(followUp, llm.ChatMessage{
			Role:       string(model.RoleTool),
			Content:    string(content),
			ToolCallID: tc.ID,
		})
	}

	final, err := a.complete(ctx, &llm.CompletionRequest{
		Model:    a.model,
		Messages: followUp,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("model call failed: %w", err)
	}

	return final.Content, toolResults, toolNames, nil
}

func (a *ChatAgent) publishTaskEvent(ctx context.Context, userID, toolName string, result map[string]any) {
	var operation string
	switch toolName {
	case "add_task":
		operation = "added"
	case "update_task":
		operation = "updated"
	case "complete_task":
		operation = "completed"
	case "delete_task":
		operation = "deleted"
	default:
		return
	}

	taskID, _ := result["task_id"].(string)
	a.publisher.PublishTask(ctx, &events.TaskEvent{
		UserID:    userID,
		TaskID:    taskID,
		Operation: operation,
		CreatedAt: time.Now(),
	})
}

func (a *ChatAgent) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := a.llmClient.Complete(ctx, req)
	if err != nil {
		metrics.RecordLLMCall(req.Model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMCall(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}
