// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// ErrToolsUnsupported is returned by providers that cannot execute
// tool-calling completion requests.
var ErrToolsUnsupported = errors.New("provider does not support tool calling")

// ChatMessage represents a chat message for the LLM.
//
// Assistant messages that requested tools carry ToolCalls; tool-role messages
// carrying a result reference the originating request via ToolCallID.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition is a JSON-Schema-described tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64
}

// CompletionResponse represents a completion response. Exactly one of Content
// and ToolCalls is meaningful: a non-empty ToolCalls slice means the model
// requested tool execution instead of (or before) producing text.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewOpenAIClient(apiKey)
	}
}
