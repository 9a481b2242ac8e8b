package model

// ChatRequest is the inbound chat message.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ToolCallResult records one dispatched tool invocation within a turn.
// It is transient: returned to the caller but never stored as its own row.
type ToolCallResult struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Result     map[string]any `json:"result"`
}

// ChatResponse is the outcome of one chat turn.
type ChatResponse struct {
	Response       string           `json:"response"`
	ConversationID string           `json:"conversation_id"`
	ToolCalls      []ToolCallResult `json:"tool_calls"`
	MessageID      string           `json:"message_id"`
	Error          string           `json:"error,omitempty"`
}
