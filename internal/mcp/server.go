// Package mcp implements the tool registry and dispatcher that exposes task
// management operations to the language model.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/llm"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// Tool is a named, schema-described operation the language model may request.
// Execute receives the flat parameter mapping from the model and returns a
// result mapping or a typed error; it must be safe for sequential reuse across
// turns.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Call identifies one requested tool invocation.
type Call struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// Result is the uniform outcome of a dispatch. Handler failures are carried
// in Error; Execute never propagates them as Go errors.
type Result struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
	Error   string         `json:"error,omitempty"`
}

// Server maps tool names to handlers and dispatches calls.
type Server struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *logger.Logger
}

// NewServer creates an empty tool registry.
func NewServer(log *logger.Logger) *Server {
	return &Server{
		tools:  make(map[string]Tool),
		logger: log,
	}
}

// Register stores a tool under its name. Registering the same name twice
// overwrites the previous handler.
func (s *Server) Register(tool Tool) {
	s.mu.Lock()
	s.tools[tool.Name()] = tool
	s.mu.Unlock()

	s.logger.Info("tool registered", zap.String("tool", tool.Name()))
}

// Execute dispatches one call and converts any handler failure into a
// structured result.
func (s *Server) Execute(ctx context.Context, call Call) Result {
	s.mu.RLock()
	tool, ok := s.tools[call.ToolName]
	s.mu.RUnlock()

	if !ok {
		metrics.RecordToolExecution(call.ToolName, "not_found")
		return Result{
			Success: false,
			Result:  map[string]any{},
			Error:   fmt.Sprintf("tool '%s' not found", call.ToolName),
		}
	}

	result, err := tool.Execute(ctx, call.Parameters)
	if err != nil {
		s.logger.Error("tool execution failed",
			zap.String("tool", call.ToolName),
			zap.Error(err),
		)
		metrics.RecordToolExecution(call.ToolName, "error")
		return Result{
			Success: false,
			Result:  map[string]any{},
			Error:   err.Error(),
		}
	}

	metrics.RecordToolExecution(call.ToolName, "success")
	return Result{
		Success: true,
		Result:  result,
	}
}

// ListTools returns the sorted names of all registered tools.
func (s *Server) ListTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the schema declarations of all registered tools,
// ordered by name, for advertising to the language model.
func (s *Server) Definitions() []llm.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, s.tools[name].Definition())
	}
	return defs
}
