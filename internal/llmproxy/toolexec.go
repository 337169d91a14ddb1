package llmproxy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ToolResult is the Tool Executor's discriminated output:
// `execute(tenant_id, agent_id, tool_name, arguments) → {status, output}`.
type ToolResult struct {
	Status string // "ok" or "error"
	Output string
}

// ToolImpl is the interface every external tool registers under. Tool
// names are namespaced `server__resource`.
type ToolImpl interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, tenantID, agentID uuid.UUID, args map[string]any) ToolResult
}

// Executor dispatches tool_calls coming back from the LLM proxy to
// registered ToolImpls by their namespaced name (`server__resource`).
type Executor struct {
	tools map[string]ToolImpl
}

func NewExecutor() *Executor {
	return &Executor{tools: make(map[string]ToolImpl)}
}

func (e *Executor) Register(t ToolImpl) {
	e.tools[t.Name()] = t
}

// Specs returns the tool list for the `tools` field of a CompletionRequest.
func (e *Executor) Specs() []Tool {
	out := make([]Tool, 0, len(e.tools))
	for _, t := range e.tools {
		out = append(out, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Execute runs one named tool with the given arguments. An unknown tool
// name is an error result, never a panic or raised exception — the pipeline
// folds it into the `role:"tool"` message exactly like any other outcome.
func (e *Executor) Execute(ctx context.Context, tenantID, agentID uuid.UUID, toolName string, args map[string]any) ToolResult {
	t, ok := e.tools[toolName]
	if !ok {
		return ToolResult{Status: "error", Output: fmt.Sprintf("unknown tool %q (expected server__resource form)", toolName)}
	}
	return t.Execute(ctx, tenantID, agentID, args)
}
