package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/tracing"
)

// maxToolTurns bounds the LLM tool loop.
const maxToolTurns = 5

// turnOutcome is what the tool loop produces once the LLM stops requesting
// tools: the final assistant content plus the accumulated token usage.
type turnOutcome struct {
	content string
	usage   llmproxy.Usage
	isError bool
}

// runToolLoop repeatedly completes and, for any tool_calls in the
// response, executes each via the Tool Executor and appends a role:"tool"
// message, until a turn with no tool_calls or maxToolTurns is reached.
// Call hashing flags (rather than silently loops through) a tool invoked
// repeatedly with identical arguments and results within the same run.
func runToolLoop(ctx context.Context, llm *llmproxy.Client, exec *llmproxy.Executor, req llmproxy.CompletionRequest, tenantID, agentID uuid.UUID, at *tracing.ActiveTrace) turnOutcome {
	seen := make(map[string]string) // argsHash -> last resultHash, within this bounded run
	var usage llmproxy.Usage        // summed over every completed LLM turn

	for turn := 0; turn < maxToolTurns; turn++ {
		llmCtx, llmSpan := at.StartSpan(ctx, tracing.SpanLLMCall, "llm.complete")
		resp, err := llm.Complete(llmCtx, req)
		if err != nil {
			llmSpan.End(llmCtx, 0, 0, err)
			return turnOutcome{content: "", isError: true}
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens
		if resp.Usage.CostUSD != nil {
			cost := *resp.Usage.CostUSD
			if usage.CostUSD != nil {
				cost += *usage.CostUSD
			}
			usage.CostUSD = &cost
		}
		if resp.Metadata.IsError {
			llmSpan.End(llmCtx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, fmt.Errorf("llm: %s", firstContent(resp)))
			return turnOutcome{content: firstContent(resp), usage: usage, isError: true}
		}
		if len(resp.Choices) == 0 {
			llmSpan.End(llmCtx, 0, 0, fmt.Errorf("llm: empty choices"))
			return turnOutcome{content: "", isError: true}
		}
		llmSpan.End(llmCtx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return turnOutcome{content: msg.Content, usage: usage}
		}

		req.Messages = append(req.Messages, msg)
		for _, tc := range msg.ToolCalls {
			args := decodeArgs(tc.Function.Arguments)
			argsHash := hashToolCall(tc.Function.Name, args)

			toolCtx, toolSpan := at.StartSpan(ctx, tracing.SpanToolCall, "tool.execute")
			toolSpan.WithToolName(tc.Function.Name)
			result := exec.Execute(toolCtx, tenantID, agentID, tc.Function.Name, args)
			var toolErr error
			if result.Status != "ok" {
				toolErr = fmt.Errorf("tool: %s", result.Status)
			}
			toolSpan.End(toolCtx, 0, 0, toolErr)

			resultHash := hashResult(result.Output)
			if prev, ok := seen[argsHash]; ok && prev == resultHash {
				result.Output += " [note: identical call already made this turn; consider a different approach]"
			}
			seen[argsHash] = resultHash

			req.Messages = append(req.Messages, llmproxy.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    result.Output,
			})
		}
	}

	return turnOutcome{content: "", isError: true}
}

func firstContent(resp *llmproxy.CompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

func decodeArgs(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var args map[string]any
	_ = json.Unmarshal([]byte(raw), &args)
	return args
}

func hashToolCall(toolName string, args map[string]any) string {
	h := sha256.Sum256([]byte(toolName + ":" + stableJSON(args)))
	return fmt.Sprintf("%x", h[:16])
}

func hashResult(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h[:16])
}

func stableJSON(v any) string {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q:%s", k, stableJSON(val[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = stableJSON(elem)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
