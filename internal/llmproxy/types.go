package llmproxy

import (
	"encoding/json"
	"strings"
)

// Message is the wire shape of one OpenAI-compatible chat-completion turn,
// trimmed to the fields the pipeline and tool loop actually exercise.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Images     []ImageURL `json:"-"` // folded into Content for multimodal turns by MultimodalContent()
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name             string `json:"name"`
	Arguments        string `json:"arguments"`
	ThoughtSignature string `json:"thought_signature,omitempty"` // Gemini 2.5/3: must echo back
}

// File is an attachment reference sent alongside messages as
// `files:[{type,url}]`.
type File struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Tool describes one callable tool, namespaced `server__resource`.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// CompletionRequest is POSTed to the configured LLM proxy.
type CompletionRequest struct {
	Messages        []Message `json:"messages"`
	Files           []File    `json:"files,omitempty"`
	Category        string    `json:"category,omitempty"`
	NameUser        string    `json:"nameUser,omitempty"`
	Temperature     float64   `json:"temperature"`
	OrganizationID  string    `json:"organization_id"`
	TicketCategories []string `json:"ticket_categories,omitempty"`
	TicketID        string    `json:"ticket_id,omitempty"`
	Tools           []Tool    `json:"tools,omitempty"`
	ToolChoice      string    `json:"tool_choice,omitempty"`
}

// CompletionResponse is the OpenAI-compatible shape returned by the proxy.
type CompletionResponse struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Metadata struct {
		IsError bool `json:"is_error,omitempty"`
	} `json:"metadata,omitempty"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CostUSD          *float64 `json:"cost_usd,omitempty"`
}

// MultimodalContent renders Content plus any image URLs into the
// OpenAI-style content-parts array expected when images are present.
func (m Message) MultimodalContent() []map[string]any {
	parts := []map[string]any{{"type": "text", "text": m.Content}}
	for _, img := range m.Images {
		parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]string{"url": img.URL}})
	}
	return parts
}

// MarshalJSON emits `content` as the OpenAI content-parts array when Images
// is non-empty, and as a plain string otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role       string     `json:"role"`
		Content    any        `json:"content,omitempty"`
		ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
		ToolCallID string     `json:"tool_call_id,omitempty"`
	}
	w := wire{Role: m.Role, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	if len(m.Images) > 0 {
		w.Content = m.MultimodalContent()
	} else {
		w.Content = m.Content
	}
	return json.Marshal(w)
}

// collapseToolCallsWithoutSig rewrites tool_call cycles that lack a
// thought_signature, required by Gemini 2.5+. A pure wire-format
// normalization, independent of which model backs the proxy.
func collapseToolCallsWithoutSig(msgs []Message) []Message {
	collapseIDs := make(map[string]bool)
	for _, m := range msgs {
		if m.Role != "assistant" || len(m.ToolCalls) == 0 {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.Function.ThoughtSignature == "" {
				for _, tc2 := range m.ToolCalls {
					collapseIDs[tc2.ID] = true
				}
				break
			}
		}
	}
	if len(collapseIDs) == 0 {
		return msgs
	}

	result := make([]Message, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]

		if m.Role == "assistant" && len(m.ToolCalls) > 0 && collapseIDs[m.ToolCalls[0].ID] {
			if m.Content != "" {
				result = append(result, Message{Role: "assistant", Content: m.Content})
			}

			var parts []string
			for i+1 < len(msgs) && msgs[i+1].Role == "tool" && collapseIDs[msgs[i+1].ToolCallID] {
				i++
				if content := strings.TrimSpace(msgs[i].Content); content != "" {
					parts = append(parts, content)
				}
			}
			if len(parts) > 0 {
				result = append(result, Message{Role: "user", Content: strings.Join(parts, "\n\n")})
			}
			continue
		}

		if m.Role == "tool" && collapseIDs[m.ToolCallID] {
			continue
		}

		result = append(result, m)
	}
	return result
}
