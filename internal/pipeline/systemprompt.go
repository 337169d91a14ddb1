package pipeline

import (
	"fmt"
	"strings"

	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/store"
)

// minCustomInstructionsLen is the length threshold below which custom
// instructions are considered unset and the default scaffold is used
// instead.
const minCustomInstructionsLen = 20

// systemPromptConfig holds every input step 6 assembles into one system
// message.
type systemPromptConfig struct {
	persona       store.PersonaConfig
	customerName  string
	handoff       store.HandoffTriggers
	ragContext    string
	tools         []llmproxy.Tool
	userSentImage bool
}

// buildSystemPrompt constructs the single system message from ordered
// buildXSection() []string helpers joined at the end, rather than one
// monolithic format string.
func buildSystemPrompt(cfg systemPromptConfig) string {
	var lines []string

	lines = append(lines, buildPersonaSection(cfg.persona, cfg.customerName)...)
	lines = append(lines, buildInstructionsSection(cfg.persona.CustomInstructions)...)

	if cfg.handoff.Enabled {
		lines = append(lines, buildHandoffSection(cfg.handoff)...)
	}

	if len(cfg.tools) > 0 {
		lines = append(lines, buildToolsSection(cfg.tools)...)
	}

	if cfg.ragContext != "" {
		lines = append(lines, buildKnowledgeSection(cfg.ragContext)...)
	}

	if cfg.userSentImage {
		lines = append(lines, "The user sent an image with this message; an automated analysis of it is included above if relevant.", "")
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func buildPersonaSection(p store.PersonaConfig, customerName string) []string {
	name := p.Name
	if name == "" {
		name = "AI Assistant"
	}
	tone := p.Tone
	if tone == "" {
		tone = "friendly and professional"
	}

	lines := []string{
		fmt.Sprintf("You are %s, a customer service assistant.", name),
		fmt.Sprintf("Tone: %s.", tone),
	}
	if p.Language != "" {
		lines = append(lines, fmt.Sprintf("Always reply in %s, regardless of what language your instructions are written in.", p.Language))
	}
	if customerName != "" && customerName != "Customer" {
		lines = append(lines, fmt.Sprintf("You are speaking with %s.", customerName))
	}
	lines = append(lines, "")
	return lines
}

func buildInstructionsSection(custom string) []string {
	if len(strings.TrimSpace(custom)) >= minCustomInstructionsLen {
		return []string{"## Instructions", "", custom, ""}
	}
	return []string{
		"## Instructions",
		"",
		"Answer the customer's question clearly and concisely. If you don't know the answer from the",
		"knowledge base below, say so honestly rather than guessing.",
		"",
	}
}

func buildHandoffSection(h store.HandoffTriggers) []string {
	lines := []string{"## Handoff", ""}
	if len(h.Keywords) > 0 {
		lines = append(lines, fmt.Sprintf("If the customer's message concerns any of: %s, acknowledge the request and say a human teammate will follow up.", strings.Join(h.Keywords, ", ")))
	} else {
		lines = append(lines, "If the customer explicitly asks for a human, acknowledge the request and say a human teammate will follow up.")
	}
	lines = append(lines, "")
	return lines
}

func buildToolsSection(tools []llmproxy.Tool) []string {
	lines := []string{"## Tools", "", "You may call the following tools when they would help answer the customer:", ""}
	for _, t := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Function.Name, t.Function.Description))
	}
	lines = append(lines, "")
	return lines
}

func buildKnowledgeSection(ctx string) []string {
	return []string{"## KNOWLEDGE BASE", "", ctx, ""}
}
