// Package pipeline implements the AI response pipeline: the single
// `process(chat_id, latest_msg_id, priority)` operation that contextualizes,
// generates, and delivers one AI reply.
package pipeline

import (
	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

// Result is process()'s discriminated outcome. success=false with a reason
// is the normal way every guarded exit (not-AI chat, locked, rate-limited)
// is reported; nothing here ever panics or propagates an exception past the
// Debounce Orchestrator's worker.
type Result struct {
	Success     bool
	Reason      string
	AIMessageID uuid.UUID
}

// ImageRef is one collected candidate for the vision interceptor /
// multimodal user turn.
type ImageRef struct {
	URL  string
	Type string
}

// context assembled across steps 1-5, threaded into systemprompt/messages
// assembly. Kept as a plain struct rather than growing process()'s local
// variable list unbounded.
type turnContext struct {
	chat          *store.Chat
	customerName  string
	agent         *store.Agent
	settings      *store.AgentSettings
	latestContent string
	latestMeta    store.MessageMetadata
	history       []*store.Message
	images        []ImageRef
	visionContext string
	ragContext    string
}
