package store

import (
	"context"

	"github.com/google/uuid"
)

// TenantRepo reads tenant configuration. Tenants are provisioned out of band
// (org/billing CRUD is out of scope); this repo is read-mostly.
type TenantRepo interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*Tenant, error)
}

// AgentRepo reads agents and their channel integrations/settings.
type AgentRepo interface {
	Get(ctx context.Context, agentID uuid.UUID) (*Agent, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Agent, error)
	Integration(ctx context.Context, agentID uuid.UUID, channel Channel) (*AgentIntegration, error)
	Settings(ctx context.Context, agentID uuid.UUID) (*AgentSettings, error)
	// WithinSchedule evaluates the agent's schedule_config against the given
	// instant, compiling each window's CEL expression lazily and caching it.
	WithinSchedule(ctx context.Context, agentID uuid.UUID, nowUnix int64) (bool, error)
}

// CustomerRepo resolves and upserts the customer identity behind an inbound
// message using the per-channel normalization rules.
type CustomerRepo interface {
	// Upsert finds-or-creates a customer by the channel-normalized contact
	// key (digits-only phone, lowercased email, or chat-peer key), applying
	// the name-backfill rule: only overwrite a stored name when it is empty
	// or contains the literal substring "Unknown". meta is the (post
	// identity-swap) inbound message metadata, consulted for WhatsApp's
	// whatsapp_lid fallback and Telegram's is_group disambiguation.
	Upsert(ctx context.Context, tenantID uuid.UUID, channel Channel, contactKey, displayName string, meta MessageMetadata) (*Customer, error)
	Get(ctx context.Context, customerID uuid.UUID) (*Customer, error)
	// UpdateMetadata overwrites the customer's metadata bag, used by the
	// router to maintain last_contact_at/message_count/preferred_channel/
	// channels_used/first_contact_* rollups.
	UpdateMetadata(ctx context.Context, customerID uuid.UUID, metadata CustomerMetadata) error
}

// ChatRepo implements the router's resolve/merge/create/reopen semantics.
type ChatRepo interface {
	// FindActive returns the most recent open, assigned or resolved chat for
	// (customer, channel, sender agent), or a NotFound error if none exists.
	FindActive(ctx context.Context, tenantID, customerID uuid.UUID, channel Channel, senderAgentID uuid.UUID) (*Chat, error)
	Create(ctx context.Context, chat *Chat) (*Chat, error)
	Get(ctx context.Context, chatID uuid.UUID) (*Chat, error)
	// Reopen transitions a resolved chat back to open and returns it; a chat
	// in any other status (including closed) is returned unchanged.
	Reopen(ctx context.Context, chatID uuid.UUID) (*Chat, error)
	Touch(ctx context.Context, chatID uuid.UUID, lastMessageAt int64) error
	SetHandledBy(ctx context.Context, chatID uuid.UUID, by HandledBy) error
	IncrementUnread(ctx context.Context, chatID uuid.UUID) error
	ClearUnread(ctx context.Context, chatID uuid.UUID) error
}

// MessageRepo implements the router's at-least-once idempotent merge and
// the history fetch the pipeline consumes.
type MessageRepo interface {
	// InsertOrMergeCustomer inserts an inbound customer message, deduping on
	// metadata.whatsapp_message_id when present: a second delivery of the
	// same wire message id within the same chat returns the original row
	// instead of creating a duplicate.
	InsertOrMergeCustomer(ctx context.Context, msg *Message) (row *Message, merged bool, err error)
	AppendAgent(ctx context.Context, msg *Message) (*Message, error)
	// Get fetches a single message by id, used by the pipeline to load the triggering
	// message's content+metadata.
	Get(ctx context.Context, messageID uuid.UUID) (*Message, error)
	// FetchHistory returns up to limit most-recent messages for chatID in
	// ascending chronological order, excluding excludeID (the triggering
	// message) before the limit cap is applied — the store fetches 2*limit,
	// excludes the triggering message, dedupes, then caps at limit, in that
	// order, so excluding after capping would silently lose a slot.
	FetchHistory(ctx context.Context, chatID, excludeID uuid.UUID, limit int) ([]*Message, error)
	// UpdateMetadata overwrites a persisted message's metadata bag — used to
	// mark a dispatched reply {delivery_failed: true, reason} after a
	// permanent dispatch failure.
	UpdateMetadata(ctx context.Context, messageID uuid.UUID, metadata MessageMetadata) error
}

// TicketRepo implements ticket numbering and the append-only activity log.
type TicketRepo interface {
	GetOpenByChat(ctx context.Context, chatID uuid.UUID) (*Ticket, error)
	// ListOpen returns every open/in_progress ticket for tenantID, most
	// recently created first — routerctl's operator dashboard is its only
	// caller today.
	ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*Ticket, error)
	Create(ctx context.Context, ticket *Ticket) (*Ticket, error)
	UpdatePriority(ctx context.Context, ticketID uuid.UUID, priority TicketPriority) error
	UpdateStatus(ctx context.Context, ticketID uuid.UUID, status TicketStatus) error
	AppendActivity(ctx context.Context, activity *TicketActivity) error
}

// KnowledgeRepo stores and lists knowledge chunks for keyword retrieval;
// vector embeddings live in chromem-go collections managed by internal/knowledge.
type KnowledgeRepo interface {
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]*KnowledgeChunk, error)
}

// CreditRepo records the token-usage transaction the pipeline posts on a
// successful,
// non-error AI reply.
type CreditRepo interface {
	RecordUsage(ctx context.Context, tx *CreditTransaction) error
}
