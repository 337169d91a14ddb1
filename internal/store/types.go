// Package store defines the typed entities and repository contracts for every
// object in the data model: tenants, agents, integrations, agent settings,
// customers, chats, messages, tickets, and knowledge chunks. Lookups by a
// tenant-owned key (contact, open tickets, knowledge chunks) take tenant_id
// explicitly; lookups by row id or chat id (Get, GetOpenByChat) do not
// filter on tenant.
package store

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel carries the fields common to every row-backed entity.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenNewID returns a fresh random identifier for a new row.
func GenNewID() uuid.UUID {
	return uuid.New()
}

// --- Channels -----------------------------------------------------------

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWeb      Channel = "web"
	ChannelMCP      Channel = "mcp"
)

// --- Tenant ---------------------------------------------------------------

type Tenant struct {
	BaseModel
	Name     string `json:"name"`
	Category string `json:"category"`
	OwnerID  string `json:"owner_id"` // immutable after creation
}

// --- Agent ------------------------------------------------------------

type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusOffline AgentStatus = "offline"
)

type Agent struct {
	BaseModel
	TenantID uuid.UUID   `json:"tenant_id"`
	UserID   *string     `json:"user_id,omitempty"`
	Status   AgentStatus `json:"status"`
}

// IsAI reports whether this agent is an AI handler (no human user attached).
func (a *Agent) IsAI() bool { return a.UserID == nil || *a.UserID == "" }

// --- AgentIntegration -------------------------------------------------

type IntegrationStatus string

const (
	IntegrationConnected IntegrationStatus = "connected"
	IntegrationPending   IntegrationStatus = "pending"
	IntegrationError     IntegrationStatus = "error"
)

// IntegrationConfig is the channel-specific attribute bag. Recognized keys
// are exposed through typed getters; unrecognized keys are preserved on
// write-back but never consulted by the core.
type IntegrationConfig map[string]any

func (c IntegrationConfig) str(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// WhatsApp outbound number (digits only, no "+").
func (c IntegrationConfig) PhoneNumber() string { return c.str("phoneNumber") }

// Telegram userbot session identity.
func (c IntegrationConfig) TelegramAPIID() string   { return c.str("apiId") }
func (c IntegrationConfig) TelegramAPIHash() string { return c.str("apiHash") }
func (c IntegrationConfig) TelegramSession() string { return c.str("session") }

// Email from-address.
func (c IntegrationConfig) FromEmail() string { return c.str("fromEmail") }

// BaseURL and credentials used by the dispatcher.
func (c IntegrationConfig) BaseURL() string    { return c.str("baseUrl") }
func (c IntegrationConfig) APIKey() string     { return c.str("apiKey") }
func (c IntegrationConfig) ServiceKey() string { return c.str("serviceKey") }
func (c IntegrationConfig) WebhookURL() string { return c.str("webhookUrl") }

type AgentIntegration struct {
	BaseModel
	AgentID uuid.UUID         `json:"agent_id"`
	Channel Channel           `json:"channel"`
	Enabled bool              `json:"enabled"`
	Status  IntegrationStatus `json:"status"`
	Config  IntegrationConfig `json:"config"`
}

// --- AgentSettings ------------------------------------------------------

type Temperature string

const (
	TempConsistent Temperature = "consistent"
	TempBalanced   Temperature = "balanced"
	TempCreative   Temperature = "creative"
)

// Float maps the named temperature to the numeric value the LLM proxy expects.
func (t Temperature) Float() float64 {
	switch t {
	case TempConsistent:
		return 0.3
	case TempCreative:
		return 1.0
	default:
		return 0.7
	}
}

type PersonaConfig struct {
	Name               string `json:"name"`
	Tone               string `json:"tone"`
	Language           string `json:"language"`
	CustomInstructions string `json:"customInstructions"`
}

type HandoffTriggers struct {
	Enabled  bool     `json:"enabled"`
	Keywords []string `json:"keywords"`
	// Expr is an optional goja predicate evaluated over the latest message
	// when keyword matching alone is configured as insufficient.
	Expr string `json:"expr,omitempty"`
}

type AdvancedConfig struct {
	HistoryLimit    int             `json:"historyLimit"`
	Temperature     Temperature     `json:"temperature"`
	HandoffTriggers HandoffTriggers `json:"handoffTriggers"`
}

// ScheduleWindow is one weekday/timezone availability window, evaluated as a
// CEL boolean expression over `weekday` (0=Sunday), `hour`, `minute`.
type ScheduleWindow struct {
	Name string `json:"name"`
	CEL  string `json:"cel"`
}

type ScheduleConfig struct {
	Timezone string           `json:"timezone"`
	Windows  []ScheduleWindow `json:"windows"`
}

type AgentSettings struct {
	AgentID  uuid.UUID      `json:"agent_id"`
	Persona  PersonaConfig  `json:"persona_config"`
	Advanced AdvancedConfig `json:"advanced_config"`
	Schedule ScheduleConfig `json:"schedule_config"`
}

// EffectiveHistoryLimit returns the configured history limit, defaulting to 5.
func (s AgentSettings) EffectiveHistoryLimit() int {
	if s.Advanced.HistoryLimit <= 0 {
		return 5
	}
	return s.Advanced.HistoryLimit
}

// --- Customer -----------------------------------------------------------

// CustomerMetadata is the free-form attribute bag with explicit getters for
// the keys the core consults; unknown keys survive round-trips untouched.
type CustomerMetadata map[string]any

func (m CustomerMetadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (m CustomerMetadata) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

func (m CustomerMetadata) Int(key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (m CustomerMetadata) StringSlice(key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type Customer struct {
	BaseModel
	TenantID uuid.UUID        `json:"tenant_id"`
	Name     string           `json:"name"`
	Phone    *string          `json:"phone,omitempty"`
	Email    *string          `json:"email,omitempty"`
	Metadata CustomerMetadata `json:"metadata"`
}

// --- Chat -----------------------------------------------------------------

type ChatStatus string

const (
	ChatOpen     ChatStatus = "open"
	ChatAssigned ChatStatus = "assigned"
	ChatResolved ChatStatus = "resolved"
	ChatClosed   ChatStatus = "closed"
)

type HandledBy string

const (
	HandledByAI         HandledBy = "ai"
	HandledByHuman      HandledBy = "human"
	HandledByUnassigned HandledBy = "unassigned"
)

type Chat struct {
	BaseModel
	TenantID        uuid.UUID  `json:"tenant_id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	Channel         Channel    `json:"channel"`
	SenderAgentID   uuid.UUID  `json:"sender_agent_id"`
	AIAgentID       *uuid.UUID `json:"ai_agent_id,omitempty"`
	HumanAgentID    *uuid.UUID `json:"human_agent_id,omitempty"`
	AssignedAgentID *uuid.UUID `json:"assigned_agent_id,omitempty"`
	Status          ChatStatus `json:"status"`
	HandledBy       HandledBy  `json:"handled_by"`
	LastMessageAt   time.Time  `json:"last_message_at"`
	UnreadCount     int        `json:"unread_count"`
}

// --- Message ----------------------------------------------------------

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAI       SenderType = "ai"
	SenderHuman    SenderType = "human"
	SenderSystem   SenderType = "system"
)

// MessageMetadata mirrors the recognized subset of the free-form bag.
type MessageMetadata map[string]any

func (m MessageMetadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func (m MessageMetadata) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

func (m MessageMetadata) WhatsAppMessageID() string { return m.String("whatsapp_message_id") }
func (m MessageMetadata) MediaURL() string          { return m.String("media_url") }
func (m MessageMetadata) MediaType() string         { return m.String("media_type") }
func (m MessageMetadata) TargetGroupID() string     { return m.String("target_group_id") }
func (m MessageMetadata) IsError() bool             { return m.Bool("is_error") }

type Message struct {
	BaseModel
	ChatID     uuid.UUID       `json:"chat_id"`
	SenderType SenderType      `json:"sender_type"`
	SenderID   string          `json:"sender_id"`
	Content    string          `json:"content"`
	Metadata   MessageMetadata `json:"metadata"`
}

// --- Ticket -------------------------------------------------------------

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

type Ticket struct {
	BaseModel
	TenantID     uuid.UUID      `json:"tenant_id"`
	ChatID       uuid.UUID      `json:"chat_id"`
	TicketNumber int64          `json:"ticket_number"`
	Status       TicketStatus   `json:"status"`
	Priority     TicketPriority `json:"priority"`
	Category     string         `json:"category"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

type TicketActivityKind string

const (
	ActivityCreated         TicketActivityKind = "created"
	ActivityStatusChanged   TicketActivityKind = "status_changed"
	ActivityPriorityChanged TicketActivityKind = "priority_changed"
	ActivityAssigned        TicketActivityKind = "assigned"
)

type TicketActivity struct {
	BaseModel
	TicketID uuid.UUID          `json:"ticket_id"`
	Kind     TicketActivityKind `json:"kind"`
	Detail   string             `json:"detail"`
}

// --- KnowledgeChunk -----------------------------------------------------

type KnowledgeChunk struct {
	ChunkID      string    `json:"chunk_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	DocID        string    `json:"doc_id"`
	Filename     string    `json:"filename"`
	ChunkIndex   int       `json:"chunk_index"`
	Text         string    `json:"text"`
	SectionTitle string    `json:"section_title,omitempty"`
	IsTrashed    bool      `json:"is_trashed"`
}

// --- CreditTransaction ---------------------------------------------------

// CreditTransaction is a single usage-billing row posted per AI reply.
type CreditTransaction struct {
	BaseModel
	TenantID     uuid.UUID `json:"tenant_id"`
	ChatID       uuid.UUID `json:"chat_id"`
	MessageID    uuid.UUID `json:"message_id"`
	TotalTokens  int       `json:"total_tokens"`
	RatePerToken float64   `json:"rate_per_token"`
	CostUSD      float64   `json:"cost_usd"`
}
