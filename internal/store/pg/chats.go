package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type ChatStore struct {
	db *sqlx.DB
}

func NewChatStore(db *sqlx.DB) *ChatStore { return &ChatStore{db: db} }

type chatRow struct {
	ID              uuid.UUID  `db:"id"`
	TenantID        uuid.UUID  `db:"tenant_id"`
	CustomerID      uuid.UUID  `db:"customer_id"`
	Channel         string     `db:"channel"`
	SenderAgentID   uuid.UUID  `db:"sender_agent_id"`
	AIAgentID       *uuid.UUID `db:"ai_agent_id"`
	HumanAgentID    *uuid.UUID `db:"human_agent_id"`
	AssignedAgentID *uuid.UUID `db:"assigned_agent_id"`
	Status          string     `db:"status"`
	HandledBy       string     `db:"handled_by"`
	LastMessageAt   time.Time  `db:"last_message_at"`
	UnreadCount     int        `db:"unread_count"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r chatRow) toStore() *store.Chat {
	return &store.Chat{
		BaseModel:       store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		TenantID:        r.TenantID,
		CustomerID:      r.CustomerID,
		Channel:         store.Channel(r.Channel),
		SenderAgentID:   r.SenderAgentID,
		AIAgentID:       r.AIAgentID,
		HumanAgentID:    r.HumanAgentID,
		AssignedAgentID: r.AssignedAgentID,
		Status:          store.ChatStatus(r.Status),
		HandledBy:       store.HandledBy(r.HandledBy),
		LastMessageAt:   r.LastMessageAt,
		UnreadCount:     r.UnreadCount,
	}
}

const chatCols = `id, tenant_id, customer_id, channel, sender_agent_id, ai_agent_id, human_agent_id,
	assigned_agent_id, status, handled_by, last_message_at, unread_count, created_at, updated_at`

// FindActive returns the most recent {open, assigned, resolved} chat for
// the (customer, channel, sender agent) triple.
func (s *ChatStore) FindActive(ctx context.Context, tenantID, customerID uuid.UUID, channel store.Channel, senderAgentID uuid.UUID) (*store.Chat, error) {
	var r chatRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+chatCols+` FROM chats
		 WHERE tenant_id = $1 AND customer_id = $2 AND channel = $3 AND sender_agent_id = $4
		   AND status IN ('open', 'assigned', 'resolved')
		 ORDER BY last_message_at DESC LIMIT 1`,
		tenantID, customerID, string(channel), senderAgentID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("no active chat", err)
		}
		return nil, store.ErrInternal("chat lookup failed", err)
	}
	return r.toStore(), nil
}

func (s *ChatStore) Create(ctx context.Context, chat *store.Chat) (*store.Chat, error) {
	if chat.ID == uuid.Nil {
		chat.ID = store.GenNewID()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, tenant_id, customer_id, channel, sender_agent_id, ai_agent_id, human_agent_id,
		 assigned_agent_id, status, handled_by, last_message_at, unread_count, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		chat.ID, chat.TenantID, chat.CustomerID, string(chat.Channel), chat.SenderAgentID,
		chat.AIAgentID, chat.HumanAgentID, chat.AssignedAgentID, string(chat.Status),
		string(chat.HandledBy), now, 0, now, now)
	if err != nil {
		return nil, store.ErrInternal("chat insert failed", err)
	}
	chat.CreatedAt, chat.UpdatedAt, chat.LastMessageAt = now, now, now
	return chat, nil
}

func (s *ChatStore) Get(ctx context.Context, chatID uuid.UUID) (*store.Chat, error) {
	var r chatRow
	err := s.db.GetContext(ctx, &r, `SELECT `+chatCols+` FROM chats WHERE id = $1`, chatID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("chat not found", err)
		}
		return nil, store.ErrInternal("chat lookup failed", err)
	}
	return r.toStore(), nil
}

// Reopen transitions a resolved chat back to open (closed chats are never
// reopened by the router — callers branch on Status before calling this).
func (s *ChatStore) Reopen(ctx context.Context, chatID uuid.UUID) (*store.Chat, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET status = 'open', updated_at = now() WHERE id = $1 AND status = 'resolved'`, chatID)
	if err != nil {
		return nil, store.ErrInternal("chat reopen failed", err)
	}
	return s.Get(ctx, chatID)
}

func (s *ChatStore) Touch(ctx context.Context, chatID uuid.UUID, lastMessageAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_message_at = $1, updated_at = now() WHERE id = $2`,
		time.Unix(lastMessageAt, 0), chatID)
	if err != nil {
		return store.ErrInternal("chat touch failed", err)
	}
	return nil
}

func (s *ChatStore) SetHandledBy(ctx context.Context, chatID uuid.UUID, by store.HandledBy) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET handled_by = $1, status = 'open', updated_at = now() WHERE id = $2`, string(by), chatID)
	if err != nil {
		return store.ErrInternal("chat handled_by update failed", err)
	}
	return nil
}

func (s *ChatStore) IncrementUnread(ctx context.Context, chatID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET unread_count = unread_count + 1, updated_at = now() WHERE id = $1`, chatID)
	if err != nil {
		return store.ErrInternal("chat unread increment failed", err)
	}
	return nil
}

func (s *ChatStore) ClearUnread(ctx context.Context, chatID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET unread_count = 0, updated_at = now() WHERE id = $1`, chatID)
	if err != nil {
		return store.ErrInternal("chat unread clear failed", err)
	}
	return nil
}
