package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type MessageStore struct {
	db *sqlx.DB
}

func NewMessageStore(db *sqlx.DB) *MessageStore { return &MessageStore{db: db} }

type messageRow struct {
	ID         uuid.UUID `db:"id"`
	ChatID     uuid.UUID `db:"chat_id"`
	SenderType string    `db:"sender_type"`
	SenderID   string    `db:"sender_id"`
	Content    string    `db:"content"`
	Metadata   []byte    `db:"metadata"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r messageRow) toStore() *store.Message {
	m := &store.Message{
		BaseModel:  store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		ChatID:     r.ChatID,
		SenderType: store.SenderType(r.SenderType),
		SenderID:   r.SenderID,
		Content:    r.Content,
		Metadata:   store.MessageMetadata{},
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &m.Metadata)
	}
	return m
}

const messageCols = `id, chat_id, sender_type, sender_id, content, metadata, created_at, updated_at`

// InsertOrMergeCustomer is idempotent by channel-native message id: a
// second delivery of the same whatsapp_message_id within a chat
// merges metadata into (and may fill previously empty content on) the
// existing row rather than inserting a duplicate.
func (s *MessageStore) InsertOrMergeCustomer(ctx context.Context, msg *store.Message) (*store.Message, bool, error) {
	wamid := msg.Metadata.WhatsAppMessageID()
	if wamid != "" {
		var existing messageRow
		err := s.db.GetContext(ctx, &existing,
			`SELECT `+messageCols+` FROM messages
			 WHERE chat_id = $1 AND metadata->>'whatsapp_message_id' = $2 LIMIT 1`,
			msg.ChatID, wamid)
		if err == nil {
			merged := existing.toStore()
			for k, v := range msg.Metadata {
				merged.Metadata[k] = v
			}
			if merged.Content == "" && msg.Content != "" {
				merged.Content = msg.Content
			}
			_, uerr := s.db.ExecContext(ctx,
				`UPDATE messages SET content = $1, metadata = $2, updated_at = now() WHERE id = $3`,
				merged.Content, jsonOrEmpty(merged.Metadata), merged.ID)
			if uerr != nil {
				return nil, false, store.ErrInternal("message merge failed", uerr)
			}
			return merged, true, nil
		}
		if err != sqlNoRows {
			return nil, false, store.ErrInternal("message dedupe lookup failed", err)
		}
	}

	row, err := s.insert(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	return row, false, nil
}

func (s *MessageStore) AppendAgent(ctx context.Context, msg *store.Message) (*store.Message, error) {
	return s.insert(ctx, msg)
}

func (s *MessageStore) insert(ctx context.Context, msg *store.Message) (*store.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, sender_type, sender_id, content, metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		msg.ID, msg.ChatID, string(msg.SenderType), msg.SenderID, msg.Content, jsonOrEmpty(msg.Metadata), now, now)
	if err != nil {
		return nil, store.ErrInternal("message insert failed", err)
	}
	msg.CreatedAt, msg.UpdatedAt = now, now
	return msg, nil
}

// FetchHistory returns up to limit messages for chatID in ascending
// chronological order, fetching newest-first and reversing, collapsing
// consecutive duplicate-content rows. excludeID (normally
// the triggering message) is excluded from the initial 2*limit fetch, before
// the limit cap is applied, so it never displaces a row that should survive.
func (s *MessageStore) FetchHistory(ctx context.Context, chatID, excludeID uuid.UUID, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []messageRow
	// Fetch a little more than limit before dedup collapse, same as the
	// "2*history_limit then collapse then cap" shape the pipeline expects.
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+messageCols+` FROM messages WHERE chat_id = $1 AND id != $2 ORDER BY created_at DESC LIMIT $3`,
		chatID, excludeID, limit*2)
	if err != nil {
		return nil, store.ErrInternal("history fetch failed", err)
	}

	// reverse to chronological order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	out := make([]*store.Message, 0, len(rows))
	for _, r := range rows {
		m := r.toStore()
		if n := len(out); n > 0 && out[n-1].Content == m.Content && out[n-1].SenderType == m.SenderType {
			continue // collapse consecutive identical content
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Get fetches a single message by id, used by the pipeline to load the message that
// triggered process().
func (s *MessageStore) Get(ctx context.Context, messageID uuid.UUID) (*store.Message, error) {
	var r messageRow
	err := s.db.GetContext(ctx, &r, `SELECT `+messageCols+` FROM messages WHERE id = $1`, messageID)
	if err == sqlNoRows {
		return nil, store.ErrNotFound("message not found", err)
	}
	if err != nil {
		return nil, store.ErrInternal("message lookup failed", err)
	}
	return r.toStore(), nil
}

// UpdateMetadata overwrites a persisted message's metadata bag — used to
// mark a dispatched reply {delivery_failed: true, reason} after a
// permanent dispatch failure.
func (s *MessageStore) UpdateMetadata(ctx context.Context, messageID uuid.UUID, metadata store.MessageMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET metadata = $1, updated_at = now() WHERE id = $2`, jsonOrEmpty(metadata), messageID)
	if err != nil {
		return store.ErrInternal("message metadata update failed", err)
	}
	return nil
}

// FindByWAMID looks up a message in chatID by its whatsapp_message_id. The
// router's dedupe does not use it; that goes through InsertOrMergeCustomer.
func (s *MessageStore) FindByWAMID(ctx context.Context, chatID uuid.UUID, wamid string) (*store.Message, bool, error) {
	var r messageRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+messageCols+` FROM messages WHERE chat_id = $1 AND metadata->>'whatsapp_message_id' = $2 LIMIT 1`,
		chatID, wamid)
	if err == sqlNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.ErrInternal("message lookup failed", err)
	}
	return r.toStore(), true, nil
}
