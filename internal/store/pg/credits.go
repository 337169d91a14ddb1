package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type CreditStore struct {
	db *sqlx.DB
}

func NewCreditStore(db *sqlx.DB) *CreditStore { return &CreditStore{db: db} }

// RecordUsage inserts one usage-billing row.
func (s *CreditStore) RecordUsage(ctx context.Context, tx *store.CreditTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = store.GenNewID()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, tenant_id, chat_id, message_id, total_tokens, rate_per_token, cost_usd, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		tx.ID, tx.TenantID, tx.ChatID, tx.MessageID, tx.TotalTokens, tx.RatePerToken, tx.CostUSD, now)
	if err != nil {
		return store.ErrInternal("credit transaction insert failed", err)
	}
	tx.CreatedAt, tx.UpdatedAt = now, now
	return nil
}
