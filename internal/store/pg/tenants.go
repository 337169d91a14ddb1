package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type TenantStore struct {
	db *sqlx.DB
}

func NewTenantStore(db *sqlx.DB) *TenantStore { return &TenantStore{db: db} }

type tenantRow struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	OwnerID   string    `db:"owner_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*store.Tenant, error) {
	var r tenantRow
	err := s.db.GetContext(ctx, &r,
		`SELECT id, name, category, owner_id, created_at, updated_at FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("tenant not found", err)
		}
		return nil, store.ErrInternal("tenant lookup failed", err)
	}
	return &store.Tenant{
		BaseModel: store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		Name:      r.Name,
		Category:  r.Category,
		OwnerID:   r.OwnerID,
	}, nil
}
