package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type TicketStore struct {
	db *sqlx.DB
}

func NewTicketStore(db *sqlx.DB) *TicketStore { return &TicketStore{db: db} }

type ticketRow struct {
	ID           uuid.UUID  `db:"id"`
	TenantID     uuid.UUID  `db:"tenant_id"`
	ChatID       uuid.UUID  `db:"chat_id"`
	TicketNumber int64      `db:"ticket_number"`
	Status       string     `db:"status"`
	Priority     string     `db:"priority"`
	Category     string     `db:"category"`
	ResolvedAt   *time.Time `db:"resolved_at"`
	ClosedAt     *time.Time `db:"closed_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r ticketRow) toStore() *store.Ticket {
	return &store.Ticket{
		BaseModel:    store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		TenantID:     r.TenantID,
		ChatID:       r.ChatID,
		TicketNumber: r.TicketNumber,
		Status:       store.TicketStatus(r.Status),
		Priority:     store.TicketPriority(r.Priority),
		Category:     r.Category,
		ResolvedAt:   r.ResolvedAt,
		ClosedAt:     r.ClosedAt,
	}
}

const ticketCols = `id, tenant_id, chat_id, ticket_number, status, priority, category, resolved_at, closed_at, created_at, updated_at`

func (s *TicketStore) GetOpenByChat(ctx context.Context, chatID uuid.UUID) (*store.Ticket, error) {
	var r ticketRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+ticketCols+` FROM tickets WHERE chat_id = $1 AND status IN ('open','in_progress')
		 ORDER BY created_at DESC LIMIT 1`, chatID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("no open ticket", err)
		}
		return nil, store.ErrInternal("ticket lookup failed", err)
	}
	return r.toStore(), nil
}

// ListOpen lists every open/in_progress ticket for tenantID, most recent
// first — the read path behind routerctl's ticket panel.
func (s *TicketStore) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*store.Ticket, error) {
	var rows []ticketRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+ticketCols+` FROM tickets WHERE tenant_id = $1 AND status IN ('open','in_progress')
		 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, store.ErrInternal("open ticket listing failed", err)
	}
	tickets := make([]*store.Ticket, len(rows))
	for i, r := range rows {
		tickets[i] = r.toStore()
	}
	return tickets, nil
}

// Create assigns the next tenant-scoped ticket_number from
// tenant_ticket_counters (a single-row-per-tenant monotonic counter,
// incremented in the same statement to stay correct under concurrent
// creation) and appends the "created" activity row.
func (s *TicketStore) Create(ctx context.Context, ticket *store.Ticket) (*store.Ticket, error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = store.GenNewID()
	}
	now := time.Now()

	var number int64
	err := s.db.GetContext(ctx, &number, `
		INSERT INTO tenant_ticket_counters (tenant_id, next_number)
		VALUES ($1, 2)
		ON CONFLICT (tenant_id) DO UPDATE SET next_number = tenant_ticket_counters.next_number + 1
		RETURNING next_number - 1`, ticket.TenantID)
	if err != nil {
		return nil, store.ErrInternal("ticket counter increment failed", err)
	}
	ticket.TicketNumber = number

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, tenant_id, chat_id, ticket_number, status, priority, category, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ticket.ID, ticket.TenantID, ticket.ChatID, ticket.TicketNumber,
		string(ticket.Status), string(ticket.Priority), ticket.Category, now, now)
	if err != nil {
		return nil, store.ErrInternal("ticket insert failed", err)
	}
	ticket.CreatedAt, ticket.UpdatedAt = now, now

	if err := s.AppendActivity(ctx, &store.TicketActivity{
		TicketID: ticket.ID,
		Kind:     store.ActivityCreated,
		Detail:   "ticket opened",
	}); err != nil {
		return ticket, err
	}
	return ticket, nil
}

func (s *TicketStore) UpdatePriority(ctx context.Context, ticketID uuid.UUID, priority store.TicketPriority) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tickets SET priority = $1, updated_at = now() WHERE id = $2`, string(priority), ticketID)
	if err != nil {
		return store.ErrInternal("ticket priority update failed", err)
	}
	return s.AppendActivity(ctx, &store.TicketActivity{
		TicketID: ticketID, Kind: store.ActivityPriorityChanged, Detail: string(priority),
	})
}

func (s *TicketStore) UpdateStatus(ctx context.Context, ticketID uuid.UUID, status store.TicketStatus) error {
	q := `UPDATE tickets SET status = $1, updated_at = now()`
	switch status {
	case store.TicketResolved:
		q += `, resolved_at = now()`
	case store.TicketClosed:
		q += `, closed_at = now()`
	}
	q += ` WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, q, string(status), ticketID); err != nil {
		return store.ErrInternal("ticket status update failed", err)
	}
	return s.AppendActivity(ctx, &store.TicketActivity{
		TicketID: ticketID, Kind: store.ActivityStatusChanged, Detail: string(status),
	})
}

func (s *TicketStore) AppendActivity(ctx context.Context, activity *store.TicketActivity) error {
	if activity.ID == uuid.Nil {
		activity.ID = store.GenNewID()
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ticket_activities (id, ticket_id, kind, detail, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		activity.ID, activity.TicketID, string(activity.Kind), activity.Detail, now, now)
	if err != nil {
		return store.ErrInternal("ticket activity append failed", err)
	}
	return nil
}
