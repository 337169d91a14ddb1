package ticketguard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

// Broadcaster is the thin seam into the WebSocket hub used to announce
// ticket creation, satisfied by *wsgateway.Hub without importing it here.
type Broadcaster interface {
	BroadcastChatUpdate(tenantID uuid.UUID, updateType string, payload map[string]any)
}

// CreateTicket materializes a Decision into a ticket row: it relies on
// TicketRepo.Create's tenant-scoped monotonic counter for ticket_number,
// appends a "created" activity entry, and broadcasts a chat_update of type
// ticket_created.
func CreateTicket(ctx context.Context, tickets store.TicketRepo, broadcaster Broadcaster, tenantID, chatID uuid.UUID, d *Decision) (*store.Ticket, error) {
	ticket, err := tickets.Create(ctx, &store.Ticket{
		TenantID: tenantID,
		ChatID:   chatID,
		Status:   store.TicketOpen,
		Priority: store.TicketPriority(d.SuggestedPriority),
		Category: d.SuggestedCategory,
	})
	if err != nil {
		return nil, fmt.Errorf("ticketguard: create ticket failed: %w", err)
	}

	if broadcaster != nil {
		broadcaster.BroadcastChatUpdate(tenantID, "ticket_created", map[string]any{
			"ticket_id":     ticket.ID.String(),
			"ticket_number": ticket.TicketNumber,
			"chat_id":       chatID.String(),
			"priority":      string(ticket.Priority),
			"category":      ticket.Category,
			"reason":        d.Reason,
		})
	}
	return ticket, nil
}
