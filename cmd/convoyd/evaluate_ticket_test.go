package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/config"
	"github.com/orbitalcx/convoy/internal/router"
	"github.com/orbitalcx/convoy/internal/rules"
	"github.com/orbitalcx/convoy/internal/store"
	"github.com/orbitalcx/convoy/internal/ticketguard"
	"github.com/orbitalcx/convoy/internal/wsgateway"
)

type fakeClassifier struct {
	response string
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

type fakeCustomerRepo struct {
	customer *store.Customer
	err      error
}

func (f *fakeCustomerRepo) Upsert(ctx context.Context, tenantID uuid.UUID, channel store.Channel, contactKey, displayName string, meta store.MessageMetadata) (*store.Customer, error) {
	return f.customer, f.err
}

func (f *fakeCustomerRepo) Get(ctx context.Context, customerID uuid.UUID) (*store.Customer, error) {
	return f.customer, f.err
}

func (f *fakeCustomerRepo) UpdateMetadata(ctx context.Context, customerID uuid.UUID, metadata store.CustomerMetadata) error {
	return nil
}

type fakeTicketRepo struct {
	open            *store.Ticket
	created         *store.Ticket
	createErr       error
	updatedPriority store.TicketPriority
}

func (f *fakeTicketRepo) GetOpenByChat(ctx context.Context, chatID uuid.UUID) (*store.Ticket, error) {
	if f.open == nil {
		return nil, store.ErrNotFound("no open ticket", errors.New("not found"))
	}
	return f.open, nil
}

func (f *fakeTicketRepo) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*store.Ticket, error) {
	return nil, nil
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *store.Ticket) (*store.Ticket, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	ticket.ID = uuid.New()
	ticket.TicketNumber = 1
	f.created = ticket
	return ticket, nil
}

func (f *fakeTicketRepo) UpdatePriority(ctx context.Context, ticketID uuid.UUID, priority store.TicketPriority) error {
	f.updatedPriority = priority
	return nil
}

func (f *fakeTicketRepo) UpdateStatus(ctx context.Context, ticketID uuid.UUID, status store.TicketStatus) error {
	return nil
}

func (f *fakeTicketRepo) AppendActivity(ctx context.Context, activity *store.TicketActivity) error {
	return nil
}

func newTestServices(customers *fakeCustomerRepo, tickets *fakeTicketRepo, classifierResponse string) *services {
	guard := ticketguard.New(ticketguard.DefaultRules(), &fakeClassifier{response: classifierResponse})
	return &services{
		customers: customers,
		tickets:   tickets,
		guard:     guard,
		hub:       wsgateway.NewHub(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestEvaluateTicketFastGuardCreatesTicket(t *testing.T) {
	customer := &store.Customer{Metadata: store.CustomerMetadata{"message_count": 1}}
	tickets := &fakeTicketRepo{}
	svc := newTestServices(&fakeCustomerRepo{customer: customer}, tickets, "")

	result := &router.Result{ChatID: uuid.New(), CustomerID: uuid.New()}
	payload := inboundPayload{TenantID: uuid.New(), CustomerName: "Ada", Content: "hi"}

	svc.evaluateTicket(context.Background(), result, payload)

	if tickets.created == nil {
		t.Fatalf("expected a ticket to be created for a fast-guard greeting")
	}
	if tickets.created.ChatID != result.ChatID {
		t.Fatalf("expected ticket chat_id %v, got %v", result.ChatID, tickets.created.ChatID)
	}
}

func TestEvaluateTicketSkipsWhenAlreadyOpen(t *testing.T) {
	customer := &store.Customer{Metadata: store.CustomerMetadata{"message_count": 1}}
	tickets := &fakeTicketRepo{open: &store.Ticket{}}
	svc := newTestServices(&fakeCustomerRepo{customer: customer}, tickets, "")

	result := &router.Result{ChatID: uuid.New(), CustomerID: uuid.New()}
	payload := inboundPayload{TenantID: uuid.New(), CustomerName: "Ada", Content: "hi"}

	svc.evaluateTicket(context.Background(), result, payload)

	if tickets.created != nil {
		t.Fatalf("expected no new ticket when chat already has an open one")
	}
}

func TestEvaluateTicketSkipsWhenDecisionDoesNotFire(t *testing.T) {
	customer := &store.Customer{Metadata: store.CustomerMetadata{"message_count": 10}}
	tickets := &fakeTicketRepo{}
	svc := newTestServices(&fakeCustomerRepo{customer: customer}, tickets,
		`{"should_create_ticket": false, "reason": "small talk", "suggested_priority": "low", "suggested_category": "other"}`)

	result := &router.Result{ChatID: uuid.New(), CustomerID: uuid.New()}
	payload := inboundPayload{TenantID: uuid.New(), CustomerName: "Ada", Content: "just saying hi again"}

	svc.evaluateTicket(context.Background(), result, payload)

	if tickets.created != nil {
		t.Fatalf("expected no ticket when the classifier declines")
	}
}

func TestEvaluateTicketEscalatesOpenTicket(t *testing.T) {
	customer := &store.Customer{Metadata: store.CustomerMetadata{"message_count": 6}}
	tenantID := uuid.New()
	open := &store.Ticket{
		BaseModel: store.BaseModel{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)},
		TenantID:  tenantID,
		ChatID:    uuid.New(),
		Priority:  store.PriorityLow,
		Category:  "billing",
	}
	tickets := &fakeTicketRepo{open: open}
	svc := newTestServices(&fakeCustomerRepo{customer: customer}, tickets,
		`{"should_create_ticket": true, "reason": "still broken", "suggested_priority": "medium", "suggested_category": "billing"}`)

	escalator, err := rules.NewEscalator()
	if err != nil {
		t.Fatalf("NewEscalator: %v", err)
	}
	svc.escalator = escalator
	var live atomic.Pointer[config.Config]
	live.Store(&config.Config{Tickets: config.TicketsConfig{
		TenantEscalationExprs: map[string]string{tenantID.String(): `message_count > 5`},
	}})
	svc.cfg = &live

	result := &router.Result{ChatID: open.ChatID, CustomerID: uuid.New()}
	payload := inboundPayload{TenantID: tenantID, CustomerName: "Ada", Content: "my payment is still broken"}

	svc.evaluateTicket(context.Background(), result, payload)

	if tickets.created != nil {
		t.Fatalf("expected no new ticket when escalating an open one")
	}
	if tickets.updatedPriority != store.PriorityMedium {
		t.Fatalf("expected escalation to medium, got %q", tickets.updatedPriority)
	}
}

func TestBumpPriorityCapsAtUrgent(t *testing.T) {
	if got := bumpPriority(store.PriorityHigh); got != store.PriorityUrgent {
		t.Fatalf("bumpPriority(high) = %q, want urgent", got)
	}
	if got := bumpPriority(store.PriorityLow); got != store.PriorityMedium {
		t.Fatalf("bumpPriority(low) = %q, want medium", got)
	}
}

func TestEvaluateTicketSkipsOnCustomerLookupFailure(t *testing.T) {
	tickets := &fakeTicketRepo{}
	svc := newTestServices(&fakeCustomerRepo{err: errors.New("db down")}, tickets, "")

	result := &router.Result{ChatID: uuid.New(), CustomerID: uuid.New()}
	payload := inboundPayload{TenantID: uuid.New()}

	svc.evaluateTicket(context.Background(), result, payload)

	if tickets.created != nil {
		t.Fatalf("expected no ticket creation attempt when the customer lookup fails")
	}
}
