package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

type fakeTicketRepoRouterctl struct {
	tickets []*store.Ticket
}

func (f *fakeTicketRepoRouterctl) GetOpenByChat(ctx context.Context, chatID uuid.UUID) (*store.Ticket, error) {
	return nil, store.ErrNotFound("no open ticket", nil)
}

func (f *fakeTicketRepoRouterctl) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]*store.Ticket, error) {
	return f.tickets, nil
}

func (f *fakeTicketRepoRouterctl) Create(ctx context.Context, ticket *store.Ticket) (*store.Ticket, error) {
	return ticket, nil
}

func (f *fakeTicketRepoRouterctl) UpdatePriority(ctx context.Context, ticketID uuid.UUID, priority store.TicketPriority) error {
	return nil
}

func (f *fakeTicketRepoRouterctl) UpdateStatus(ctx context.Context, ticketID uuid.UUID, status store.TicketStatus) error {
	return nil
}

func (f *fakeTicketRepoRouterctl) AppendActivity(ctx context.Context, activity *store.TicketActivity) error {
	return nil
}

func TestDashboardModelShowsLoadingBeforeFirstData(t *testing.T) {
	m := newDashboardModel(uuid.New(), nil, &fakeTicketRepoRouterctl{})
	if !strings.Contains(m.View(), "loading") {
		t.Fatalf("expected loading view before data arrives, got %q", m.View())
	}
}

func TestDashboardModelRendersOpenTickets(t *testing.T) {
	chatID := uuid.New()
	m := newDashboardModel(uuid.New(), nil, &fakeTicketRepoRouterctl{})

	updated, _ := m.Update(dashboardData{
		queueDepth: 3,
		tickets:    []*store.Ticket{{TicketNumber: 7, Priority: store.PriorityHigh, Status: store.TicketOpen, ChatID: chatID}},
	})
	dm := updated.(dashboardModel)

	view := dm.View()
	if !strings.Contains(view, "#7") {
		t.Fatalf("expected rendered ticket number, got %q", view)
	}
	if !strings.Contains(view, "3") {
		t.Fatalf("expected queue depth in view, got %q", view)
	}
}

func TestDashboardModelRendersNoOpenTickets(t *testing.T) {
	m := newDashboardModel(uuid.New(), nil, &fakeTicketRepoRouterctl{})
	updated, _ := m.Update(dashboardData{queueDepth: 0, tickets: nil})
	dm := updated.(dashboardModel)

	if !strings.Contains(dm.View(), "no open tickets") {
		t.Fatalf("expected empty-state message, got %q", dm.View())
	}
}

func TestDashboardModelQuitsOnKeyPress(t *testing.T) {
	m := newDashboardModel(uuid.New(), nil, &fakeTicketRepoRouterctl{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected a quit command on ctrl+c")
	}
}

func TestDashboardModelErrorView(t *testing.T) {
	m := newDashboardModel(uuid.New(), nil, &fakeTicketRepoRouterctl{})
	updated, _ := m.Update(dashboardData{err: context.DeadlineExceeded})
	dm := updated.(dashboardModel)

	if !strings.Contains(dm.View(), "routerctl:") {
		t.Fatalf("expected error view to include the routerctl prefix, got %q", dm.View())
	}
}
