package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orbitalcx/convoy/internal/config"
	"github.com/orbitalcx/convoy/internal/store"
	"github.com/orbitalcx/convoy/internal/store/pg"
)

var routerctlTenant string

var routerctlCmd = &cobra.Command{
	Use:   "routerctl",
	Short: "Operator TUI: live debounce queue depth and open tickets",
	RunE:  runRouterctl,
}

func init() {
	routerctlCmd.Flags().StringVar(&routerctlTenant, "tenant", "", "tenant id to watch (required)")
}

func runRouterctl(cmd *cobra.Command, _ []string) error {
	tenantID, err := uuid.Parse(routerctlTenant)
	if err != nil {
		return fmt.Errorf("routerctl: --tenant must be a valid UUID: %w", err)
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	db, err := pg.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	m := newDashboardModel(tenantID, rdb, pg.NewTicketStore(db))
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// --- bubbletea model ---------------------------------------------------
//
// A periodic tea.Tick message drives a refresh of operational metrics; the
// dashboard is a thin read-only view over the same Redis/Postgres state the
// services use, not a second source of truth.

const dashboardRefresh = 2 * time.Second

type tickMsg time.Time

type dashboardData struct {
	queueDepth int
	tickets    []*store.Ticket
	err        error
}

type dashboardModel struct {
	tenantID uuid.UUID
	rdb      *redis.Client
	tickets  store.TicketRepo
	spin     spinner.Model

	data   dashboardData
	loaded bool
}

func newDashboardModel(tenantID uuid.UUID, rdb *redis.Client, tickets store.TicketRepo) dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = dashDim
	return dashboardModel{tenantID: tenantID, rdb: rdb, tickets: tickets, spin: s}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tickEvery(), m.spin.Tick)
}

func tickEvery() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboardModel) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		var depth int
		var tickets []*store.Ticket
		g.Go(func() error {
			keys, err := m.rdb.Keys(gctx, "queue:ctx:*").Result()
			if err != nil {
				return err
			}
			depth = len(keys)
			return nil
		})
		g.Go(func() error {
			var err error
			tickets, err = m.tickets.ListOpen(gctx, m.tenantID)
			return err
		})
		if err := g.Wait(); err != nil {
			return dashboardData{err: err}
		}
		return dashboardData{queueDepth: depth, tickets: tickets}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.refresh(), tickEvery())
	case dashboardData:
		m.data = msg
		m.loaded = true
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	dashTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	dashDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dashWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// padField truncates and right-pads s to w terminal cells, counting display
// width rather than bytes, so the ticket table's priority and status columns
// stay aligned.
func padField(s string, w int) string {
	return runewidth.FillRight(runewidth.Truncate(s, w, "…"), w)
}

func (m dashboardModel) View() string {
	if !m.loaded {
		return m.spin.View() + " loading…\n"
	}
	if m.data.err != nil {
		return dashWarn.Render(fmt.Sprintf("routerctl: %v", m.data.err)) + "\n"
	}

	out := dashTitle.Render(fmt.Sprintf("convoy routerctl — tenant %s", m.tenantID)) + "\n\n"
	out += fmt.Sprintf("debounce queues in flight: %d\n\n", m.data.queueDepth)

	if len(m.data.tickets) == 0 {
		out += dashDim.Render("no open tickets") + "\n"
	} else {
		out += dashTitle.Render("open tickets") + "\n"
		for _, t := range m.data.tickets {
			out += fmt.Sprintf("  #%d  %s %s chat=%s\n",
				t.TicketNumber, padField(string(t.Priority), 8), padField(string(t.Status), 10), t.ChatID)
		}
	}

	out += "\n" + dashDim.Render("q to quit, refreshes every 2s")
	return out
}
