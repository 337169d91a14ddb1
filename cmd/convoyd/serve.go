package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/orbitalcx/convoy/internal/channel"
	"github.com/orbitalcx/convoy/internal/config"
	"github.com/orbitalcx/convoy/internal/debounce"
	"github.com/orbitalcx/convoy/internal/dispatch"
	"github.com/orbitalcx/convoy/internal/knowledge"
	"github.com/orbitalcx/convoy/internal/lock"
	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/pipeline"
	"github.com/orbitalcx/convoy/internal/router"
	"github.com/orbitalcx/convoy/internal/rules"
	"github.com/orbitalcx/convoy/internal/store"
	"github.com/orbitalcx/convoy/internal/store/pg"
	"github.com/orbitalcx/convoy/internal/ticketguard"
	"github.com/orbitalcx/convoy/internal/tracing"
	"github.com/orbitalcx/convoy/internal/wsgateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook gateway, debounce orchestrator, and AI pipeline",
	RunE:  runServe,
}

// services bundles the long-lived collaborators serve wires up, so the HTTP
// handlers and the debounce Processor hook can share them without reaching
// through package-level globals.
type services struct {
	cfg       *atomic.Pointer[config.Config]
	router    *router.Router
	orch      *debounce.Orchestrator
	hub       *wsgateway.Hub
	tenants   store.TenantRepo
	customers store.CustomerRepo
	tickets   store.TicketRepo
	guard     *ticketguard.Guard
	escalator *rules.Escalator
	logger    *slog.Logger
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("convoyd: starting", "config_path", path, "bind_addr", cfg.BindAddr)

	provider, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing provider: %w", err)
	}
	defer provider.Shutdown(context.Background())

	db, err := pg.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	tenants := pg.NewTenantStore(db)
	agents := pg.NewAgentStore(db)
	customers := pg.NewCustomerStore(db)
	chats := pg.NewChatStore(db)
	messages := pg.NewMessageStore(db)
	credits := pg.NewCreditStore(db)
	tickets := pg.NewTicketStore(db)
	knowledgeChunks := pg.NewKnowledgeStore(db)
	tracingStore := pg.NewTracingStore(db)

	locks := lock.New(rdb)
	tracer := tracing.New(provider, tracingStore)
	channels := channel.NewRegistry()

	rtr := router.New(locks, agents, customers, chats, messages, channels)

	llm := llmproxy.New(cfg.LLMProxy.BaseURL)
	tools := llmproxy.NewExecutor()

	var vectors *knowledge.VectorStore
	if cfg.Knowledge.VectorDBPath != "" {
		vectors, err = knowledge.NewVectorStore(cfg.Knowledge.VectorDBPath, nil)
		if err != nil {
			return fmt.Errorf("open knowledge vector store: %w", err)
		}
	}
	var reranker *knowledge.Reranker
	if cfg.Knowledge.RerankBaseURL != "" {
		reranker = knowledge.NewReranker(cfg.Knowledge.RerankBaseURL)
	}
	index := knowledge.NewIndex(knowledgeChunks, vectors, reranker)

	hub := wsgateway.NewHub()
	bridge := wsgateway.NewBridge(rdb, hub)
	go bridge.Run(ctx)

	var media *dispatch.MediaStore
	if cfg.S3.Bucket != "" {
		media, err = dispatch.NewMediaStore(ctx, dispatch.MediaConfig{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("open media store: %w", err)
		}
	}
	dispatcher := dispatch.New(agents, customers, media)

	guard := ticketguard.New(ticketguard.DefaultRules(), llm)
	escalator, err := rules.NewEscalator()
	if err != nil {
		return fmt.Errorf("build ticket escalator: %w", err)
	}

	var liveCfg atomic.Pointer[config.Config]
	liveCfg.Store(&cfg)

	creditRate := func(tenantID uuid.UUID) float64 {
		return liveCfg.Load().CreditRateFor(tenantID.String())
	}

	var mediaFetcher pipeline.MediaFetcher
	if media != nil {
		mediaFetcher = media
	}
	pl := pipeline.New(locks, chats, customers, agents, messages, credits, index, llm, tools, hub, dispatcher, mediaFetcher, tracer, creditRate)

	orch := debounce.New(rdb, cfg.DebounceWindow(), func(ctx context.Context, chatID uuid.UUID, msgID, priority string) {
		result := pl.Process(ctx, chatID, msgID, priority)
		if !result.Success {
			logger.Warn("pipeline: run did not complete", "chat_id", chatID, "reason", result.Reason)
		}
	})
	if err := orch.Supervise(ctx); err != nil {
		logger.Error("debounce: supervise sweep failed", "error", err)
	}

	svc := &services{
		cfg: &liveCfg, router: rtr, orch: orch, hub: hub,
		tenants: tenants, customers: customers, tickets: tickets, guard: guard,
		escalator: escalator, logger: logger,
	}

	watcher := config.NewWatcher(path, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config: hot-reload disabled", "error", err)
	} else {
		go func() {
			for newCfg := range watcher.Events() {
				updated := newCfg
				liveCfg.Store(&updated)
			}
		}()
	}

	srv := &http.Server{Addr: cfg.BindAddr, Handler: svc.routes()}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("convoyd: listening", "addr", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("convoyd: shutting down")
	case err := <-errCh:
		logger.Error("convoyd: listener failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	orch.Shutdown()
	return nil
}

// routes builds the webhook and operator-WS mux on net/http's ServeMux,
// which is all a handful of fixed routes need.
func (s *services) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /webhooks/{channel}", s.handleWebhook)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *services) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// inboundPayload is the channel-agnostic wire shape a webhook posts.
type inboundPayload struct {
	TenantID         uuid.UUID              `json:"tenant_id"`
	AgentID          uuid.UUID              `json:"agent_id"`
	Contact          string                 `json:"contact"`
	Content          string                 `json:"content"`
	CustomerName     string                 `json:"customer_name"`
	Priority         string                 `json:"priority"`
	MessageMetadata  store.MessageMetadata  `json:"message_metadata"`
	CustomerMetadata store.CustomerMetadata `json:"customer_metadata"`
}

func (s *services) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ch := store.Channel(r.PathValue("channel"))

	var payload inboundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	// refuse events naming a tenant this deployment doesn't know
	if s.tenants != nil {
		if _, err := s.tenants.Get(r.Context(), payload.TenantID); err != nil {
			http.Error(w, "unknown tenant", http.StatusNotFound)
			return
		}
	}

	result, err := s.router.Route(r.Context(), router.Inbound{
		TenantID:         payload.TenantID,
		AgentID:          payload.AgentID,
		Channel:          ch,
		Contact:          payload.Contact,
		Content:          payload.Content,
		CustomerName:     payload.CustomerName,
		MessageMetadata:  payload.MessageMetadata,
		CustomerMetadata: payload.CustomerMetadata,
	})
	if err != nil {
		if store.KindOf(err) == store.KindValidation {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("router: route failed", "channel", ch, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if result.HandledBy == store.HandledByAI {
		priority := payload.Priority
		if priority == "" {
			priority = "normal"
		}
		if err := s.orch.Enqueue(r.Context(), result.ChatID, result.MessageID.String(), priority); err != nil {
			s.logger.Error("debounce: enqueue failed", "chat_id", result.ChatID, "error", err)
		}
	}

	s.evaluateTicket(r.Context(), result, payload)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// evaluateTicket runs the ticket guard on every inbound customer message and,
// when it fires, creates the ticket and broadcasts the ticket_created chat
// update. Best-effort: a guard failure never fails the webhook response the
// customer's message already succeeded on.
func (s *services) evaluateTicket(ctx context.Context, result *router.Result, payload inboundPayload) {
	customer, err := s.customers.Get(ctx, result.CustomerID)
	if err != nil {
		s.logger.Warn("ticketguard: customer lookup failed", "customer_id", result.CustomerID, "error", err)
		return
	}
	messageCount := customer.Metadata.Int("message_count")

	decision, err := s.guard.Evaluate(ctx, payload.Content, payload.CustomerName, messageCount)
	if err != nil {
		s.logger.Warn("ticketguard: evaluate failed", "chat_id", result.ChatID, "error", err)
		return
	}
	if !decision.ShouldCreateTicket {
		return
	}

	if existing, err := s.tickets.GetOpenByChat(ctx, result.ChatID); err == nil && existing != nil {
		s.maybeEscalate(ctx, existing, payload, messageCount)
		return
	}

	if _, err := ticketguard.CreateTicket(ctx, s.tickets, s.hub, payload.TenantID, result.ChatID, decision); err != nil {
		s.logger.Error("ticketguard: ticket creation failed", "chat_id", result.ChatID, "error", err)
	}
}

// maybeEscalate bumps an already-open ticket's priority one step when the
// tenant's configured escalation predicate fires on a repeat contact, and
// broadcasts the change to connected operators.
func (s *services) maybeEscalate(ctx context.Context, ticket *store.Ticket, payload inboundPayload, messageCount int) {
	if s.escalator == nil || s.cfg == nil || ticket.Priority == store.PriorityUrgent {
		return
	}
	expr := s.cfg.Load().EscalationExprFor(payload.TenantID.String())
	if expr == "" {
		return
	}

	fire, err := s.escalator.ShouldEscalate(expr, rules.EscalationInput{
		MessageCount: int64(messageCount),
		Priority:     string(ticket.Priority),
		Category:     ticket.Category,
		MinutesOpen:  int64(time.Since(ticket.CreatedAt).Minutes()),
	})
	if err != nil {
		s.logger.Warn("ticketguard: escalation predicate failed", "ticket_id", ticket.ID, "error", err)
		return
	}
	if !fire {
		return
	}

	next := bumpPriority(ticket.Priority)
	if err := s.tickets.UpdatePriority(ctx, ticket.ID, next); err != nil {
		s.logger.Error("ticketguard: priority escalation failed", "ticket_id", ticket.ID, "error", err)
		return
	}
	s.hub.BroadcastChatUpdate(payload.TenantID, "ticket_escalated", map[string]any{
		"ticket_id": ticket.ID,
		"chat_id":   ticket.ChatID,
		"priority":  string(next),
	})
}

func bumpPriority(p store.TicketPriority) store.TicketPriority {
	switch p {
	case store.PriorityLow:
		return store.PriorityMedium
	case store.PriorityMedium:
		return store.PriorityHigh
	default:
		return store.PriorityUrgent
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *services) handleWS(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(r.URL.Query().Get("tenant_id"))
	if err != nil {
		http.Error(w, "missing or invalid tenant_id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("wsgateway: upgrade failed", "error", err)
		return
	}

	conn := s.hub.Attach(ws, tenantID, userID)
	s.hub.Serve(conn)
}
