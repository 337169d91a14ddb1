package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/dispatch"
	"github.com/orbitalcx/convoy/internal/knowledge"
	"github.com/orbitalcx/convoy/internal/lock"
	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/rules"
	"github.com/orbitalcx/convoy/internal/store"
	"github.com/orbitalcx/convoy/internal/tracing"
	"github.com/orbitalcx/convoy/internal/wsgateway"
)

const (
	aiLockTTL     = 30 * time.Second
	aiLockMaxWait = 0 // non-blocking: a concurrent run for this chat is a rate-limit skip, not a queue

	defaultMaxImages = 3

	fallbackApology = "Sorry, our system is experiencing a technical issue. Please try again shortly."
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// errIsError marks a trace as failed when generate reports an error outcome
// (LLM transport failure, error response, or an exhausted tool loop) that was
// nonetheless handled by falling back to fallbackApology rather than aborting
// the run.
var errIsError = errors.New("pipeline: generation returned an error result")

// Pipeline generates and delivers AI replies, one chat turn at a time.
type Pipeline struct {
	locks      *lock.Service
	chats      store.ChatRepo
	customers  store.CustomerRepo
	agents     store.AgentRepo
	messages   store.MessageRepo
	credits    store.CreditRepo
	index      *knowledge.Index
	llm        *llmproxy.Client
	tools      *llmproxy.Executor
	hub        *wsgateway.Hub
	dispatcher *dispatch.Dispatcher
	media      MediaFetcher
	tracer     *tracing.Tracer
	cooldown   *alertCooldown

	// creditRate resolves a tenant's per-token billing rate (internal/config's
	// hot-reloadable credits.tenant_rate_overrides); nil means every tenant
	// uses credits.go's defaultRatePerToken.
	creditRate func(tenantID uuid.UUID) float64
}

func New(
	locks *lock.Service,
	chats store.ChatRepo,
	customers store.CustomerRepo,
	agents store.AgentRepo,
	messages store.MessageRepo,
	credits store.CreditRepo,
	index *knowledge.Index,
	llm *llmproxy.Client,
	tools *llmproxy.Executor,
	hub *wsgateway.Hub,
	dispatcher *dispatch.Dispatcher,
	media MediaFetcher,
	tracer *tracing.Tracer,
	creditRate func(tenantID uuid.UUID) float64,
) *Pipeline {
	return &Pipeline{
		locks: locks, chats: chats, customers: customers, agents: agents,
		messages: messages, credits: credits, index: index, llm: llm,
		tools: tools, hub: hub, dispatcher: dispatcher, media: media,
		tracer: tracer, cooldown: newAlertCooldown(),
		creditRate: creditRate,
	}
}

// Process runs one full response turn for a chat. It is the Debounce
// Orchestrator's Processor hook and must never panic: every failure path
// degrades to a persisted, rate-limited apology or a discriminated Result.
func (p *Pipeline) Process(ctx context.Context, chatID uuid.UUID, msgIDStr, priority string) Result {
	msgID, err := uuid.Parse(msgIDStr)
	if err != nil {
		return Result{Success: false, Reason: "invalid_msg_id"}
	}

	lockCtx, lockSpan := p.tracer.StartLiveSpan(ctx, "lock.acquire")
	lease, err := p.locks.Acquire(lockCtx, "ai_v2_lock:"+chatID.String(), aiLockTTL, aiLockMaxWait)
	tracing.EndLiveSpan(lockSpan, err)
	if err != nil {
		slog.Warn("pipeline: chat locked, skipping parallel run", "chat_id", chatID)
		return Result{Success: false, Reason: "locked_rate_limited"}
	}
	defer func() { _ = p.locks.Release(context.WithoutCancel(ctx), lease) }()

	tc, chat, err := p.loadContext(ctx, chatID, msgID, priority)
	if err != nil {
		if store.KindOf(err) == store.KindValidation {
			return Result{Success: false, Reason: err.Error()}
		}
		return p.fail(ctx, chatID, chat, err)
	}

	ctx, at := p.tracer.StartPipelineTrace(ctx, chat.TenantID, chatID, "ai_pipeline", string(chat.Channel))
	var traceErr error
	defer func() { at.End(context.WithoutCancel(ctx), traceErr) }()

	if handoff, _ := rules.ShouldHandoff(tc.settings.Advanced.HandoffTriggers, tc.latestContent); handoff {
		return p.handoffToHuman(ctx, at, chat, tc)
	}
	// outside the agent's availability windows the chat goes to the human
	// queue instead of generating
	if ok, serr := p.agents.WithinSchedule(ctx, chat.SenderAgentID, time.Now().Unix()); serr == nil && !ok {
		return p.handoffToHuman(ctx, at, chat, tc)
	}

	reply, usage, isError := p.generate(ctx, at, tc)

	if isError {
		traceErr = errIsError
		if !p.cooldown.allow(chatID) {
			slog.Warn("pipeline: system alert suppressed by cooldown", "chat_id", chatID)
			return Result{Success: false, Reason: "alert_rate_limit"}
		}
		reply = fallbackApology
	}

	reply = Sanitize(reply)

	aiMsg, err := p.messages.AppendAgent(ctx, &store.Message{
		ChatID:     chatID,
		SenderType: store.SenderAI,
		SenderID:   agentSenderID(tc.agent),
		Content:    reply,
		Metadata: store.MessageMetadata{
			"is_internal":  false,
			"rag_enabled":  tc.ragContext != "",
			"guard_priority": priority,
			"token_usage":  usage,
			"is_error":     isError,
		},
	})
	if err != nil {
		traceErr = err
		return Result{Success: false, Reason: "persist_failed"}
	}
	_ = p.chats.Touch(ctx, chatID, time.Now().Unix())

	p.fanOut(ctx, at, chat, aiMsg, tc.customerName)

	if !isError {
		var rate float64
		if p.creditRate != nil {
			rate = p.creditRate(chat.TenantID)
		}
		recordCredits(ctx, p.credits, chat.TenantID, chatID, aiMsg.ID, usage, rate, reply)
	}

	return Result{Success: true, AIMessageID: aiMsg.ID}
}

// fail persists and broadcasts a rate-limited apology on any hard failure
// after the chat was successfully loaded.
func (p *Pipeline) fail(ctx context.Context, chatID uuid.UUID, chat *store.Chat, cause error) Result {
	slog.Error("pipeline: critical failure", "chat_id", chatID, "error", cause)
	if chat == nil {
		return Result{Success: false, Reason: cause.Error()}
	}
	if !p.cooldown.allow(chatID) {
		return Result{Success: false, Reason: "alert_rate_limit_suppressed"}
	}

	aiMsg, err := p.messages.AppendAgent(ctx, &store.Message{
		ChatID:     chatID,
		SenderType: store.SenderAI,
		SenderID:   "ai_agent",
		Content:    fallbackApology,
		Metadata:   store.MessageMetadata{"error": cause.Error(), "fallback": true, "is_error": true},
	})
	if err != nil {
		return Result{Success: false, Reason: cause.Error()}
	}
	p.fanOut(ctx, nil, chat, aiMsg, "Customer")
	return Result{Success: false, Reason: cause.Error()}
}

// loadContext validates the chat, loads settings/history/images, runs the
// vision interceptor, and retrieves RAG context.
func (p *Pipeline) loadContext(ctx context.Context, chatID, msgID uuid.UUID, priority string) (*turnContext, *store.Chat, error) {
	chat, err := p.chats.Get(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if chat.HandledBy != store.HandledByAI {
		return nil, chat, store.ErrValidation("not_ai_chat", nil)
	}

	customerName := "Customer"
	if customer, err := p.customers.Get(ctx, chat.CustomerID); err == nil && customer.Name != "" {
		customerName = customer.Name
	}

	var agent *store.Agent
	if a, err := p.agents.Get(ctx, chat.SenderAgentID); err == nil {
		agent = a
	}
	settings, err := p.agents.Settings(ctx, chat.SenderAgentID)
	if err != nil {
		settings = &store.AgentSettings{}
	}

	latestMsg, err := p.messages.Get(ctx, msgID)
	if err != nil {
		return nil, chat, err
	}

	historyLimit := settings.EffectiveHistoryLimit()
	history, err := p.messages.FetchHistory(ctx, chatID, msgID, historyLimit)
	if err != nil {
		history = nil
	}

	images := collectImages(latestMsg, history)

	tc := &turnContext{
		chat:          chat,
		customerName:  customerName,
		agent:         agent,
		settings:      settings,
		latestContent: latestMsg.Content,
		latestMeta:    latestMsg.Metadata,
		history:       history,
		images:        images,
	}

	if len(images) > 0 {
		tc.visionContext = runVisionInterception(ctx, p.llm, p.media, images[0].URL)
	}

	ragQuery := strings.TrimSpace(tc.latestContent + " " + tc.visionContext)
	if ragQuery != "" && p.index != nil {
		chunks, err := p.index.Retrieve(ctx, chat.TenantID, ragQuery, 5)
		if err != nil {
			slog.Warn("pipeline: retrieval failed, continuing without context", "chat_id", chatID, "error", err)
		} else {
			tc.ragContext = knowledge.Format(chunks)
		}
	}

	return tc, chat, nil
}

// generate assembles the system prompt and messages and drives the LLM,
// with the bounded tool loop when an executor is wired.
func (p *Pipeline) generate(ctx context.Context, at *tracing.ActiveTrace, tc *turnContext) (string, llmproxy.Usage, bool) {
	var tools []llmproxy.Tool
	if p.tools != nil {
		tools = p.tools.Specs()
	}

	system := buildSystemPrompt(systemPromptConfig{
		persona:       tc.settings.Persona,
		customerName:  tc.customerName,
		handoff:       tc.settings.Advanced.HandoffTriggers,
		ragContext:    tc.ragContext,
		tools:         tools,
		userSentImage: len(tc.images) > 0,
	})

	messages := make([]llmproxy.Message, 0, len(tc.history)+2)
	messages = append(messages, llmproxy.Message{Role: "system", Content: system})
	for _, h := range tc.history {
		role := "user"
		if h.SenderType != store.SenderCustomer {
			role = "assistant"
		}
		messages = append(messages, llmproxy.Message{Role: role, Content: h.Content})
	}

	userMsg := llmproxy.Message{Role: "user", Content: tc.latestContent}
	for _, img := range tc.images {
		userMsg.Images = append(userMsg.Images, llmproxy.ImageURL{URL: img.URL})
	}
	messages = append(messages, userMsg)

	req := llmproxy.CompletionRequest{
		Messages:       messages,
		Category:       "chat",
		NameUser:       tc.customerName,
		Temperature:    tc.settings.Advanced.Temperature.Float(),
		OrganizationID: tc.chat.TenantID.String(),
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	if p.tools == nil {
		llmCtx, span := at.StartSpan(ctx, tracing.SpanLLMCall, "llm.complete")
		resp, err := p.llm.Complete(llmCtx, req)
		if err != nil {
			span.End(llmCtx, 0, 0, err)
			return "", llmproxy.Usage{}, true
		}
		if resp.Metadata.IsError || len(resp.Choices) == 0 {
			span.End(llmCtx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, fmt.Errorf("llm: error or empty response"))
			return "", resp.Usage, true
		}
		span.End(llmCtx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)
		return resp.Choices[0].Message.Content, resp.Usage, false
	}

	out := runToolLoop(ctx, p.llm, p.tools, req, tc.chat.TenantID, tc.chat.SenderAgentID, at)
	return out.content, out.usage, out.isError
}

// fanOut delivers one persisted reply: WebSocket broadcast and channel
// dispatch run concurrently, best-effort.
func (p *Pipeline) fanOut(ctx context.Context, at *tracing.ActiveTrace, chat *store.Chat, msg *store.Message, customerName string) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if p.hub == nil {
			return
		}
		p.hub.BroadcastNewMessage(chat.TenantID, map[string]any{
			"chat_id":       chat.ID,
			"message_id":    msg.ID,
			"customer_id":   chat.CustomerID,
			"customer_name": customerName,
			"content":       msg.Content,
			"channel":       chat.Channel,
			"handled_by":    chat.HandledBy,
			"sender_type":   "ai",
			"sender_id":     msg.SenderID,
		})
	}()

	go func() {
		defer wg.Done()
		if p.dispatcher == nil || msg.Content == "" {
			return
		}
		dispatchCtx, span := at.StartSpan(ctx, tracing.SpanDispatch, "dispatch")
		result := p.dispatcher.Dispatch(dispatchCtx, chat, msg.Content, nil)
		var dispatchErr error
		if !result.Success {
			dispatchErr = fmt.Errorf("dispatch: %s", result.Reason)
			slog.Warn("pipeline: dispatch failed", "chat_id", chat.ID, "reason", result.Reason)

			failedMeta := make(store.MessageMetadata, len(msg.Metadata)+2)
			for k, v := range msg.Metadata {
				failedMeta[k] = v
			}
			failedMeta["delivery_failed"] = true
			failedMeta["reason"] = result.Reason
			if uerr := p.messages.UpdateMetadata(dispatchCtx, msg.ID, failedMeta); uerr != nil {
				slog.Error("pipeline: delivery_failed metadata update failed", "message_id", msg.ID, "error", uerr)
			}
		}
		span.End(dispatchCtx, 0, 0, dispatchErr)
	}()

	wg.Wait()
}

// handoffToHuman implements the "Handoff" transition named in the GLOSSARY:
// when the configured triggers fire, the chat moves to human handling
// instead of generating an AI reply, persisting and broadcasting a short
// acknowledgment so the customer isn't left without a response.
func (p *Pipeline) handoffToHuman(ctx context.Context, at *tracing.ActiveTrace, chat *store.Chat, tc *turnContext) Result {
	const ack = "Thanks for reaching out — I'm connecting you with a member of our team who can help."

	if err := p.chats.SetHandledBy(ctx, chat.ID, store.HandledByHuman); err != nil {
		slog.Error("pipeline: handoff transition failed", "chat_id", chat.ID, "error", err)
	}

	aiMsg, err := p.messages.AppendAgent(ctx, &store.Message{
		ChatID:     chat.ID,
		SenderType: store.SenderAI,
		SenderID:   agentSenderID(tc.agent),
		Content:    ack,
		Metadata:   store.MessageMetadata{"is_internal": false, "handoff": true},
	})
	if err != nil {
		return Result{Success: false, Reason: "handoff_persist_failed"}
	}
	_ = p.chats.Touch(ctx, chat.ID, time.Now().Unix())

	p.fanOut(ctx, at, chat, aiMsg, tc.customerName)
	if p.hub != nil {
		p.hub.BroadcastChatUpdate(chat.TenantID, "handoff", map[string]any{"chat_id": chat.ID, "handled_by": "human"})
	}

	return Result{Success: true, AIMessageID: aiMsg.ID}
}

func agentSenderID(agent *store.Agent) string {
	if agent == nil {
		return "ai_agent"
	}
	return agent.ID.String()
}

// collectImages gathers the current message's media plus the last two
// history messages' customer-sent media, deduplicated, capped at
// defaultMaxImages.
func collectImages(latest *store.Message, history []*store.Message) []ImageRef {
	var out []ImageRef
	seen := make(map[string]bool)

	add := func(url, mediaType string) {
		if url == "" || seen[url] {
			return
		}
		if !looksLikeImage(mediaType, url) {
			return
		}
		seen[url] = true
		out = append(out, ImageRef{URL: url, Type: mediaType})
	}

	add(latest.Metadata.MediaURL(), latest.Metadata.MediaType())

	start := len(history) - 2
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		if h.SenderType != store.SenderCustomer {
			continue
		}
		add(h.Metadata.MediaURL(), h.Metadata.MediaType())
	}

	if len(out) > defaultMaxImages {
		out = out[:defaultMaxImages]
	}
	return out
}

func looksLikeImage(mediaType, url string) bool {
	if strings.Contains(strings.ToLower(mediaType), "image") {
		return true
	}
	lower := strings.ToLower(url)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}
