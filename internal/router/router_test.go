package router

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/channel"
	"github.com/orbitalcx/convoy/internal/lock"
	"github.com/orbitalcx/convoy/internal/store"
)

type fakeLocker struct {
	acquireErr error
	released   bool
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*lock.Lease, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return &lock.Lease{Key: key, Token: "t"}, nil
}

func (f *fakeLocker) Release(ctx context.Context, lease *lock.Lease) error {
	f.released = true
	return nil
}

type fakeAgentRepo struct {
	agent *store.Agent
}

func (f *fakeAgentRepo) Get(ctx context.Context, agentID uuid.UUID) (*store.Agent, error) {
	if f.agent == nil {
		return nil, store.ErrNotFound("agent not found", nil)
	}
	return f.agent, nil
}

func (f *fakeAgentRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*store.Agent, error) {
	return nil, nil
}

func (f *fakeAgentRepo) Integration(ctx context.Context, agentID uuid.UUID, ch store.Channel) (*store.AgentIntegration, error) {
	return nil, store.ErrNotFound("integration not found", nil)
}

func (f *fakeAgentRepo) Settings(ctx context.Context, agentID uuid.UUID) (*store.AgentSettings, error) {
	return &store.AgentSettings{AgentID: agentID}, nil
}

func (f *fakeAgentRepo) WithinSchedule(ctx context.Context, agentID uuid.UUID, nowUnix int64) (bool, error) {
	return true, nil
}

type routerFakeCustomerRepo struct {
	customer     *store.Customer
	updatedMeta  store.CustomerMetadata
}

func (f *routerFakeCustomerRepo) Upsert(ctx context.Context, tenantID uuid.UUID, ch store.Channel, contactKey, displayName string, meta store.MessageMetadata) (*store.Customer, error) {
	return f.customer, nil
}

func (f *routerFakeCustomerRepo) Get(ctx context.Context, customerID uuid.UUID) (*store.Customer, error) {
	return f.customer, nil
}

func (f *routerFakeCustomerRepo) UpdateMetadata(ctx context.Context, customerID uuid.UUID, metadata store.CustomerMetadata) error {
	f.updatedMeta = metadata
	return nil
}

type fakeChatRepo struct {
	active   *store.Chat
	created  *store.Chat
	touched  bool
	reopened bool
}

func (f *fakeChatRepo) FindActive(ctx context.Context, tenantID, customerID uuid.UUID, ch store.Channel, senderAgentID uuid.UUID) (*store.Chat, error) {
	if f.active == nil {
		return nil, store.ErrNotFound("no active chat", nil)
	}
	return f.active, nil
}

func (f *fakeChatRepo) Create(ctx context.Context, chat *store.Chat) (*store.Chat, error) {
	chat.ID = uuid.New()
	f.created = chat
	return chat, nil
}

func (f *fakeChatRepo) Get(ctx context.Context, chatID uuid.UUID) (*store.Chat, error) {
	return f.active, nil
}

func (f *fakeChatRepo) Reopen(ctx context.Context, chatID uuid.UUID) (*store.Chat, error) {
	f.reopened = true
	reopenedChat := *f.active
	reopenedChat.Status = store.ChatOpen
	return &reopenedChat, nil
}

func (f *fakeChatRepo) Touch(ctx context.Context, chatID uuid.UUID, lastMessageAt int64) error {
	f.touched = true
	return nil
}

func (f *fakeChatRepo) SetHandledBy(ctx context.Context, chatID uuid.UUID, by store.HandledBy) error {
	return nil
}

func (f *fakeChatRepo) IncrementUnread(ctx context.Context, chatID uuid.UUID) error { return nil }
func (f *fakeChatRepo) ClearUnread(ctx context.Context, chatID uuid.UUID) error     { return nil }

type fakeMessageRepo struct {
	merged   bool
	inserted *store.Message
}

func (f *fakeMessageRepo) InsertOrMergeCustomer(ctx context.Context, msg *store.Message) (*store.Message, bool, error) {
	msg.ID = uuid.New()
	f.inserted = msg
	return msg, f.merged, nil
}

func (f *fakeMessageRepo) AppendAgent(ctx context.Context, msg *store.Message) (*store.Message, error) {
	msg.ID = uuid.New()
	return msg, nil
}

func (f *fakeMessageRepo) Get(ctx context.Context, messageID uuid.UUID) (*store.Message, error) {
	return nil, store.ErrNotFound("message not found", nil)
}

func (f *fakeMessageRepo) FetchHistory(ctx context.Context, chatID, excludeID uuid.UUID, limit int) ([]*store.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) UpdateMetadata(ctx context.Context, messageID uuid.UUID, metadata store.MessageMetadata) error {
	return nil
}

func newTestRouter(locks *fakeLocker, agents *fakeAgentRepo, customers *routerFakeCustomerRepo, chats *fakeChatRepo, messages *fakeMessageRepo) *Router {
	return New(locks, agents, customers, chats, messages, channel.NewRegistry())
}

func TestApplyIdentitySwapWhatsAppGroupParticipant(t *testing.T) {
	variant, _ := channel.NewRegistry().Get(store.ChannelWhatsApp)
	meta := store.MessageMetadata{"is_group": true, "participant": "6281234@c.us"}

	contact, out := applyIdentitySwap(store.ChannelWhatsApp, "12036304@g.us", meta, variant)

	if contact != "6281234" {
		t.Fatalf("expected swapped contact %q, got %q", "6281234", contact)
	}
	if out.TargetGroupID() != "12036304@g.us" {
		t.Fatalf("expected target_group_id preserved, got %q", out.TargetGroupID())
	}
	if out.Bool("is_lid_user") {
		t.Fatalf("expected is_lid_user false for a @c.us participant")
	}
}

func TestApplyIdentitySwapWhatsAppGroupLIDParticipant(t *testing.T) {
	variant, _ := channel.NewRegistry().Get(store.ChannelWhatsApp)
	meta := store.MessageMetadata{"is_group": true, "participant": "987654@lid"}

	_, out := applyIdentitySwap(store.ChannelWhatsApp, "12036304@g.us", meta, variant)

	if !out.Bool("is_lid_user") {
		t.Fatalf("expected is_lid_user true for a @lid participant")
	}
	if out.String("whatsapp_lid") != "987654@lid" {
		t.Fatalf("expected whatsapp_lid preserved, got %q", out.String("whatsapp_lid"))
	}
}

func TestApplyIdentitySwapNonGroupPassesThrough(t *testing.T) {
	variant, _ := channel.NewRegistry().Get(store.ChannelWhatsApp)
	meta := store.MessageMetadata{}

	contact, out := applyIdentitySwap(store.ChannelWhatsApp, "+62 812-3456-7890", meta, variant)
	if contact != "6281234567890" {
		t.Fatalf("expected normalized contact, got %q", contact)
	}
	if out.TargetGroupID() != "" {
		t.Fatalf("expected no target_group_id for a non-group message")
	}
}

func TestContainsString(t *testing.T) {
	if !containsString([]string{"whatsapp", "email"}, "email") {
		t.Fatalf("expected containsString to find present element")
	}
	if containsString([]string{"whatsapp"}, "telegram") {
		t.Fatalf("expected containsString to reject absent element")
	}
}


func TestRouteMergedDuplicateLeavesChatStateAlone(t *testing.T) {
	customer := &store.Customer{BaseModel: store.BaseModel{ID: uuid.New()}, Metadata: store.CustomerMetadata{}}
	active := &store.Chat{
		BaseModel: store.BaseModel{ID: uuid.New()},
		Status:    store.ChatOpen,
		HandledBy: store.HandledByAI,
		Channel:   store.ChannelWhatsApp,
	}
	locks := &fakeLocker{}
	chats := &fakeChatRepo{active: active}
	messages := &fakeMessageRepo{merged: true}
	rtr := newTestRouter(locks, &fakeAgentRepo{}, &routerFakeCustomerRepo{customer: customer}, chats, messages)

	result, err := rtr.Route(context.Background(), Inbound{
		TenantID: uuid.New(),
		AgentID:  uuid.New(),
		Channel:  store.ChannelWhatsApp,
		Contact:  "6281234567890",
		Content:  "hi",
		MessageMetadata: store.MessageMetadata{"whatsapp_message_id": "wamid.ABC"},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.IsMergedEvent {
		t.Fatalf("expected is_merged_event for a duplicate delivery")
	}
	if chats.touched || chats.reopened {
		t.Fatalf("expected no chat state change on a merged duplicate")
	}
	if !locks.released {
		t.Fatalf("expected the router lock to be released")
	}
}

func TestRouteReopensResolvedChat(t *testing.T) {
	customer := &store.Customer{BaseModel: store.BaseModel{ID: uuid.New()}, Metadata: store.CustomerMetadata{}}
	active := &store.Chat{
		BaseModel: store.BaseModel{ID: uuid.New()},
		Status:    store.ChatResolved,
		HandledBy: store.HandledByAI,
		Channel:   store.ChannelWhatsApp,
	}
	chats := &fakeChatRepo{active: active}
	rtr := newTestRouter(&fakeLocker{}, &fakeAgentRepo{}, &routerFakeCustomerRepo{customer: customer}, chats, &fakeMessageRepo{})

	result, err := rtr.Route(context.Background(), Inbound{
		TenantID: uuid.New(),
		AgentID:  uuid.New(),
		Channel:  store.ChannelWhatsApp,
		Contact:  "6281234567890",
		Content:  "are you still there?",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.WasReopened {
		t.Fatalf("expected was_reopened for a resolved chat receiving inbound")
	}
	if result.Status != store.ChatOpen {
		t.Fatalf("expected chat status open after reopen, got %q", result.Status)
	}
	if !chats.reopened {
		t.Fatalf("expected Reopen to be called on the chat store")
	}
}

func TestRouteCreatesChatForNewCustomer(t *testing.T) {
	customer := &store.Customer{BaseModel: store.BaseModel{ID: uuid.New()}, Metadata: store.CustomerMetadata{}}
	agent := &store.Agent{BaseModel: store.BaseModel{ID: uuid.New()}}
	chats := &fakeChatRepo{}
	customers := &routerFakeCustomerRepo{customer: customer}
	rtr := newTestRouter(&fakeLocker{}, &fakeAgentRepo{agent: agent}, customers, chats, &fakeMessageRepo{})

	result, err := rtr.Route(context.Background(), Inbound{
		TenantID: uuid.New(),
		AgentID:  agent.ID,
		Channel:  store.ChannelWhatsApp,
		Contact:  "6281234567890",
		Content:  "halo admin",
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.IsNewChat {
		t.Fatalf("expected is_new_chat for a first contact")
	}
	if result.HandledBy != store.HandledByAI {
		t.Fatalf("expected an AI agent's chat to be handled_by ai, got %q", result.HandledBy)
	}
	if customers.updatedMeta.Int("message_count") != 1 {
		t.Fatalf("expected message_count bumped to 1, got %d", customers.updatedMeta.Int("message_count"))
	}
	if customers.updatedMeta.String("preferred_channel") != "whatsapp" {
		t.Fatalf("expected preferred_channel whatsapp, got %q", customers.updatedMeta.String("preferred_channel"))
	}
}

func TestRouteRejectsEmptyContact(t *testing.T) {
	rtr := newTestRouter(&fakeLocker{}, &fakeAgentRepo{}, &routerFakeCustomerRepo{}, &fakeChatRepo{}, &fakeMessageRepo{})

	for _, contact := range []string{"", "  ", "none", "None"} {
		if _, err := rtr.Route(context.Background(), Inbound{Channel: store.ChannelWhatsApp, Contact: contact}); store.KindOf(err) != store.KindValidation {
			t.Errorf("Route(contact=%q): expected validation error, got %v", contact, err)
		}
	}
}

func TestRouteLockTimeoutHasNoSideEffects(t *testing.T) {
	locks := &fakeLocker{acquireErr: store.ErrLockTimeout("contended", nil)}
	chats := &fakeChatRepo{}
	messages := &fakeMessageRepo{}
	rtr := newTestRouter(locks, &fakeAgentRepo{}, &routerFakeCustomerRepo{}, chats, messages)

	_, err := rtr.Route(context.Background(), Inbound{
		TenantID: uuid.New(),
		AgentID:  uuid.New(),
		Channel:  store.ChannelWhatsApp,
		Contact:  "6281234567890",
	})
	if store.KindOf(err) != store.KindLockTimeout {
		t.Fatalf("expected lock timeout kind, got %v", err)
	}
	if messages.inserted != nil || chats.created != nil {
		t.Fatalf("expected no side effects after a lock timeout")
	}
}
