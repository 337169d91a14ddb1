// Package router implements the message router: the single entry point
// for every inbound channel event. It performs the identity swap for group
// messages, upserts the customer, resolves or creates the active chat,
// dedupes at-least-once delivery, and updates customer/chat state — all
// under a per-contact lock from internal/lock.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/channel"
	"github.com/orbitalcx/convoy/internal/lock"
	"github.com/orbitalcx/convoy/internal/store"
)

const (
	lockTTL     = 20 * time.Second
	lockMaxWait = 5 * time.Second
)

// Result is Route's discriminated output.
type Result struct {
	ChatID        uuid.UUID
	MessageID     uuid.UUID
	CustomerID    uuid.UUID
	IsNewChat     bool
	WasReopened   bool
	HandledBy     store.HandledBy
	Status        store.ChatStatus
	Channel       store.Channel
	AgentID       uuid.UUID
	IsMergedEvent bool
}

// Locker is the subset of the lock service Route needs, satisfied by
// *lock.Service.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*lock.Lease, error)
	Release(ctx context.Context, lease *lock.Lease) error
}

// Router wires together the lock service, the store repositories, and the channel
// variant registry to implement route().
type Router struct {
	locks     Locker
	agents    store.AgentRepo
	customers store.CustomerRepo
	chats     store.ChatRepo
	messages  store.MessageRepo
	channels  *channel.Registry
}

func New(locks Locker, agents store.AgentRepo, customers store.CustomerRepo, chats store.ChatRepo, messages store.MessageRepo, channels *channel.Registry) *Router {
	return &Router{locks: locks, agents: agents, customers: customers, chats: chats, messages: messages, channels: channels}
}

// Inbound is the channel-agnostic shape of an inbound webhook event.
type Inbound struct {
	TenantID         uuid.UUID
	AgentID          uuid.UUID
	Channel          store.Channel
	Contact          string
	Content          string
	CustomerName     string
	MessageMetadata  store.MessageMetadata
	CustomerMetadata store.CustomerMetadata
}

// Route resolves (tenant, agent, customer, chat) for one inbound event
// and appends or merges its message, under the per-contact lock.
func (r *Router) Route(ctx context.Context, in Inbound) (*Result, error) {
	if strings.TrimSpace(in.Contact) == "" || strings.EqualFold(in.Contact, "none") {
		return nil, store.ErrValidation("contact is empty or \"none\"", nil)
	}
	variant, ok := r.channels.Get(in.Channel)
	if !ok {
		return nil, store.ErrValidation(fmt.Sprintf("unknown channel %q", in.Channel), nil)
	}

	isGroup := in.MessageMetadata.Bool("is_group")
	lockKey := fmt.Sprintf("router:%s:%s:%t", in.TenantID, in.Contact, isGroup)

	lease, err := r.locks.Acquire(ctx, lockKey, lockTTL, lockMaxWait)
	if err != nil {
		return nil, store.ErrLockTimeout(fmt.Sprintf("could not acquire %s", lockKey), err)
	}
	defer r.locks.Release(context.WithoutCancel(ctx), lease)

	contact, swappedMeta := applyIdentitySwap(in.Channel, in.Contact, in.MessageMetadata, variant)
	in.MessageMetadata = swappedMeta

	customer, err := r.customers.Upsert(ctx, in.TenantID, in.Channel, contact, in.CustomerName, in.MessageMetadata)
	if err != nil {
		return nil, err
	}

	active, err := r.chats.FindActive(ctx, in.TenantID, customer.ID, in.Channel, in.AgentID)
	hasActive := err == nil && active != nil
	if err != nil && store.KindOf(err) != store.KindNotFound {
		return nil, err
	}

	var (
		chat          *store.Chat
		isNewChat     bool
		wasReopened   bool
		isMergedEvent bool
		msg           *store.Message
	)

	if hasActive {
		chat = active

		// InsertOrMergeCustomer dedupes on metadata.whatsapp_message_id
		// internally when present; absent it always inserts.
		inserted, merged, insertErr := r.messages.InsertOrMergeCustomer(ctx, &store.Message{
			ChatID:     chat.ID,
			SenderType: store.SenderCustomer,
			SenderID:   contact,
			Content:    in.Content,
			Metadata:   in.MessageMetadata,
		})
		if insertErr != nil {
			return nil, insertErr
		}
		msg = inserted
		isMergedEvent = merged

		// chat state only moves on a real insert; a merged duplicate is a
		// no-op beyond the metadata merge itself
		if !merged {
			if err := r.chats.Touch(ctx, chat.ID, time.Now().Unix()); err != nil {
				return nil, err
			}
			if chat.Status == store.ChatResolved {
				if reopened, err := r.chats.Reopen(ctx, chat.ID); err == nil {
					chat = reopened
					wasReopened = true
				} else {
					return nil, err
				}
			} else if chat.Status == store.ChatAssigned && chat.AssignedAgentID == nil {
				if err := r.chats.SetHandledBy(ctx, chat.ID, store.HandledByAI); err != nil {
					return nil, err
				}
				chat.HandledBy = store.HandledByAI
				chat.Status = store.ChatOpen
			}
		}
	} else {
		isNewChat = true

		agent, err := r.agents.Get(ctx, in.AgentID)
		if err != nil {
			return nil, err
		}

		newChat := &store.Chat{
			TenantID:      in.TenantID,
			CustomerID:    customer.ID,
			Channel:       in.Channel,
			SenderAgentID: in.AgentID,
			Status:        store.ChatOpen,
			LastMessageAt: time.Now(),
		}
		if agent.IsAI() {
			newChat.HandledBy = store.HandledByAI
			newChat.AIAgentID = &in.AgentID
		} else {
			newChat.HandledBy = store.HandledByHuman
			newChat.HumanAgentID = &in.AgentID
			newChat.AssignedAgentID = &in.AgentID
		}

		created, err := r.chats.Create(ctx, newChat)
		if err != nil {
			return nil, err
		}
		chat = created

		inserted, _, err := r.messages.InsertOrMergeCustomer(ctx, &store.Message{
			ChatID:     chat.ID,
			SenderType: store.SenderCustomer,
			SenderID:   contact,
			Content:    in.Content,
			Metadata:   in.MessageMetadata,
		})
		if err != nil {
			return nil, err
		}
		msg = inserted
	}

	if err := r.bumpCustomerMetadata(ctx, customer, in.Channel); err != nil {
		return nil, err
	}

	return &Result{
		ChatID:        chat.ID,
		MessageID:     msg.ID,
		CustomerID:    customer.ID,
		IsNewChat:     isNewChat,
		WasReopened:   wasReopened,
		HandledBy:     chat.HandledBy,
		Status:        chat.Status,
		Channel:       chat.Channel,
		AgentID:       in.AgentID,
		IsMergedEvent: isMergedEvent,
	}, nil
}

// applyIdentitySwap performs the group→participant substitution,
// returning the effective contact and an augmented
// copy of the inbound metadata carrying last_seen_in_group / is_lid_user /
// whatsapp_lid / target_group_id as applicable.
func applyIdentitySwap(ch store.Channel, contact string, meta store.MessageMetadata, variant channel.Variant) (string, store.MessageMetadata) {
	if !meta.Bool("is_group") {
		return variant.NormalizeContact(contact), meta
	}

	out := make(store.MessageMetadata, len(meta)+4)
	for k, v := range meta {
		out[k] = v
	}
	out["target_group_id"] = contact

	switch ch {
	case store.ChannelWhatsApp:
		participant := meta.String("participant")
		if participant != "" && variant.NormalizeContact(participant) != variant.NormalizeContact(contact) {
			out["last_seen_in_group"] = contact
			if strings.Contains(participant, "@lid") {
				out["is_lid_user"] = true
				out["whatsapp_lid"] = participant
			}
			return variant.NormalizeContact(participant), out
		}
	case store.ChannelTelegram:
		participant := meta.String("participant")
		if participant == "" {
			participant = meta.String("telegram_sender_id")
		}
		if participant != "" {
			out["last_seen_in_group"] = contact
			return variant.NormalizeContact(participant), out
		}
	}
	return variant.NormalizeContact(contact), out
}

// bumpCustomerMetadata maintains the contact rollups: last_contact_at,
// message_count += 1, preferred_channel, channels_used (appended once per
// distinct channel), and first_contact_at/first_contact_channel stamped
// only the first time a customer is seen.
func (r *Router) bumpCustomerMetadata(ctx context.Context, customer *store.Customer, ch store.Channel) error {
	meta := make(store.CustomerMetadata, len(customer.Metadata)+4)
	for k, v := range customer.Metadata {
		meta[k] = v
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if meta.String("first_contact_at") == "" {
		meta["first_contact_at"] = now
		meta["first_contact_channel"] = string(ch)
	}
	meta["last_contact_at"] = now
	meta["message_count"] = meta.Int("message_count") + 1
	meta["preferred_channel"] = string(ch)

	used := meta.StringSlice("channels_used")
	if !containsString(used, string(ch)) {
		used = append(used, string(ch))
	}
	metaUsed := make([]any, len(used))
	for i, c := range used {
		metaUsed[i] = c
	}
	meta["channels_used"] = metaUsed

	return r.customers.UpdateMetadata(ctx, customer.ID, meta)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
