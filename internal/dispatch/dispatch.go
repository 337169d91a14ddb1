// Package dispatch implements the channel callback dispatcher: it
// resolves the outbound integration bound to a chat's sending agent and
// delivers a reply through the channel-specific adapter. No branch here
// may raise: every outcome, including a missing integration or a non-2xx
// upstream response, is reported through DeliveryResult so the caller can
// still commit the stored reply.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/orbitalcx/convoy/internal/store"
)

// DeliveryResult is the discriminated result of dispatch; a failed
// delivery is surfaced in-band, never raised.
type DeliveryResult struct {
	Success bool
	Reason  string
}

// Media describes an optional outbound attachment.
type Media struct {
	URL  string
	Type string // image, document, audio, video
}

// Dispatcher resolves the outbound integration and fans out to the
// channel-specific adapter.
type Dispatcher struct {
	agents    store.AgentRepo
	customers store.CustomerRepo
	media     *MediaStore
	whatsapp  *whatsappAdapter
	telegram  *telegramAdapter
	email     *emailAdapter
}

// New builds a Dispatcher. media may be nil when no object storage is
// configured; s3:// media references are then passed through untouched.
func New(agents store.AgentRepo, customers store.CustomerRepo, media *MediaStore) *Dispatcher {
	return &Dispatcher{
		agents:    agents,
		customers: customers,
		media:     media,
		whatsapp:  newWhatsAppAdapter(),
		telegram:  newTelegramAdapter(),
		email:     newEmailAdapter(),
	}
}

// Dispatch sends content (and optional media) to the customer on chat's
// channel, through the integration bound to chat.SenderAgentID.
func (d *Dispatcher) Dispatch(ctx context.Context, chat *store.Chat, content string, media *Media) DeliveryResult {
	integ, err := d.agents.Integration(ctx, chat.SenderAgentID, chat.Channel)
	if err != nil {
		slog.Warn("dispatch: integration lookup failed", "chat_id", chat.ID, "channel", chat.Channel, "error", err)
		return DeliveryResult{Success: false, Reason: "integration_unavailable: " + err.Error()}
	}

	customer, err := d.customers.Get(ctx, chat.CustomerID)
	if err != nil {
		return DeliveryResult{Success: false, Reason: "customer_lookup_failed: " + err.Error()}
	}

	if media != nil && d.media != nil {
		resolved, err := d.media.ResolveURL(ctx, media.URL)
		if err != nil {
			return DeliveryResult{Success: false, Reason: "media_presign_failed: " + err.Error()}
		}
		media = &Media{URL: resolved, Type: media.Type}
	}

	switch chat.Channel {
	case store.ChannelWhatsApp:
		return d.whatsapp.send(ctx, integ, customer, content, media)
	case store.ChannelTelegram:
		return d.telegram.send(ctx, integ, customer, content, media)
	case store.ChannelEmail:
		return d.email.send(ctx, integ, customer, content, media)
	default:
		// web/mcp chats are delivered in-band via the WebSocket hub, not dispatched.
		return DeliveryResult{Success: true, Reason: "no_outbound_adapter_for_channel"}
	}
}
