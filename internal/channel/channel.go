// Package channel implements the closed set of channel variants: each
// variant supplies contact normalization and a customer identity key.
// Outbound payload shapes are built in internal/dispatch, not here.
// The router and pipeline stay oblivious to channel specifics beyond this
// interface.
package channel

import (
	"strings"

	"github.com/orbitalcx/convoy/internal/store"
)

// Variant is the per-channel seam the router consults.
type Variant interface {
	Channel() store.Channel
	// NormalizeContact converts a raw inbound contact identifier into the
	// canonical lookup key the customer store upserts by.
	NormalizeContact(raw string) string
	// IdentityKey derives the customer identity key to use for a given
	// inbound event, applying the group→participant swap when applicable.
	IdentityKey(contact string, metadata store.MessageMetadata) string
}

// Registry resolves a Channel to its Variant.
type Registry struct {
	variants map[store.Channel]Variant
}

func NewRegistry() *Registry {
	r := &Registry{variants: make(map[store.Channel]Variant)}
	r.register(WhatsApp{})
	r.register(Telegram{})
	r.register(Email{})
	r.register(Web{})
	return r
}

func (r *Registry) register(v Variant) { r.variants[v.Channel()] = v }

func (r *Registry) Get(ch store.Channel) (Variant, bool) {
	v, ok := r.variants[ch]
	return v, ok
}

// --- WhatsApp --------------------------------------------------------------

type WhatsApp struct{}

func (WhatsApp) Channel() store.Channel { return store.ChannelWhatsApp }

func (WhatsApp) NormalizeContact(raw string) string {
	c := raw
	for _, suffix := range []string{"@lid", "@c.us", "@g.us"} {
		c = strings.TrimSuffix(c, suffix)
	}
	return stripNonDigits(c)
}

// IdentityKey implements the group→participant swap: for group messages the
// effective identity is the participant, not the group id. The group id is
// preserved by the router as metadata.target_group_id.
func (w WhatsApp) IdentityKey(contact string, metadata store.MessageMetadata) string {
	if metadata.Bool("is_group") {
		if participant := metadata.String("participant"); participant != "" {
			return w.NormalizeContact(participant)
		}
	}
	return w.NormalizeContact(contact)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// --- Telegram ----------------------------------------------------------

type Telegram struct{}

func (Telegram) Channel() store.Channel { return store.ChannelTelegram }

func (Telegram) NormalizeContact(raw string) string { return strings.TrimSpace(raw) }

func (t Telegram) IdentityKey(contact string, metadata store.MessageMetadata) string {
	if metadata.Bool("is_group") {
		if participant := metadata.String("telegram_sender_id"); participant != "" {
			return t.NormalizeContact(participant)
		}
	}
	return t.NormalizeContact(contact)
}

// --- Email ---------------------------------------------------------------

type Email struct{}

func (Email) Channel() store.Channel { return store.ChannelEmail }

func (Email) NormalizeContact(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (e Email) IdentityKey(contact string, _ store.MessageMetadata) string {
	return e.NormalizeContact(contact)
}

// --- Web -------------------------------------------------------------------

type Web struct{}

func (Web) Channel() store.Channel { return store.ChannelWeb }

func (Web) NormalizeContact(raw string) string { return strings.TrimSpace(raw) }

func (w Web) IdentityKey(contact string, _ store.MessageMetadata) string {
	return w.NormalizeContact(contact)
}
