package pg

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type CustomerStore struct {
	db *sqlx.DB
}

func NewCustomerStore(db *sqlx.DB) *CustomerStore { return &CustomerStore{db: db} }

var nonDigits = regexp.MustCompile(`[^0-9]`)

// NormalizeWhatsAppContact strips "+", spaces, and the "@lid"/"@c.us"/"@g.us"
// suffixes used by the WhatsApp bridge, leaving a digits-only phone number.
func NormalizeWhatsAppContact(contact string) string {
	c := contact
	for _, suffix := range []string{"@lid", "@c.us", "@g.us"} {
		c = strings.TrimSuffix(c, suffix)
	}
	return nonDigits.ReplaceAllString(c, "")
}

// contactKey derives the channel-specific lookup key.
func contactKey(channel store.Channel, contact string) string {
	switch channel {
	case store.ChannelWhatsApp:
		return NormalizeWhatsAppContact(contact)
	case store.ChannelEmail:
		return strings.ToLower(strings.TrimSpace(contact))
	default:
		return contact
	}
}

// isUnknownName reports whether name is empty or carries the literal
// "Unknown" placeholder substring, in which case a better inbound name may
// overwrite it.
func isUnknownName(name string) bool {
	return name == "" || strings.Contains(name, "Unknown")
}

type customerRow struct {
	ID        uuid.UUID `db:"id"`
	TenantID  uuid.UUID `db:"tenant_id"`
	Name      string    `db:"name"`
	Phone     *string   `db:"phone"`
	Email     *string   `db:"email"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r customerRow) toStore() *store.Customer {
	c := &store.Customer{
		BaseModel: store.BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
		TenantID:  r.TenantID,
		Name:      r.Name,
		Phone:     r.Phone,
		Email:     r.Email,
		Metadata:  store.CustomerMetadata{},
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &c.Metadata)
	}
	return c
}

// whatsappPhoneCandidates returns the {clean, 0-prefixed, 62-prefixed}
// lookup forms tried via one OR query. A leading "62" or "0" is stripped to
// get the national number first, so a customer recorded under the 0- or
// 62-prefixed notation is found whichever of the 62-prefixed, 0-prefixed or
// bare forms the inbound event used; a customer recorded under the bare
// national number is found only when the inbound form is bare too.
func whatsappPhoneCandidates(clean string) (string, string, string) {
	noPrefix := clean
	switch {
	case strings.HasPrefix(clean, "62"):
		noPrefix = clean[2:]
	case strings.HasPrefix(clean, "0"):
		noPrefix = clean[1:]
	}
	return clean, "0" + noPrefix, "62" + noPrefix
}

// Upsert finds-or-creates a customer by the channel-normalized contact key
// and applies the Unknown-name backfill rule.
func (s *CustomerStore) Upsert(ctx context.Context, tenantID uuid.UUID, channel store.Channel, contact, displayName string, meta store.MessageMetadata) (*store.Customer, error) {
	key := contactKey(channel, contact)
	if key == "" {
		return nil, store.ErrValidation("empty contact", nil)
	}

	const selectCols = `id, tenant_id, name, phone, email, metadata, created_at, updated_at`

	var row customerRow
	var err error
	switch channel {
	case store.ChannelWhatsApp:
		clean, zeroPrefixed, sixtyTwoPrefixed := whatsappPhoneCandidates(key)
		err = s.db.GetContext(ctx, &row,
			`SELECT `+selectCols+` FROM customers
			 WHERE tenant_id = $1 AND phone IN ($2, $3, $4)
			 ORDER BY created_at LIMIT 1`, tenantID, clean, zeroPrefixed, sixtyTwoPrefixed)
		// Secondary check: the number may have been recorded under a
		// different WhatsApp LID before this contact form was seen.
		if err == sqlNoRows && len(key) >= 14 {
			err = s.db.GetContext(ctx, &row,
				`SELECT `+selectCols+` FROM customers
				 WHERE tenant_id = $1 AND metadata->>'whatsapp_lid' = $2
				 ORDER BY created_at LIMIT 1`, tenantID, key)
		}
	case store.ChannelTelegram:
		isGroup := meta.Bool("is_group")
		err = s.db.GetContext(ctx, &row,
			`SELECT `+selectCols+` FROM customers
			 WHERE tenant_id = $1 AND metadata->>'telegram_id' = $2 AND (metadata->>'is_group')::boolean = $3
			 ORDER BY created_at LIMIT 1`, tenantID, key, isGroup)
	case store.ChannelEmail:
		err = s.db.GetContext(ctx, &row,
			`SELECT `+selectCols+` FROM customers WHERE tenant_id = $1 AND email = $2`, tenantID, key)
	default:
		err = s.db.GetContext(ctx, &row,
			`SELECT `+selectCols+` FROM customers WHERE tenant_id = $1 AND metadata->>'session_key' = $2`, tenantID, key)
	}

	if err == nil {
		customer := row.toStore()
		if !isUnknownName(displayName) && isUnknownName(customer.Name) {
			if _, uerr := s.db.ExecContext(ctx,
				`UPDATE customers SET name = $1, updated_at = now() WHERE id = $2`, displayName, customer.ID); uerr == nil {
				customer.Name = displayName
			}
		}
		return customer, nil
	}
	if err != sqlNoRows {
		return nil, store.ErrInternal("customer lookup failed", err)
	}

	name := displayName
	if name == "" {
		name = "Unknown Customer"
	}
	id := store.GenNewID()
	metadata := store.CustomerMetadata{}
	var phone, email *string
	switch channel {
	case store.ChannelWhatsApp:
		phone = &key
		if meta.Bool("is_lid_user") {
			metadata["whatsapp_lid"] = key
		}
	case store.ChannelTelegram:
		metadata["telegram_id"] = key
		metadata["is_group"] = meta.Bool("is_group")
	case store.ChannelEmail:
		email = &key
	default:
		metadata["session_key"] = key
	}

	metaJSON := jsonOrEmpty(metadata)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO customers (id, tenant_id, name, phone, email, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		id, tenantID, name, phone, email, metaJSON)
	if err != nil {
		return nil, store.ErrInternal("customer insert failed", err)
	}

	return &store.Customer{
		BaseModel: store.BaseModel{ID: id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		TenantID:  tenantID,
		Name:      name,
		Phone:     phone,
		Email:     email,
		Metadata:  metadata,
	}, nil
}

func (s *CustomerStore) Get(ctx context.Context, customerID uuid.UUID) (*store.Customer, error) {
	var row customerRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, tenant_id, name, phone, email, metadata, created_at, updated_at FROM customers WHERE id = $1`, customerID)
	if err != nil {
		if err == sqlNoRows {
			return nil, store.ErrNotFound("customer not found", err)
		}
		return nil, store.ErrInternal("customer lookup failed", err)
	}
	return row.toStore(), nil
}

// UpdateMetadata overwrites the customer's metadata bag with metadata (the
// router passes its full updated copy carrying last_contact_at /
// message_count / preferred_channel / channels_used).
func (s *CustomerStore) UpdateMetadata(ctx context.Context, customerID uuid.UUID, metadata store.CustomerMetadata) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE customers SET metadata = $1, updated_at = now() WHERE id = $2`, jsonOrEmpty(metadata), customerID)
	if err != nil {
		return store.ErrInternal("customer metadata update failed", err)
	}
	return nil
}
