package wsgateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const wsChannelPattern = "ws_org_*"
const wsChannelPrefix = "ws_org_"

// Bridge subscribes to ws_org_* Pub/Sub channels and delegates every
// published frame to Hub.Broadcast for the tenant encoded in the channel
// name. This lets a process without a direct reference to the Hub notify
// connected operators via Publish; the AI pipeline and ticket guard in this
// module call the Hub directly.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	return &Bridge{rdb: rdb, hub: hub}
}

// Publish pushes payload onto the ws_org_{tenant_id} channel — the
// producer-side counterpart used by components without hub access.
func Publish(ctx context.Context, rdb *redis.Client, tenantID uuid.UUID, message Envelope) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, wsChannelPrefix+tenantID.String(), body).Err()
}

// Run subscribes to ws_org_* and dispatches until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.PSubscribe(ctx, wsChannelPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle(msg.Channel, msg.Payload)
		}
	}
}

func (b *Bridge) handle(channel, payload string) {
	tenantRaw := strings.TrimPrefix(channel, wsChannelPrefix)
	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		slog.Warn("wsgateway: pubsub channel has unparseable tenant id", "channel", channel)
		return
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		slog.Warn("wsgateway: pubsub payload decode failed", "channel", channel, "error", err)
		return
	}
	b.hub.Broadcast(tenantID, envelope)
}
