// Package wsgateway implements the operator WebSocket hub: a per-tenant set of
// connected operator sockets, a keepalive contract, and a Redis Pub/Sub
// bridge so a process without a direct reference to the hub can push
// updates by publishing to ws_org_{tenant_id}.
package wsgateway

import "time"

// MessageType enumerates the closed set of server/client WebSocket frame
// types.
type MessageType string

const (
	TypeConnectionEstablished MessageType = "connection_established"
	TypePing                  MessageType = "ping"
	TypePong                  MessageType = "pong"
	TypeEcho                  MessageType = "echo"
	TypeNewMessage            MessageType = "new_message"
	TypeChatUpdate            MessageType = "chat_update"
)

// Envelope is the wire shape of every frame exchanged over the hub.
type Envelope struct {
	Type      MessageType    `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func newEnvelope(t MessageType, payload map[string]any) Envelope {
	return Envelope{Type: t, Timestamp: time.Now().Unix(), Payload: payload}
}

func connectionEstablished(connID string) Envelope {
	return newEnvelope(TypeConnectionEstablished, map[string]any{"connection_id": connID})
}

// newMessageEnvelope stamps type and timestamp on a new_message broadcast.
func newMessageEnvelope(payload map[string]any) Envelope {
	return newEnvelope(TypeNewMessage, payload)
}

// chatUpdateEnvelope stamps type, timestamp, and update_type on a
// chat_update broadcast.
func chatUpdateEnvelope(updateType string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["update_type"] = updateType
	return newEnvelope(TypeChatUpdate, payload)
}
