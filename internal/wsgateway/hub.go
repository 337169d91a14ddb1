package wsgateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const pingInterval = 30 * time.Second

// Conn wraps a single operator WebSocket connection with the metadata the
// hub needs to route and detach it.
type Conn struct {
	ID          string
	TenantID    uuid.UUID
	UserID      uuid.UUID
	ConnectedAt time.Time

	ws       *websocket.Conn
	writeMu  sync.Mutex
	lastPing time.Time
}

func (c *Conn) writeJSON(v Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub tracks, per tenant, the set of open operator connections.
type Hub struct {
	mu      sync.RWMutex
	byTenant map[uuid.UUID]map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{byTenant: make(map[uuid.UUID]map[string]*Conn)}
}

// Attach registers ws under tenantID/userID and sends the welcome frame.
func (h *Hub) Attach(ws *websocket.Conn, tenantID, userID uuid.UUID) *Conn {
	conn := &Conn{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		ConnectedAt: time.Now(),
		ws:          ws,
		lastPing:    time.Now(),
	}

	h.mu.Lock()
	if h.byTenant[tenantID] == nil {
		h.byTenant[tenantID] = make(map[string]*Conn)
	}
	h.byTenant[tenantID][conn.ID] = conn
	h.mu.Unlock()

	if err := conn.writeJSON(connectionEstablished(conn.ID)); err != nil {
		h.Detach(conn)
	}
	return conn
}

// Detach removes conn from its tenant's set and closes the socket.
func (h *Hub) Detach(conn *Conn) {
	h.mu.Lock()
	if set, ok := h.byTenant[conn.TenantID]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(h.byTenant, conn.TenantID)
		}
	}
	h.mu.Unlock()
	conn.ws.Close()
}

// SendPersonal writes message to conn, detaching it on failure.
func (h *Hub) SendPersonal(conn *Conn, message Envelope) {
	if err := conn.writeJSON(message); err != nil {
		slog.Warn("wsgateway: send_personal failed, detaching", "conn_id", conn.ID, "error", err)
		h.Detach(conn)
	}
}

// Broadcast sends message to every connection attached to tenantID,
// best-effort and in parallel, detaching any connection that errors.
func (h *Hub) Broadcast(tenantID uuid.UUID, message Envelope) {
	h.mu.RLock()
	set := h.byTenant[tenantID]
	targets := make([]*Conn, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, conn := range targets {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			if err := c.writeJSON(message); err != nil {
				slog.Warn("wsgateway: broadcast failed, detaching", "conn_id", c.ID, "error", err)
				h.Detach(c)
			}
		}(conn)
	}
	wg.Wait()
}

// BroadcastNewMessage is a thin constructor stamping type/timestamp for a
// new inbound/outbound message notification.
func (h *Hub) BroadcastNewMessage(tenantID uuid.UUID, payload map[string]any) {
	h.Broadcast(tenantID, newMessageEnvelope(payload))
}

// BroadcastChatUpdate is a thin constructor for chat-level status changes
// (handoff, reopen, ticket_created, …).
func (h *Hub) BroadcastChatUpdate(tenantID uuid.UUID, updateType string, payload map[string]any) {
	h.Broadcast(tenantID, chatUpdateEnvelope(updateType, payload))
}

// Serve reads frames from conn until it errors or closes, replying to
// ping/pong and echoing anything else, and runs the 30s keepalive ping
// loop. It blocks until the connection is gone and
// always detaches conn before returning.
func (h *Hub) Serve(conn *Conn) {
	defer h.Detach(conn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ws.ReadMessage()
			if err != nil {
				return
			}
			var in Envelope
			if err := json.Unmarshal(raw, &in); err != nil {
				continue
			}
			switch in.Type {
			case TypePing:
				conn.lastPing = time.Now()
				h.SendPersonal(conn, newEnvelope(TypePong, nil))
			case TypePong:
				conn.lastPing = time.Now()
			default:
				h.SendPersonal(conn, newEnvelope(TypeEcho, in.Payload))
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.writeJSON(newEnvelope(TypePing, nil)); err != nil {
				return
			}
		}
	}
}
