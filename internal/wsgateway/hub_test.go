package wsgateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestChatUpdateEnvelopeStampsUpdateType(t *testing.T) {
	env := chatUpdateEnvelope("ticket_created", map[string]any{"ticket_id": "t1"})
	if env.Type != TypeChatUpdate {
		t.Fatalf("expected type %q, got %q", TypeChatUpdate, env.Type)
	}
	if env.Payload["update_type"] != "ticket_created" {
		t.Fatalf("expected update_type stamped in payload, got %+v", env.Payload)
	}
	if env.Payload["ticket_id"] != "t1" {
		t.Fatalf("expected original payload preserved, got %+v", env.Payload)
	}
	if env.Timestamp == 0 {
		t.Fatalf("expected non-zero timestamp")
	}
}

func TestHubDetachRemovesConnFromTenantSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial test server: %v", err)
	}

	hub := NewHub()
	tenant := uuid.New()
	conn := &Conn{ID: "c1", TenantID: tenant, ws: ws}
	hub.mu.Lock()
	hub.byTenant[tenant] = map[string]*Conn{"c1": conn}
	hub.mu.Unlock()

	hub.Detach(conn)

	hub.mu.RLock()
	_, stillPresent := hub.byTenant[tenant]
	hub.mu.RUnlock()
	if stillPresent {
		t.Fatalf("expected tenant entry to be cleaned up once its last connection is removed")
	}
}
