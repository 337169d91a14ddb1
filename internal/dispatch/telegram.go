package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/orbitalcx/convoy/internal/store"
)

type telegramAdapter struct {
	client *http.Client
}

func newTelegramAdapter() *telegramAdapter {
	return &telegramAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

type telegramSendRequest struct {
	AgentID  string `json:"agent_id"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

func (a *telegramAdapter) send(ctx context.Context, integ *store.AgentIntegration, customer *store.Customer, content string, media *Media) DeliveryResult {
	baseURL := integ.Config.BaseURL()
	serviceKey := integ.Config.ServiceKey()
	if baseURL == "" || serviceKey == "" {
		return DeliveryResult{Success: false, Reason: "telegram_integration_missing_credentials"}
	}

	chatID := customer.Metadata.String("telegram_chat_id")
	if chatID == "" {
		chatID = customer.Metadata.String("telegram_id")
	}
	if chatID == "" && customer.Phone != nil {
		chatID = *customer.Phone
	}
	if chatID == "" {
		return DeliveryResult{Success: false, Reason: "customer_missing_telegram_address"}
	}

	req := telegramSendRequest{AgentID: integ.AgentID.String(), ChatID: chatID, Text: content}
	if media != nil {
		req.MediaURL = media.URL
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/api/webhook/send"
	status, body, err := postJSON(ctx, a.client, endpoint, req, map[string]string{"X-Service-Key": serviceKey})
	if err != nil {
		return DeliveryResult{Success: false, Reason: "telegram_send_failed: " + err.Error()}
	}
	if status < 200 || status >= 300 {
		return DeliveryResult{Success: false, Reason: fmt.Sprintf("telegram_non_2xx_status=%d body=%s", status, truncate(body, 200))}
	}
	return DeliveryResult{Success: true}
}
