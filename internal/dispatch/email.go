package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/orbitalcx/convoy/internal/store"
)

type emailAdapter struct {
	client *http.Client
}

func newEmailAdapter() *emailAdapter {
	return &emailAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

type emailSendRequest struct {
	FromEmail string         `json:"from_email"`
	ToEmail   string         `json:"to_email"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (a *emailAdapter) send(ctx context.Context, integ *store.AgentIntegration, customer *store.Customer, content string, media *Media) DeliveryResult {
	webhookURL := integ.Config.WebhookURL()
	fromEmail := integ.Config.FromEmail()
	if webhookURL == "" || fromEmail == "" {
		return DeliveryResult{Success: false, Reason: "email_integration_missing_credentials"}
	}
	if customer.Email == nil || *customer.Email == "" {
		return DeliveryResult{Success: false, Reason: "customer_missing_email_address"}
	}

	subject := customer.Metadata.String("last_subject")
	if subject == "" {
		subject = "Re: your message"
	}

	req := emailSendRequest{
		FromEmail: fromEmail,
		ToEmail:   *customer.Email,
		Subject:   subject,
		Message:   content,
	}
	if media != nil {
		req.Metadata = map[string]any{"media_url": media.URL, "media_type": media.Type}
	}

	status, body, err := postJSON(ctx, a.client, webhookURL, req, nil)
	if err != nil {
		return DeliveryResult{Success: false, Reason: "email_send_failed: " + err.Error()}
	}
	if status < 200 || status >= 300 {
		return DeliveryResult{Success: false, Reason: fmt.Sprintf("email_non_2xx_status=%d body=%s", status, truncate(body, 200))}
	}
	return DeliveryResult{Success: true}
}
