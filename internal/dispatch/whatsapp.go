package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/store"
)

var nonDigitsRE = regexp.MustCompile(`[^0-9]`)

// digitsOnly strips everything but digits.
func digitsOnly(s string) string {
	return nonDigitsRE.ReplaceAllString(s, "")
}

type whatsappAdapter struct {
	client *http.Client
}

func newWhatsAppAdapter() *whatsappAdapter {
	return &whatsappAdapter{client: &http.Client{Timeout: 30 * time.Second}}
}

type sendMessageRequest struct {
	ChatID      string           `json:"chatId"`
	ContentType string           `json:"contentType"`
	Content     string           `json:"content"`
	Options     *sendMessageOpts `json:"options,omitempty"`
}

type sendMessageOpts struct {
	Mentions []string `json:"mentions,omitempty"`
}

func (a *whatsappAdapter) send(ctx context.Context, integ *store.AgentIntegration, customer *store.Customer, content string, media *Media) DeliveryResult {
	baseURL := integ.Config.BaseURL()
	apiKey := integ.Config.APIKey()
	if baseURL == "" || apiKey == "" {
		return DeliveryResult{Success: false, Reason: "whatsapp_integration_missing_credentials"}
	}

	var stored string
	if customer.Phone != nil {
		stored = *customer.Phone
	}
	if stored == "" {
		return DeliveryResult{Success: false, Reason: "customer_missing_whatsapp_address"}
	}

	chatID := stored
	if !strings.Contains(chatID, "@") {
		chatID = digitsOnly(stored) + "@c.us"
	}

	req := sendMessageRequest{ChatID: chatID, Content: content}
	if isGroupJID(chatID) {
		if realNumber := customer.Metadata.String("real_number"); realNumber != "" {
			tag := digitsOnly(realNumber)
			mentionSuffix := "@c.us"
			if customer.Metadata.Bool("is_lid_user") {
				mentionSuffix = "@lid"
			}
			req.Content = "@" + tag + " " + content
			req.Options = &sendMessageOpts{Mentions: []string{tag + mentionSuffix}}
		}
	}

	switch {
	case media == nil:
		req.ContentType = "string"
	case strings.HasPrefix(media.URL, "http://") || strings.HasPrefix(media.URL, "https://"):
		req.ContentType = "MessageMediaFromURL"
		req.Content = media.URL
	default:
		req.ContentType = "MessageMedia"
		req.Content = media.URL
	}

	endpoint := fmt.Sprintf("%s/client/sendMessage/%s", strings.TrimRight(baseURL, "/"), integ.AgentID)
	status, body, err := postJSON(ctx, a.client, endpoint, req, map[string]string{"x-api-key": apiKey})
	if err != nil {
		return DeliveryResult{Success: false, Reason: "whatsapp_send_failed: " + err.Error()}
	}
	if status < 200 || status >= 300 {
		return DeliveryResult{Success: false, Reason: fmt.Sprintf("whatsapp_non_2xx_status=%d body=%s", status, truncate(body, 200))}
	}
	return DeliveryResult{Success: true}
}

func isGroupJID(chatID string) bool {
	return strings.HasSuffix(chatID, "@g.us")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// postJSON is shared by all channel adapters: it posts a JSON body and
// returns the status/body. Via llmproxy.RetryDo it retries connection-level
// failures and the 5xx statuses that policy treats as retryable, re-sending
// the body marshaled once up front on every attempt. A non-2xx HTTP response
// (including a 5xx still left after the last attempt) is returned as a plain
// status/body pair, never as an error — the caller maps it to a
// DeliveryResult.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}

	type httpResult struct {
		status int
		body   string
	}

	result, err := llmproxy.RetryDo(ctx, llmproxy.DefaultRetryConfig(), func() (httpResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return httpResult{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)

		if resp.StatusCode >= 500 {
			return httpResult{status: resp.StatusCode, body: buf.String()}, &llmproxy.HTTPError{Status: resp.StatusCode, Body: truncate(buf.String(), 200)}
		}
		return httpResult{status: resp.StatusCode, body: buf.String()}, nil
	})
	if err != nil {
		if e, ok := err.(*llmproxy.HTTPError); ok {
			return e.Status, e.Body, nil
		}
		return 0, "", err
	}
	return result.status, result.body, nil
}
