package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/orbitalcx/convoy/internal/llmproxy"
	"github.com/orbitalcx/convoy/internal/store"
)

// defaultRatePerToken is the fallback USD/token rate used when a tenant has
// no configured override; a proxy-reported cost_usd always wins over the
// local computation.
const defaultRatePerToken = 0.000002

// tiktokenEncoding is the fallback tokenizer used when the proxy's response
// carries no usage block at all (some upstreams omit it on certain models).
var tiktokenEncoding, _ = tiktoken.GetEncoding("cl100k_base")

// estimateTokens counts text with the local tiktoken-go encoder, used only
// when the proxy didn't report usage.total_tokens itself.
func estimateTokens(text string) int {
	if tiktokenEncoding == nil {
		return len(text) / 4 // crude fallback if the encoding table failed to load
	}
	return len(tiktokenEncoding.Encode(text, nil, nil))
}

// recordCredits computes cost = total_tokens * rate for a successful,
// non-error reply and posts a usage transaction.
// Errors never reach here — the caller skips this step on a failed turn.
func recordCredits(ctx context.Context, credits store.CreditRepo, tenantID, chatID, messageID uuid.UUID, usage llmproxy.Usage, ratePerToken float64, replyText string) {
	totalTokens := usage.TotalTokens
	if totalTokens == 0 {
		totalTokens = estimateTokens(replyText)
	}
	if totalTokens == 0 {
		return
	}

	rate := ratePerToken
	if rate <= 0 {
		rate = defaultRatePerToken
	}
	cost := rate * float64(totalTokens)
	if usage.CostUSD != nil {
		cost = *usage.CostUSD
	}
	if cost <= 0 {
		return
	}

	err := credits.RecordUsage(ctx, &store.CreditTransaction{
		TenantID:     tenantID,
		ChatID:       chatID,
		MessageID:    messageID,
		TotalTokens:  totalTokens,
		RatePerToken: rate,
		CostUSD:      cost,
	})
	if err != nil {
		slog.Error("pipeline: credit transaction failed", "chat_id", chatID, "error", err)
	}
}
