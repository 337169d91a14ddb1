package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WhatsApp photos and stickers arrive as webp

	"github.com/orbitalcx/convoy/internal/llmproxy"
)

// MediaFetcher reads internal media objects (s3://bucket/key references) so
// the vision step can decode them locally; a plain HTTPS URL never goes
// through it.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const (
	visionFetchTimeout = 10 * time.Second
	visionMaxWidth     = 1024
)

// visionExtractionPrompt is the fixed instruction for the vision
// interceptor.
const visionExtractionPrompt = "Analyze this error screen. " +
	"1. Extract EXACT error codes (e.g. 'RC 12', 'Error 505'). " +
	"2. Extract the main error message text. " +
	"3. Ignore irrelevant UI elements."

// runVisionInterception makes one extraction LLM call against the first
// collected image; loadContext stores its output as the turn's
// visionContext and appends it to the retrieval query.
func runVisionInterception(ctx context.Context, llm *llmproxy.Client, media MediaFetcher, imageURL string) string {
	prepared := downscaleForVision(ctx, media, imageURL)

	resp, err := llm.Complete(ctx, llmproxy.CompletionRequest{
		Messages: []llmproxy.Message{
			{Role: "user", Content: visionExtractionPrompt, Images: []llmproxy.ImageURL{{URL: prepared}}},
		},
		Category:    "vision_interceptor",
		Temperature: 0.0,
	})
	if err != nil {
		slog.Warn("pipeline: vision interceptor failed", "error", err)
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}
	return "\nSystem Analysis of User Image: " + resp.Choices[0].Message.Content
}

// downscaleForVision fetches and downsizes imageURL to a data URI capped at
// visionMaxWidth, so oversized customer photos don't blow past the proxy's
// request-size limits. Any failure degrades to the original URL unchanged —
// the LLM proxy is still free to fetch it directly.
func downscaleForVision(ctx context.Context, media MediaFetcher, rawURL string) string {
	var body io.Reader
	if strings.HasPrefix(rawURL, "s3://") {
		if media == nil {
			return rawURL
		}
		data, err := media.Fetch(ctx, rawURL)
		if err != nil {
			slog.Warn("pipeline: media fetch failed", "url", rawURL, "error", err)
			return rawURL
		}
		body = bytes.NewReader(data)
	} else {
		client := http.Client{Timeout: visionFetchTimeout}
		resp, err := client.Get(rawURL)
		if err != nil {
			return rawURL
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return rawURL
		}
		body = resp.Body
	}

	img, err := imaging.Decode(body)
	if err != nil {
		return rawURL
	}
	if img.Bounds().Dx() > visionMaxWidth {
		img = imaging.Resize(img, visionMaxWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG); err != nil {
		return rawURL
	}
	return fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(buf.Bytes()))
}
