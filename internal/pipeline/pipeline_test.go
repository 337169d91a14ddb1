package pipeline

import (
	"testing"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

func TestAgentSenderIDFallsBackWhenNil(t *testing.T) {
	if got := agentSenderID(nil); got != "ai_agent" {
		t.Fatalf("agentSenderID(nil) = %q, want ai_agent", got)
	}
}

func TestAgentSenderIDUsesAgentID(t *testing.T) {
	agent := &store.Agent{BaseModel: store.BaseModel{ID: uuid.New()}}
	if got := agentSenderID(agent); got != agent.ID.String() {
		t.Fatalf("agentSenderID() = %q, want %q", got, agent.ID.String())
	}
}

func TestLooksLikeImageByMediaType(t *testing.T) {
	if !looksLikeImage("image/png", "https://cdn.example.com/blob/abc123") {
		t.Fatalf("expected image/png media type to be recognized as an image")
	}
}

func TestLooksLikeImageByExtension(t *testing.T) {
	if !looksLikeImage("", "https://cdn.example.com/photo.JPG") {
		t.Fatalf("expected .JPG extension to be recognized case-insensitively")
	}
}

func TestLooksLikeImageRejectsOther(t *testing.T) {
	if looksLikeImage("application/pdf", "https://cdn.example.com/invoice.pdf") {
		t.Fatalf("expected a PDF to not be treated as an image")
	}
}

func newMediaMessage(senderType store.SenderType, url, mediaType string) *store.Message {
	return &store.Message{
		SenderType: senderType,
		Metadata:   store.MessageMetadata{"media_url": url, "media_type": mediaType},
	}
}

func TestCollectImagesIncludesLatestMessageMedia(t *testing.T) {
	latest := newMediaMessage(store.SenderCustomer, "https://cdn.example.com/a.png", "image/png")
	images := collectImages(latest, nil)
	if len(images) != 1 || images[0].URL != "https://cdn.example.com/a.png" {
		t.Fatalf("expected the latest message's image to be collected, got %+v", images)
	}
}

func TestCollectImagesSkipsNonImageMedia(t *testing.T) {
	latest := newMediaMessage(store.SenderCustomer, "https://cdn.example.com/doc.pdf", "application/pdf")
	if images := collectImages(latest, nil); len(images) != 0 {
		t.Fatalf("expected no images for a non-image attachment, got %+v", images)
	}
}

func TestCollectImagesIncludesOnlyLastTwoHistoryMessages(t *testing.T) {
	latest := &store.Message{SenderType: store.SenderCustomer}
	history := []*store.Message{
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/old.png", "image/png"),
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/mid.png", "image/png"),
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/recent.png", "image/png"),
	}
	images := collectImages(latest, history)
	for _, img := range images {
		if img.URL == "https://cdn.example.com/old.png" {
			t.Fatalf("expected the third-oldest history message's media to be excluded, got %+v", images)
		}
	}
	if len(images) != 2 {
		t.Fatalf("expected exactly the last two history messages' media, got %+v", images)
	}
}

func TestCollectImagesIgnoresNonCustomerHistory(t *testing.T) {
	latest := &store.Message{SenderType: store.SenderCustomer}
	history := []*store.Message{
		newMediaMessage(store.SenderAI, "https://cdn.example.com/ai.png", "image/png"),
	}
	if images := collectImages(latest, history); len(images) != 0 {
		t.Fatalf("expected AI-sent media in history to be excluded, got %+v", images)
	}
}

func TestCollectImagesDeduplicatesURLs(t *testing.T) {
	latest := newMediaMessage(store.SenderCustomer, "https://cdn.example.com/a.png", "image/png")
	history := []*store.Message{
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/a.png", "image/png"),
	}
	images := collectImages(latest, history)
	if len(images) != 1 {
		t.Fatalf("expected duplicate URLs to collapse into one entry, got %+v", images)
	}
}

func TestCollectImagesCapsAtDefaultMaxImages(t *testing.T) {
	latest := newMediaMessage(store.SenderCustomer, "https://cdn.example.com/0.png", "image/png")
	history := []*store.Message{
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/1.png", "image/png"),
		newMediaMessage(store.SenderCustomer, "https://cdn.example.com/2.png", "image/png"),
	}
	images := collectImages(latest, history)
	if len(images) > defaultMaxImages {
		t.Fatalf("expected at most %d images, got %d", defaultMaxImages, len(images))
	}
}
