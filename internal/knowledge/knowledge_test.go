package knowledge

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

type fakeChunkRepo struct {
	chunks map[string]*store.KnowledgeChunk
}

func newFakeChunkRepo() *fakeChunkRepo { return &fakeChunkRepo{chunks: make(map[string]*store.KnowledgeChunk)} }

func (f *fakeChunkRepo) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*store.KnowledgeChunk, error) {
	var out []*store.KnowledgeChunk
	for _, c := range f.chunks {
		if c.TenantID == tenantID && !c.IsTrashed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) Get(ctx context.Context, tenantID uuid.UUID, docID string, chunkIndex int) (*store.KnowledgeChunk, bool, error) {
	for _, c := range f.chunks {
		if c.TenantID == tenantID && c.DocID == docID && c.ChunkIndex == chunkIndex && !c.IsTrashed {
			return c, true, nil
		}
	}
	return nil, false, nil
}

func TestRetrieveHealsNeighbourChunk(t *testing.T) {
	tenant := uuid.New()
	repo := newFakeChunkRepo()
	repo.chunks["c0"] = &store.KnowledgeChunk{ChunkID: "c0", TenantID: tenant, DocID: "d", Filename: "f.pdf", ChunkIndex: 0, Text: "Section A heading"}
	repo.chunks["c1"] = &store.KnowledgeChunk{ChunkID: "c1", TenantID: tenant, DocID: "d", Filename: "f.pdf", ChunkIndex: 1, Text: "Section A body mentions RC 12."}
	repo.chunks["c2"] = &store.KnowledgeChunk{ChunkID: "c2", TenantID: tenant, DocID: "d", Filename: "f.pdf", ChunkIndex: 2, Text: "Section B unrelated content."}

	idx := NewIndex(repo, nil, nil)
	results, err := idx.Retrieve(context.Background(), tenant, "RC 12", 1)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}

	foundIdx1, foundIdx2 := false, false
	for _, r := range results {
		if r.Chunk.ChunkIndex == 1 {
			foundIdx1 = true
		}
		if r.Chunk.ChunkIndex == 2 {
			foundIdx2 = true
		}
	}
	if !foundIdx1 {
		t.Fatalf("expected the matching chunk (index 1) in results, got %+v", results)
	}
	// healing adds the successor (index+1) of each selected chunk, never index-1
	if !foundIdx2 {
		t.Fatalf("expected the healed neighbour chunk (index 2) in results, got %+v", results)
	}
}

func TestRetrieveFiltersTrashed(t *testing.T) {
	tenant := uuid.New()
	repo := newFakeChunkRepo()
	repo.chunks["c0"] = &store.KnowledgeChunk{ChunkID: "c0", TenantID: tenant, DocID: "d", ChunkIndex: 0, Text: "visible chunk about refunds", Filename: "f"}
	repo.chunks["c1"] = &store.KnowledgeChunk{ChunkID: "c1", TenantID: tenant, DocID: "d", ChunkIndex: 1, Text: "trashed chunk about refunds", Filename: "f", IsTrashed: true}

	idx := NewIndex(repo, nil, nil)
	results, err := idx.Retrieve(context.Background(), tenant, "refunds", 5)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	for _, r := range results {
		if r.Chunk.IsTrashed {
			t.Fatalf("expected no trashed chunks in results, got %+v", r.Chunk)
		}
	}
}

func TestFormatJoinsWithSeparator(t *testing.T) {
	chunks := []ScoredChunk{
		{Chunk: store.KnowledgeChunk{Filename: "a.pdf", SectionTitle: "Intro", Text: "hello"}},
		{Chunk: store.KnowledgeChunk{Filename: "b.pdf", Text: "world"}},
	}
	got := Format(chunks)
	want := "[Source: a.pdf | Intro]\nhello\n\n###\n\n[Source: b.pdf]\nworld"
	if got != want {
		t.Fatalf("Format mismatch:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestFormatEmpty(t *testing.T) {
	if got := Format(nil); got != "" {
		t.Fatalf("expected empty string for no chunks, got %q", got)
	}
}
