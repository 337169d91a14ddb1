package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/orbitalcx/convoy/internal/store"
)

// VectorStore wraps chromem-go with one collection per tenant: isolation
// lives at the collection boundary, not behind a metadata filter.
type VectorStore struct {
	db          *chromem.DB
	embeddingFn chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[uuid.UUID]*chromem.Collection
}

func NewVectorStore(dbPath string, embeddingFn chromem.EmbeddingFunc) (*VectorStore, error) {
	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open vector db: %w", err)
	}
	return &VectorStore{db: db, embeddingFn: embeddingFn, collections: make(map[uuid.UUID]*chromem.Collection)}, nil
}

func (vs *VectorStore) collection(tenantID uuid.UUID) (*chromem.Collection, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if c, ok := vs.collections[tenantID]; ok {
		return c, nil
	}
	c, err := vs.db.GetOrCreateCollection("tenant_"+tenantID.String(), nil, vs.embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("knowledge: get/create collection for tenant %s: %w", tenantID, err)
	}
	vs.collections[tenantID] = c
	return c, nil
}

// Upsert embeds and stores/updates a chunk in its tenant's collection.
func (vs *VectorStore) Upsert(ctx context.Context, chunk *store.KnowledgeChunk) error {
	coll, err := vs.collection(chunk.TenantID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:      chunk.ChunkID,
		Content: chunk.Text,
		Metadata: map[string]string{
			"doc_id":        chunk.DocID,
			"filename":      chunk.Filename,
			"chunk_index":   strconv.Itoa(chunk.ChunkIndex),
			"section_title": chunk.SectionTitle,
			"is_trashed":    strconv.FormatBool(chunk.IsTrashed),
		},
	}
	return coll.AddDocument(ctx, doc)
}

func (vs *VectorStore) Delete(ctx context.Context, tenantID uuid.UUID, chunkID string) error {
	coll, err := vs.collection(tenantID)
	if err != nil {
		return err
	}
	return coll.Delete(ctx, nil, nil, chunkID)
}

// Search queries the tenant's collection with no "where" filter, then drops
// results whose is_trashed metadata is "true".
func (vs *VectorStore) Search(ctx context.Context, tenantID uuid.UUID, query string, limit int) ([]ScoredChunk, error) {
	coll, err := vs.collection(tenantID)
	if err != nil {
		return nil, err
	}
	if coll.Count() == 0 {
		return nil, nil
	}
	if limit > coll.Count() {
		limit = coll.Count()
	}

	results, err := coll.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge: vector search failed: %w", err)
	}

	out := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Metadata["is_trashed"] == "true" {
			continue
		}
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		out = append(out, ScoredChunk{
			Chunk: store.KnowledgeChunk{
				ChunkID:      r.ID,
				TenantID:     tenantID,
				DocID:        r.Metadata["doc_id"],
				Filename:     r.Metadata["filename"],
				ChunkIndex:   idx,
				Text:         r.Content,
				SectionTitle: r.Metadata["section_title"],
			},
			Score: float64(r.Similarity),
		})
	}
	return out, nil
}
