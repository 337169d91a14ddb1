// Package knowledge implements the knowledge index: per-tenant hybrid
// (keyword + vector) retrieval with cross-encoder rerank and neighbour-chunk
// context healing.
package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/orbitalcx/convoy/internal/store"
)

// ScoredChunk is a candidate or final retrieval result with its score.
type ScoredChunk struct {
	Chunk store.KnowledgeChunk
	Score float64
}

const (
	defaultCandidatePoolSize = 100
	defaultRerankBatchSize   = 16
	defaultTopK              = 5
	maxRerankChars           = 512
)

// Index is the retrieval facade the AI pipeline calls.
type Index struct {
	chunks            store.KnowledgeRepo
	vectors           *VectorStore
	reranker          *Reranker
	candidatePoolSize int
	topK              int
}

func NewIndex(chunks store.KnowledgeRepo, vectors *VectorStore, reranker *Reranker) *Index {
	return &Index{
		chunks:            chunks,
		vectors:           vectors,
		reranker:          reranker,
		candidatePoolSize: defaultCandidatePoolSize,
		topK:              defaultTopK,
	}
}

// Retrieve runs the hybrid-retrieval-then-rerank-then-heal pipeline.
// k<=0 falls back to the default top-k (5).
func (idx *Index) Retrieve(ctx context.Context, tenantID uuid.UUID, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = idx.topK
	}

	allChunks, err := idx.chunks.ListActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(allChunks) == 0 {
		return nil, nil
	}

	keywordCandidates := keywordSearch(query, allChunks, idx.candidatePoolSize)

	var vectorCandidates []ScoredChunk
	if idx.vectors != nil {
		vectorCandidates, err = idx.vectors.Search(ctx, tenantID, query, idx.candidatePoolSize)
		if err != nil {
			vectorCandidates = nil // degrade to keyword-only
		}
	}

	candidates := unionCandidates(keywordCandidates, vectorCandidates)

	ranked := candidates
	if idx.reranker != nil {
		if scored, err := idx.reranker.Rerank(ctx, query, candidates, defaultRerankBatchSize); err == nil {
			ranked = scored
		}
		// on rerank failure, fall through and keep candidate order (degrade gracefully)
	}

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	healed := idx.heal(ctx, tenantID, ranked)

	sort.Slice(healed, func(i, j int) bool {
		if healed[i].Chunk.DocID != healed[j].Chunk.DocID {
			return healed[i].Chunk.DocID < healed[j].Chunk.DocID
		}
		return healed[i].Chunk.ChunkIndex < healed[j].Chunk.ChunkIndex
	})
	return healed, nil
}

// heal fetches each selected chunk's immediate (doc_id, chunk_index+1)
// neighbour when not already present, stitching split contexts back
// together.
func (idx *Index) heal(ctx context.Context, tenantID uuid.UUID, selected []ScoredChunk) []ScoredChunk {
	present := make(map[string]bool, len(selected)*2)
	for _, s := range selected {
		present[neighbourKey(s.Chunk.DocID, s.Chunk.ChunkIndex)] = true
	}

	out := make([]ScoredChunk, len(selected))
	copy(out, selected)

	for _, s := range selected {
		nextIdx := s.Chunk.ChunkIndex + 1
		key := neighbourKey(s.Chunk.DocID, nextIdx)
		if present[key] {
			continue
		}
		chunk, found, err := idx.neighbourLookup(ctx, tenantID, s.Chunk.DocID, nextIdx)
		if err != nil || !found {
			continue
		}
		present[key] = true
		out = append(out, ScoredChunk{Chunk: *chunk, Score: s.Score})
	}
	return out
}

func neighbourKey(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%d", docID, chunkIndex)
}

// NeighbourLookup is the single-chunk lookup context healing uses. Index
// type-asserts its KnowledgeRepo to it at call time (the pg-backed store
// implements it); abstracted behind this small interface so Index stays
// independent of the pg package import cycle.
type NeighbourLookup interface {
	Get(ctx context.Context, tenantID uuid.UUID, docID string, chunkIndex int) (*store.KnowledgeChunk, bool, error)
}

func (idx *Index) neighbourLookup(ctx context.Context, tenantID uuid.UUID, docID string, chunkIndex int) (*store.KnowledgeChunk, bool, error) {
	if nl, ok := idx.chunks.(NeighbourLookup); ok {
		return nl.Get(ctx, tenantID, docID, chunkIndex)
	}
	return nil, false, nil
}

// unionCandidates takes the weighted union of keyword and vector candidate
// lists with equal weights, deduplicating by chunk id
// and keeping the higher of the two scores.
func unionCandidates(keyword, vector []ScoredChunk) []ScoredChunk {
	byID := make(map[string]ScoredChunk, len(keyword)+len(vector))
	order := make([]string, 0, len(keyword)+len(vector))
	add := func(list []ScoredChunk) {
		for _, c := range list {
			if existing, ok := byID[c.Chunk.ChunkID]; ok {
				if c.Score > existing.Score {
					byID[c.Chunk.ChunkID] = c
				}
				continue
			}
			byID[c.Chunk.ChunkID] = c
			order = append(order, c.Chunk.ChunkID)
		}
	}
	add(keyword)
	add(vector)

	out := make([]ScoredChunk, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
