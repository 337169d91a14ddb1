package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Reranker scores (query, candidate) pairs with an HTTP cross-encoder
// service, the same "LLM proxy over HTTP" shape used by internal/llmproxy.
// The model is treated as lazily-loaded: the first call probes the service,
// and a failure latches a degraded mode for degradeFor so subsequent calls
// skip straight to candidate order instead of retrying a dead endpoint on
// every request.
type Reranker struct {
	baseURL string
	client  *http.Client
	cache   *lru.Cache[string, float64]

	mu            sync.Mutex
	degradedUntil time.Time
}

const degradeFor = 30 * time.Second

func NewReranker(baseURL string) *Reranker {
	cache, _ := lru.New[string, float64](4096)
	return &Reranker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores candidates in batches, returning them sorted descending by
// score. On any transport/load failure it returns an error so the caller can
// fall back to candidate order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk, batchSize int) ([]ScoredChunk, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}

	r.mu.Lock()
	degraded := time.Now().Before(r.degradedUntil)
	r.mu.Unlock()
	if degraded {
		return nil, fmt.Errorf("knowledge: reranker degraded, skipping rerank")
	}

	out := make([]ScoredChunk, len(candidates))
	copy(out, candidates)

	for start := 0; start < len(out); start += batchSize {
		end := start + batchSize
		if end > len(out) {
			end = len(out)
		}
		if err := r.scoreBatch(ctx, query, out[start:end]); err != nil {
			r.mu.Lock()
			r.degradedUntil = time.Now().Add(degradeFor)
			r.mu.Unlock()
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (r *Reranker) scoreBatch(ctx context.Context, query string, batch []ScoredChunk) error {
	texts := make([]string, len(batch))
	cacheKeys := make([]string, len(batch))
	missing := make([]int, 0, len(batch))

	for i, c := range batch {
		text := c.Chunk.Text
		if len(text) > maxRerankChars {
			text = text[:maxRerankChars]
		}
		texts[i] = text
		key := query + "\x00" + c.Chunk.ChunkID
		cacheKeys[i] = key
		if score, ok := r.cache.Get(key); ok {
			batch[i].Score = score
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	reqTexts := make([]string, len(missing))
	for j, i := range missing {
		reqTexts[j] = texts[i]
	}

	body, _ := json.Marshal(rerankRequest{Query: query, Candidates: reqTexts})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("knowledge: reranker returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	if len(parsed.Scores) != len(missing) {
		return fmt.Errorf("knowledge: reranker returned %d scores, expected %d", len(parsed.Scores), len(missing))
	}

	for j, i := range missing {
		batch[i].Score = parsed.Scores[j]
		r.cache.Add(cacheKeys[i], parsed.Scores[j])
	}
	return nil
}
