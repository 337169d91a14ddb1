package knowledge

import (
	"math"
	"sort"
	"strings"

	"github.com/orbitalcx/convoy/internal/store"
)

// keywordSearch scores chunks against query with a BM25-class
// term-frequency model over a small in-memory candidate pool.
func keywordSearch(query string, chunks []*store.KnowledgeChunk, limit int) []ScoredChunk {
	terms := tokenize(query)
	if len(terms) == 0 || len(chunks) == 0 {
		return nil
	}

	const k1 = 1.5
	const b = 0.75

	docFreq := make(map[string]int, 32)
	docTokens := make([][]string, len(chunks))
	var totalLen int
	for i, c := range chunks {
		toks := tokenize(c.Text)
		docTokens[i] = toks
		totalLen += len(toks)
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				docFreq[t]++
				seen[t] = true
			}
		}
	}
	avgLen := float64(totalLen) / float64(len(chunks))
	if avgLen == 0 {
		avgLen = 1
	}
	n := float64(len(chunks))

	scored := make([]ScoredChunk, 0, len(chunks))
	for i, c := range chunks {
		toks := docTokens[i]
		if len(toks) == 0 {
			continue
		}
		freq := make(map[string]int, len(toks))
		for _, t := range toks {
			freq[t]++
		}
		var score float64
		for _, term := range terms {
			tf := float64(freq[term])
			if tf == 0 {
				continue
			}
			df := float64(docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := tf + k1*(1-b+b*float64(len(toks))/avgLen)
			score += idf * (tf * (k1 + 1)) / denom
		}
		if score > 0 {
			scored = append(scored, ScoredChunk{Chunk: *c, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}
