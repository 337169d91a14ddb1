package knowledge

import "strings"

// Format renders chunks (already sorted by (doc_id, chunk_index)) into the
// single RAG-context string the pipeline labels "KNOWLEDGE BASE".
func Format(chunks []ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		header := "[Source: " + c.Chunk.Filename
		if c.Chunk.SectionTitle != "" {
			header += " | " + c.Chunk.SectionTitle
		}
		header += "]"
		parts = append(parts, header+"\n"+c.Chunk.Text)
	}
	return strings.Join(parts, "\n\n###\n\n")
}
