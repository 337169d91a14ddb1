package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/orbitalcx/convoy/internal/store"
)

type KnowledgeStore struct {
	db *sqlx.DB
}

func NewKnowledgeStore(db *sqlx.DB) *KnowledgeStore { return &KnowledgeStore{db: db} }

type knowledgeChunkRow struct {
	ChunkID      string    `db:"chunk_id"`
	TenantID     uuid.UUID `db:"tenant_id"`
	DocID        string    `db:"doc_id"`
	Filename     string    `db:"filename"`
	ChunkIndex   int       `db:"chunk_index"`
	Text         string    `db:"text"`
	SectionTitle string    `db:"section_title"`
	IsTrashed    bool      `db:"is_trashed"`
}

func (r knowledgeChunkRow) toStore() *store.KnowledgeChunk {
	return &store.KnowledgeChunk{
		ChunkID: r.ChunkID, TenantID: r.TenantID, DocID: r.DocID, Filename: r.Filename,
		ChunkIndex: r.ChunkIndex, Text: r.Text, SectionTitle: r.SectionTitle, IsTrashed: r.IsTrashed,
	}
}

// ListActive returns every non-trashed chunk for tenantID, the keyword side's
// source of truth; vector embeddings for the same chunks live in the
// chromem-go collection internal/knowledge manages separately.
func (s *KnowledgeStore) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*store.KnowledgeChunk, error) {
	var rows []knowledgeChunkRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT chunk_id, tenant_id, doc_id, filename, chunk_index, text, COALESCE(section_title, '') AS section_title, is_trashed
		 FROM knowledge_chunks WHERE tenant_id = $1 AND is_trashed = false
		 ORDER BY doc_id, chunk_index`, tenantID)
	if err != nil {
		return nil, store.ErrInternal("knowledge chunk list failed", err)
	}
	out := make([]*store.KnowledgeChunk, len(rows))
	for i, r := range rows {
		out[i] = r.toStore()
	}
	return out, nil
}

// MarkTrashed flips is_trashed for every chunk under doc_id.
func (s *KnowledgeStore) MarkTrashed(ctx context.Context, tenantID uuid.UUID, docID string, flag bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_chunks SET is_trashed = $1 WHERE tenant_id = $2 AND doc_id = $3`, flag, tenantID, docID)
	if err != nil {
		return store.ErrInternal("knowledge chunk trash update failed", err)
	}
	return nil
}

// Delete permanently removes every chunk under doc_id, returning the count removed.
func (s *KnowledgeStore) Delete(ctx context.Context, tenantID uuid.UUID, docID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE tenant_id = $1 AND doc_id = $2`, tenantID, docID)
	if err != nil {
		return 0, store.ErrInternal("knowledge chunk delete failed", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Get fetches a single chunk by (tenant, doc_id, chunk_index), used by
// context healing to fetch a selected chunk's immediate neighbour.
func (s *KnowledgeStore) Get(ctx context.Context, tenantID uuid.UUID, docID string, chunkIndex int) (*store.KnowledgeChunk, bool, error) {
	var r knowledgeChunkRow
	err := s.db.GetContext(ctx, &r,
		`SELECT chunk_id, tenant_id, doc_id, filename, chunk_index, text, COALESCE(section_title, '') AS section_title, is_trashed
		 FROM knowledge_chunks WHERE tenant_id = $1 AND doc_id = $2 AND chunk_index = $3 AND is_trashed = false`,
		tenantID, docID, chunkIndex)
	if err == sqlNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.ErrInternal("knowledge chunk lookup failed", err)
	}
	return r.toStore(), true, nil
}
