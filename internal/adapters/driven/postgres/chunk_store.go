package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore implements driven.ChunkStore using PostgreSQL with pgvector.
// It serves both legs of hybrid retrieval: cosine distance over embeddings
// and Postgres full-text rank over chunk content.
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new ChunkStore
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

// SaveBatch stores all chunks of a document in one transaction.
func (s *ChunkStore) SaveBatch(ctx context.Context, chunks []*domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO document_chunks (id, document_id, chunk_index, content,
				start_char, end_char, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (document_id, chunk_index) DO UPDATE SET
				content = EXCLUDED.content,
				start_char = EXCLUDED.start_char,
				end_char = EXCLUDED.end_char,
				embedding = EXCLUDED.embedding
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			_, err = stmt.ExecContext(ctx,
				chunk.ID,
				chunk.DocumentID,
				chunk.Index,
				chunk.Content,
				chunk.StartChar,
				chunk.EndChar,
				vectorValue(chunk.Embedding),
				chunk.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
			}
		}
		return nil
	})
}

// GetByDocument retrieves a document's chunks ordered by index.
func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content, start_char, end_char,
			embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index
	`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*domain.DocumentChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SemanticSearch returns up to limit chunks by cosine similarity against the
// query embedding, filtered to similarity >= threshold, most similar first.
func (s *ChunkStore) SemanticSearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*domain.ScoredChunk, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, document_id, chunk_index, content, start_char, end_char,
			embedding, created_at,
			1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE embedding IS NOT NULL
			AND 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	var results []*domain.ScoredChunk
	for rows.Next() {
		var (
			chunk domain.DocumentChunk
			vec   nullVector
			sim   float64
		)
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Index,
			&chunk.Content,
			&chunk.StartChar,
			&chunk.EndChar,
			&vec,
			&chunk.CreatedAt,
			&sim,
		)
		if err != nil {
			return nil, fmt.Errorf("scan semantic hit: %w", err)
		}
		chunk.Embedding = vec.Slice()
		results = append(results, &domain.ScoredChunk{
			Chunk:      &chunk,
			Similarity: sim,
			Semantic:   true,
		})
	}
	return results, rows.Err()
}

// TextSearch returns up to limit chunks matching the query text by lexical
// full-text rank.
func (s *ChunkStore) TextSearch(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error) {
	sqlQuery := `
		SELECT id, document_id, chunk_index, content, start_char, end_char,
			embedding, created_at
		FROM document_chunks
		WHERE to_tsvector('english', content) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank_cd(to_tsvector('english', content), plainto_tsquery('english', $1)) DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var results []*domain.ScoredChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, &domain.ScoredChunk{Chunk: chunk})
	}
	return results, rows.Err()
}

func scanChunk(rows *sql.Rows) (*domain.DocumentChunk, error) {
	var (
		chunk domain.DocumentChunk
		vec   nullVector
	)
	err := rows.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.Index,
		&chunk.Content,
		&chunk.StartChar,
		&chunk.EndChar,
		&vec,
		&chunk.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.Embedding = vec.Slice()
	return &chunk, nil
}
