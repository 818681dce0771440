package vectordb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// PostgresStore persists chunks and documents in PostgreSQL.
// Embeddings are stored as real[] and scored in process.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rag_documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			path TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rag_chunks (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			embedding REAL[] NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rag_chunks_document_id ON rag_chunks (document_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Store saves chunks in one batch.
func (s *PostgresStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.pool.SendBatch(ctx, chunkBatch(chunks)).Close(); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	return nil
}

// Replace deletes a document's chunks and stores chunks in one transaction.
func (s *PostgresStore) Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM rag_chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, chunkBatch(chunks)).Close(); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	return nil
}

func chunkBatch(chunks []entities.Chunk) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO rag_chunks (id, document_id, source, content, chunk_index, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET document_id = EXCLUDED.document_id, source = EXCLUDED.source,
			   content = EXCLUDED.content, chunk_index = EXCLUDED.chunk_index, embedding = EXCLUDED.embedding`,
			c.ID, c.DocumentID, c.Source, c.Content, c.Index, c.Embedding,
		)
	}
	return batch
}

// Search finds the k chunks most similar to embedding.
func (s *PostgresStore) Search(ctx context.Context, embedding []float32, k int) ([]entities.ContextChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, source, content, chunk_index, embedding FROM rag_chunks ORDER BY seq`)
	if err != nil {
		return nil, searchError(ctx, fmt.Errorf("query chunks: %w", err))
	}
	defer rows.Close()

	var candidates []entities.Chunk
	for rows.Next() {
		var c entities.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Content, &c.Index, &c.Embedding); err != nil {
			return nil, searchError(ctx, fmt.Errorf("scan chunk row: %w", err))
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, searchError(ctx, fmt.Errorf("iterate chunk rows: %w", err))
	}

	return topK(embedding, candidates, k), nil
}

// Delete removes all chunks for a document.
func (s *PostgresStore) Delete(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Clear removes all chunks and documents.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE rag_chunks, rag_documents`); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// HasAny reports whether at least one document is stored.
func (s *PostgresStore) HasAny(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rag_documents)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check documents: %w", err)
	}
	return exists, nil
}

// SaveDocument inserts or replaces a document record.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	meta := doc.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rag_documents (id, source, path, content, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source, path = EXCLUDED.path,
		   content = EXCLUDED.content, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Source, doc.Path, doc.Content, meta, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id or ports.ErrDocumentNotFound.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, path, content, metadata, created_at, updated_at FROM rag_documents WHERE id = $1`, id)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns every document, oldest first.
func (s *PostgresStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, path, content, metadata, created_at, updated_at FROM rag_documents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes the document record.
func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM rag_documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgDocument(row pgx.Row) (*entities.Document, error) {
	var doc entities.Document
	var created, updated time.Time
	if err := row.Scan(&doc.ID, &doc.Source, &doc.Path, &doc.Content, &doc.Metadata, &created, &updated); err != nil {
		return nil, err
	}
	doc.CreatedAt = created
	doc.UpdatedAt = updated
	return &doc, nil
}
