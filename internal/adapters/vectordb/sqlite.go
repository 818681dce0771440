package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// SQLiteStore persists chunks and documents in a single SQLite file.
// Search is brute-force cosine similarity over every stored chunk.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	dataPath string
}

// NewSQLiteStore opens (or creates) dataPath/vectors.db.
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "vectors.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		dataPath: dataPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Store saves chunks with their embeddings.
func (s *SQLiteStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace deletes a document's chunks and inserts chunks in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, documentID string, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []entities.Chunk) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, document_id, source, content, chunk_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.Source,
			chunk.Content,
			chunk.Index,
			embeddingJSON,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}
	return nil
}

// Search finds the k chunks most similar to embedding.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, k int) ([]entities.ContextChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, source, content, chunk_index, embedding
		FROM chunks
		ORDER BY rowid
	`)
	if err != nil {
		return nil, searchError(ctx, fmt.Errorf("querying chunks: %w", err))
	}
	defer rows.Close()

	var candidates []entities.Chunk
	for rows.Next() {
		var chunk entities.Chunk
		var embeddingJSON []byte

		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Source, &chunk.Content, &chunk.Index, &embeddingJSON)
		if err != nil {
			return nil, searchError(ctx, fmt.Errorf("scanning row: %w", err))
		}

		if err := json.Unmarshal(embeddingJSON, &chunk.Embedding); err != nil {
			continue // Skip corrupted embeddings
		}
		candidates = append(candidates, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, searchError(ctx, err)
	}

	return topK(embedding, candidates, k), nil
}

// Delete removes all chunks for a document.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	return err
}

// Clear removes all chunks and documents.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks; DELETE FROM documents;")
	return err
}

// HasAny reports whether at least one document is stored.
func (s *SQLiteStore) HasAny(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM documents LIMIT 1").Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveDocument inserts or replaces a document record.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, source, path, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Source, doc.Path, doc.Content, string(meta), doc.CreatedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id or ports.ErrDocumentNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, path, content, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns every document, oldest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, path, content, metadata, created_at, updated_at
		FROM documents ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document record.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entities.Document, error) {
	var doc entities.Document
	var meta string
	var created, updated time.Time
	if err := row.Scan(&doc.ID, &doc.Source, &doc.Path, &doc.Content, &meta, &created, &updated); err != nil {
		return nil, err
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	doc.CreatedAt = created
	doc.UpdatedAt = updated
	return &doc, nil
}
