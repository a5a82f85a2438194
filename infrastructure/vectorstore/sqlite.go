package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
	"github.com/ahrav/go-ragqa/internal/vecmath"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	page      INTEGER NOT NULL,
	content   TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
`

// SQLiteStore persists chunks in a single SQLite table. Embeddings are
// little-endian float32 blobs and search is a full scan, which is fast
// enough for document sets of a few tens of thousands of chunks.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.VectorStore = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. An empty path or
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if dsn == "" || dsn == ":memory:" {
		dsn = ":memory:"
	} else {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "open", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore uses an already opened database and creates the schema if
// needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, ports.NewStoreError("sqlite", "migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces chunks in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []domain.Chunk) (err error) {
	if len(chunks) == 0 {
		return nil
	}
	if _, err := validateChunks(chunks); err != nil {
		return ports.NewStoreError("sqlite", "upsert", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.NewStoreError("sqlite", "upsert", fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, source, page, content, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return ports.NewStoreError("sqlite", "upsert", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err = stmt.ExecContext(ctx, c.ID, c.Source, c.Page, c.Content, vecmath.Encode(c.Embedding)); err != nil {
			return ports.NewStoreError("sqlite", "upsert", fmt.Errorf("chunk %s: %w", c.ID, err))
		}
	}

	if err = tx.Commit(); err != nil {
		return ports.NewStoreError("sqlite", "upsert", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Search scans every row and returns the k chunks most cosine-similar to
// vector, best first.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, source, page, content, embedding FROM chunks`)
	if err != nil {
		return nil, ports.NewStoreError("sqlite", "search", err)
	}
	defer rows.Close()

	var results []domain.RetrievedChunk
	for rows.Next() {
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Content, &blob); err != nil {
			return nil, ports.NewStoreError("sqlite", "search", err)
		}
		if c.Embedding, err = vecmath.Decode(blob); err != nil {
			return nil, ports.NewStoreError("sqlite", "search", fmt.Errorf("chunk %s: %w", c.ID, err))
		}
		if len(c.Embedding) != len(vector) {
			return nil, ports.NewStoreError("sqlite", "search",
				fmt.Errorf("chunk %s has dimension %d, query has %d: %w",
					c.ID, len(c.Embedding), len(vector), ports.ErrDimensionMismatch))
		}
		results = append(results, domain.RetrievedChunk{Chunk: c, Score: vecmath.Cosine(vector, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("sqlite", "search", err)
	}

	return rankTopK(results, k), nil
}

// DeleteBySource deletes the rows for source.
func (s *SQLiteStore) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return ports.NewStoreError("sqlite", "delete", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, ports.NewStoreError("sqlite", "count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return ports.NewStoreError("sqlite", "close", err)
	}
	return nil
}
