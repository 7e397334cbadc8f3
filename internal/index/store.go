package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/semdex/internal/document"
	"github.com/ChamsBouzaiene/semdex/internal/embed"
)

// Store persists a built index to sqlite so a later run can reload it
// without re-embedding. One database holds one index snapshot.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) an index database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	// WAL mode allows a reader to coexist with the writer.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping index database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		position INTEGER PRIMARY KEY,
		content  TEXT NOT NULL,
		metadata TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		position INTEGER PRIMARY KEY,
		dim      INTEGER NOT NULL,
		vector   BLOB NOT NULL,
		FOREIGN KEY (position) REFERENCES chunks(position) ON DELETE CASCADE
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save replaces the stored snapshot with the contents of ix.
func (s *Store) Save(ctx context.Context, ix *Index) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("failed to clear embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for i := 0; i < ix.Len(); i++ {
		e := ix.entries[i]

		metadata, err := json.Marshal(e.chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (position, content, metadata) VALUES (?, ?, ?)`,
			i, e.chunk.Content, string(metadata)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (position, dim, vector) VALUES (?, ?, ?)`,
			i, len(e.vector), embed.EncodeVector(e.vector)); err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index snapshot: %w", err)
	}
	return nil
}

// Load reads the stored snapshot back into a fresh index in the original
// insertion order. Numeric metadata values come back as float64 (JSON).
func (s *Store) Load(ctx context.Context) (*Index, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.content, c.metadata, e.vector
		FROM chunks c JOIN embeddings e ON e.position = c.position
		ORDER BY c.position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query index snapshot: %w", err)
	}
	defer rows.Close()

	ix := New()
	for rows.Next() {
		var content, metadataJSON string
		var vectorBytes []byte
		if err := rows.Scan(&content, &metadataJSON, &vectorBytes); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		var metadata map[string]any
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to parse chunk metadata: %w", err)
		}

		vector, err := embed.DecodeVector(vectorBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored vector: %w", err)
		}

		if err := ix.Add(document.Chunk{Content: content, Metadata: metadata}, vector); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate index snapshot: %w", err)
	}
	return ix, nil
}
