package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
)

// ErrNotFound is returned when a requested page or chunk is not stored.
var ErrNotFound = errors.New("not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pages (
		page_id       TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		space_key     TEXT NOT NULL DEFAULT '',
		version       INTEGER NOT NULL DEFAULT 0,
		last_modified TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		chunk_count   INTEGER NOT NULL DEFAULT 0,
		block_count   INTEGER NOT NULL DEFAULT 0,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		chunk_id     TEXT PRIMARY KEY,
		page_id      TEXT NOT NULL REFERENCES pages(page_id) ON DELETE CASCADE,
		page_version INTEGER NOT NULL,
		chunk_index  INTEGER NOT NULL,
		token_count  INTEGER NOT NULL,
		payload      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_page ON chunks(page_id, chunk_index)`,
	`CREATE TABLE IF NOT EXISTS blocks (
		page_id     TEXT NOT NULL REFERENCES pages(page_id) ON DELETE CASCADE,
		block_index INTEGER NOT NULL,
		payload     TEXT NOT NULL,
		PRIMARY KEY (page_id, block_index)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		finished_at TEXT NOT NULL,
		pages       INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		empty       INTEGER NOT NULL,
		chunks      INTEGER NOT NULL,
		tokens      INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		settings    TEXT NOT NULL
	)`,
}

// StoredPage is a page row as kept by the SQLite sink.
type StoredPage struct {
	ID           string `json:"page_id"`
	Title        string `json:"title"`
	SpaceKey     string `json:"space_key"`
	Version      int    `json:"version"`
	LastModified string `json:"last_modified"`
	URL          string `json:"url"`
	ChunkCount   int    `json:"chunk_count"`
	BlockCount   int    `json:"block_count"`
	UpdatedAt    string `json:"updated_at"`
}

// SQLite keeps the latest chunks of every page it has seen. Re-writing a
// page replaces its chunk set in one transaction.
type SQLite struct {
	mu            sync.Mutex
	db            *sql.DB
	includeBlocks bool
}

// openDatabase opens a SQLite database with WAL and a single connection.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// NewSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway store.
func NewSQLite(ctx context.Context, path string, includeBlocks bool) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return &SQLite{db: db, includeBlocks: includeBlocks}, nil
}

func (s *SQLite) WritePage(ctx context.Context, p page.Page, blocks []page.Block, chunks []page.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pages (page_id, title, space_key, version, last_modified, url, chunk_count, block_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			title = excluded.title,
			space_key = excluded.space_key,
			version = excluded.version,
			last_modified = excluded.last_modified,
			url = excluded.url,
			chunk_count = excluded.chunk_count,
			block_count = excluded.block_count,
			updated_at = excluded.updated_at`,
		p.ID, p.Title, p.SpaceKey, p.Version, p.LastModified, p.URL,
		len(chunks), len(blocks), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", p.ID, err)
	}

	if err := deleteStaleChunks(ctx, tx, p.ID, chunks); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, page_id, page_version, chunk_index, token_count, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			page_id = excluded.page_id,
			page_version = excluded.page_version,
			chunk_index = excluded.chunk_index,
			token_count = excluded.token_count,
			payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal chunk %s: %w", c.ChunkID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ChunkID, p.ID, p.Version, c.ChunkIndex, c.TokenCount, string(payload)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}

	if s.includeBlocks {
		if err := replaceBlocks(ctx, tx, p.ID, blocks); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// deleteStaleChunks removes the page's chunks whose ids are not in the new set.
func deleteStaleChunks(ctx context.Context, tx *sql.Tx, pageID string, chunks []page.Chunk) error {
	query := `DELETE FROM chunks WHERE page_id = ?`
	args := []any{pageID}
	if len(chunks) > 0 {
		query += ` AND chunk_id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(chunks)), ",") + `)`
		for _, c := range chunks {
			args = append(args, c.ChunkID)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete stale chunks for %s: %w", pageID, err)
	}
	return nil
}

func replaceBlocks(ctx context.Context, tx *sql.Tx, pageID string, blocks []page.Block) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("clear blocks for %s: %w", pageID, err)
	}
	for _, b := range blocks {
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", b.Index, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blocks (page_id, block_index, payload) VALUES (?, ?, ?)`,
			pageID, b.Index, string(payload)); err != nil {
			return fmt.Errorf("insert block %d for %s: %w", b.Index, pageID, err)
		}
	}
	return nil
}

// Close records the run and closes the database.
func (s *SQLite) Close(ctx context.Context, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := json.Marshal(summary.Settings)
	if err != nil {
		_ = s.db.Close()
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (finished_at, pages, failed, empty, chunks, tokens, duration_ms, settings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), summary.Pages, summary.Failed, summary.Empty,
		summary.Chunks, summary.Tokens, summary.Duration.Milliseconds(), string(settings))
	closeErr := s.db.Close()
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return closeErr
}

// Release closes the database without recording a run, for read-only use.
func (s *SQLite) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Pages lists stored pages ordered by id.
func (s *SQLite) Pages(ctx context.Context) ([]StoredPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT page_id, title, space_key, version, last_modified, url, chunk_count, block_count, updated_at
		FROM pages ORDER BY page_id`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []StoredPage{}
	for rows.Next() {
		var p StoredPage
		if err := rows.Scan(&p.ID, &p.Title, &p.SpaceKey, &p.Version, &p.LastModified, &p.URL,
			&p.ChunkCount, &p.BlockCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Chunks returns a page's stored chunks in chunk order, or ErrNotFound if
// the page is unknown.
func (s *SQLite) Chunks(ctx context.Context, pageID string) ([]page.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pages WHERE page_id = ?`, pageID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup page %s: %w", pageID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM chunks WHERE page_id = ? ORDER BY chunk_index`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", pageID, err)
	}
	defer rows.Close()

	chunks := []page.Chunk{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		var c page.Chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return nil, fmt.Errorf("decode chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeletePage removes a page with its chunks and blocks.
func (s *SQLite) DeletePage(ctx context.Context, pageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE page_id = ?`, pageID)
	if err != nil {
		return fmt.Errorf("delete page %s: %w", pageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
