// Package catalog keeps the durable record of ingested sources used for
// deduplication and listing.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// Source ingestion statuses.
const (
	StatusPending = "pending"
	StatusReady   = "ready"
)

// Source is a logical document: its display name, the digest of its
// normalized content and the ingestion status. The digest uniquely
// determines content identity.
type Source struct {
	ID     string
	Name   string
	Digest string
	Status string
}

// Catalog is a SQLite-backed source catalog. Safe for concurrent use.
type Catalog struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL UNIQUE,
	digest     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS messages (
	rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
	session    TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session);
`

// Open creates or opens the catalog database under dataDir.
func Open(dataDir string) (*Catalog, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return &Catalog{db: db, path: dbPath}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// DB exposes the underlying handle for collaborators sharing the database,
// such as the conversation memory store.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// ExistsAny reports whether at least one source has been ingested.
func (c *Catalog) ExistsAny(ctx context.Context) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sources").Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count sources: %w", err)
	}

	return n > 0, nil
}

// FindByName returns the source with the given name, or nil when absent.
func (c *Catalog) FindByName(ctx context.Context, name string) (*Source, error) {
	var src Source
	err := c.db.QueryRowContext(ctx,
		"SELECT id, name, digest, status FROM sources WHERE name = ?", name).
		Scan(&src.ID, &src.Name, &src.Digest, &src.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up source %s: %w", name, err)
	}

	return &src, nil
}

// Upsert creates the source or updates its digest and status in place.
func (c *Catalog) Upsert(ctx context.Context, name, digest, status string) (*Source, error) {
	id := uuid.NewString()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, digest, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			digest = excluded.digest,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		id, name, digest, status)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert source %s: %w", name, err)
	}

	return c.FindByName(ctx, name)
}

// List returns sources in insertion order plus the unfiltered total count.
func (c *Catalog) List(ctx context.Context, limit, skip int) ([]Source, int, error) {
	var total int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sources").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sources: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, name, digest, status FROM sources ORDER BY rowid LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Name, &src.Digest, &src.Status); err != nil {
			return nil, 0, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sources: %w", err)
	}

	return sources, total, nil
}

// All returns every catalogued source, used by the watch registry to diff
// the catalog against the watched directory.
func (c *Catalog) All(ctx context.Context) ([]Source, error) {
	sources, _, err := c.List(ctx, -1, 0)
	return sources, err
}

// Delete removes the source record; no-op when absent.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM sources WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete source %s: %w", name, err)
	}

	return nil
}
