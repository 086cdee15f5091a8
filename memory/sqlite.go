package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gamma-omg/contextqa/llm"
)

// SQLiteStore persists history in the messages table of the catalog
// database, so conversations survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) History(ctx context.Context, session string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM messages WHERE session = ? ORDER BY rowid", session)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for session %s: %w", session, err)
	}
	defer rows.Close()

	var history []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return history, nil
}

func (s *SQLiteStore) Append(ctx context.Context, session string, messages ...llm.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range messages {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO messages (session, role, content) VALUES (?, ?, ?)",
			session, m.Role, m.Content)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history append: %w", err)
	}

	return nil
}
