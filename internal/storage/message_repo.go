package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_message_store.go -package=mocks aurora-qa/internal/storage MessageStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sqliteMaxParams keeps IN (...) lists under SQLite's host parameter limit.
const sqliteMaxParams = 500

// MessageStore defines the interface for message storage operations.
type MessageStore interface {
	// Upsert inserts or replaces messages by ID and returns how many rows were written.
	Upsert(ctx context.Context, messages []MessageRecord) (int, error)
	// GetByIDs returns the messages that exist for ids, keyed by ID. Missing IDs are absent from the map.
	GetByIDs(ctx context.Context, ids []string) (map[string]MessageRecord, error)
	// ListAuthors returns every distinct author with its message count, ordered by user ID then name.
	ListAuthors(ctx context.Context) ([]Author, error)
	// Count returns the number of stored messages.
	Count(ctx context.Context) (int, error)
}

// MessageRepo provides methods for message operations.
// It implements the MessageStore interface.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a new MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Upsert inserts or replaces messages in a single transaction.
func (r *MessageRepo) Upsert(ctx context.Context, messages []MessageRecord) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (id, user_id, user_name, timestamp, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			timestamp = excluded.timestamp,
			text = excluded.text,
			indexed_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	written := 0
	for _, m := range messages {
		if m.ID == "" {
			return written, fmt.Errorf("message id is required")
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.UserID, m.UserName, m.Timestamp, m.Text); err != nil {
			return written, fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit messages: %w", err)
	}
	return written, nil
}

// GetByIDs fetches messages in batches and returns them keyed by ID.
func (r *MessageRepo) GetByIDs(ctx context.Context, ids []string) (map[string]MessageRecord, error) {
	result := make(map[string]MessageRecord, len(ids))
	for start := 0; start < len(ids); start += sqliteMaxParams {
		end := min(start+sqliteMaxParams, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}

		rows, err := r.db.QueryContext(ctx,
			"SELECT id, user_id, user_name, timestamp, text FROM messages WHERE id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query messages: %w", err)
		}
		for rows.Next() {
			var m MessageRecord
			if err := rows.Scan(&m.ID, &m.UserID, &m.UserName, &m.Timestamp, &m.Text); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan message: %w", err)
			}
			result[m.ID] = m
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating messages: %w", err)
		}
	}
	return result, nil
}

// ListAuthors returns distinct authors. A user ID that appears under two
// display names yields two rows.
func (r *MessageRepo) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, user_name, COUNT(*) FROM messages GROUP BY user_id, user_name ORDER BY user_id, user_name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list authors: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.Name, &a.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating authors: %w", err)
	}
	return authors, nil
}

// Count returns the number of stored messages.
func (r *MessageRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
