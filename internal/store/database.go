package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"walter-bridge/internal/db"
)

// DatabaseStore stores the conversation mapping in PostgreSQL so several
// bridge instances share one view of every conversation.
type DatabaseStore struct {
	db *db.DB
}

func NewDatabaseStore(database *db.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

func (ds *DatabaseStore) GetThread(ctx context.Context, conversationID string) (string, bool, error) {
	if conversationID == "" {
		return "", false, fmt.Errorf("conversation_id is required")
	}
	var threadID string
	err := ds.db.QueryRowContext(ctx,
		`SELECT thread_id FROM conversation_threads WHERE conversation_id = $1`,
		conversationID,
	).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get conversation thread: %w", err)
	}
	return threadID, true, nil
}

func (ds *DatabaseStore) SetThread(ctx context.Context, conversationID, threadID string) error {
	if conversationID == "" || threadID == "" {
		return fmt.Errorf("conversation_id and thread_id are required")
	}
	query := `
		INSERT INTO conversation_threads (conversation_id, thread_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (conversation_id)
		DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			updated_at = NOW()
	`
	if _, err := ds.db.ExecContext(ctx, query, conversationID, threadID); err != nil {
		return fmt.Errorf("failed to save conversation thread: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) DeleteThread(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	if _, err := ds.db.ExecContext(ctx, `DELETE FROM conversation_threads WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation thread: %w", err)
	}
	return nil
}
