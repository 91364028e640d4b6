// Package store keeps the conversation id -> remote thread id mapping. Every
// backend holds at most one thread per conversation; deleting the mapping is
// how a conversation is reset.
package store

import "context"

type ThreadStore interface {
	// GetThread returns the stored thread id and whether one exists.
	GetThread(ctx context.Context, conversationID string) (string, bool, error)
	// SetThread replaces any existing mapping.
	SetThread(ctx context.Context, conversationID, threadID string) error
	DeleteThread(ctx context.Context, conversationID string) error
}
