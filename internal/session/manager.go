// Package session maps caller conversation ids to remote assistant threads.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"walter-bridge/internal/metrics"
	"walter-bridge/internal/store"
)

// createTimeout bounds a shared thread creation once its first caller is gone.
const createTimeout = 30 * time.Second

// DefaultResetKeywords restart a conversation when sent as the whole message.
var DefaultResetKeywords = []string{"restart", "start over", "new chat", "reset"}

// ThreadCreator allocates a new remote thread.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

type Manager struct {
	store   store.ThreadStore
	threads ThreadCreator
	logger  *zap.Logger
	metrics *metrics.Collector
	reset   map[string]bool
	// creating collapses concurrent first messages for one conversation into
	// a single remote thread.
	creating singleflight.Group
}

func NewManager(st store.ThreadStore, threads ThreadCreator, resetKeywords []string, logger *zap.Logger, m *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(resetKeywords) == 0 {
		resetKeywords = DefaultResetKeywords
	}
	mgr := &Manager{
		store:   st,
		threads: threads,
		logger:  logger,
		metrics: m,
		reset:   make(map[string]bool, len(resetKeywords)),
	}
	for _, k := range resetKeywords {
		mgr.reset[normalizeCommand(k)] = true
	}
	return mgr
}

// GetOrCreate returns the thread for conversationID, creating and storing one
// on first contact. An empty conversationID gets a fresh thread that is not
// remembered.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID string) (string, error) {
	if conversationID == "" {
		return m.create(ctx, "")
	}
	if id, ok, err := m.store.GetThread(ctx, conversationID); err != nil {
		return "", fmt.Errorf("session lookup: %w", err)
	} else if ok {
		return id, nil
	}

	// The flight outlives any single caller; each caller still stops waiting
	// when its own context ends.
	ch := m.creating.DoChan(conversationID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		// Another caller may have finished creating while we waited.
		if id, ok, err := m.store.GetThread(fctx, conversationID); err == nil && ok {
			return id, nil
		}
		id, err := m.create(fctx, conversationID)
		if err != nil {
			return "", err
		}
		if err := m.store.SetThread(fctx, conversationID, id); err != nil {
			// The answer can still be produced; only continuity is lost.
			m.logger.Warn("failed to store conversation thread",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return id, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Reset forgets the conversation so the next message starts a new thread.
func (m *Manager) Reset(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	if err := m.store.DeleteThread(ctx, conversationID); err != nil {
		return fmt.Errorf("session reset: %w", err)
	}
	m.logger.Info("conversation reset", zap.String("conversation_id", conversationID))
	return nil
}

// IsReset reports whether text is exactly one of the reset keywords.
func (m *Manager) IsReset(text string) bool {
	return m.reset[normalizeCommand(text)]
}

func (m *Manager) create(ctx context.Context, conversationID string) (string, error) {
	id, err := m.threads.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	m.metrics.ThreadCreated()
	m.logger.Debug("created thread", zap.String("conversation_id", conversationID), zap.String("thread_id", id))
	return id, nil
}

func normalizeCommand(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
