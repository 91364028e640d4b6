package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore checks the one-thread-per-conversation contract.
func exerciseStore(t *testing.T, s ThreadStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.GetThread(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetThread(ctx, "conv-1", "thread_a"))
	id, ok, err := s.GetThread(ctx, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "thread_a", id)

	// Replace, never merge.
	require.NoError(t, s.SetThread(ctx, "conv-1", "thread_b"))
	id, _, _ = s.GetThread(ctx, "conv-1")
	assert.Equal(t, "thread_b", id)

	require.NoError(t, s.SetThread(ctx, "conv-2", "thread_c"))
	require.NoError(t, s.DeleteThread(ctx, "conv-1"))
	_, ok, _ = s.GetThread(ctx, "conv-1")
	assert.False(t, ok)
	id, ok, _ = s.GetThread(ctx, "conv-2")
	assert.True(t, ok)
	assert.Equal(t, "thread_c", id)

	// Deleting an unknown conversation is not an error.
	assert.NoError(t, s.DeleteThread(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreConcurrentConversations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := string(rune('a' + i%26))
			_ = s.SetThread(ctx, conv+"-conv", "t")
			_, _, _ = s.GetThread(ctx, conv+"-conv")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, s.Len())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	// A fresh store sees the snapshot written by the first one.
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	id, ok, err := reloaded.GetThread(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "thread_c", id)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, ttl), mr
}

func TestRedisStore(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	exerciseStore(t, s)
	assert.True(t, mr.Exists(defaultRedisPrefix+"conv-2"))
	assert.Equal(t, time.Duration(0), mr.TTL(defaultRedisPrefix+"conv-2"))
}

func TestRedisStoreTTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	require.NoError(t, s.SetThread(context.Background(), "conv", "thread"))
	assert.Equal(t, time.Hour, mr.TTL(defaultRedisPrefix+"conv"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := s.GetThread(context.Background(), "conv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", 0)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	_, err = NewRedisStore(context.Background(), "not a url", 0)
	assert.Error(t, err)
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	mr.Close()
	_, _, err := s.GetThread(context.Background(), "conv")
	assert.Error(t, err)
}
