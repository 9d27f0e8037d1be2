package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenClock lets tests move cache time without sleeping.
type frozenClock struct {
	t time.Time
}

func (c *frozenClock) now() time.Time {
	return c.t
}

func (c *frozenClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestStore(ttl time.Duration, maxBytes int) (*MemoryStore, *frozenClock) {
	clock := &frozenClock{t: time.Unix(1700000000, 0)}
	store := NewMemoryStore(ttl, maxBytes)
	store.now = clock.now
	return store, clock
}

func TestMemoryStoreGetBeforeTTL(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(5*time.Minute, 0)

	require.NoError(t, store.Set(ctx, "assignment:a1", []byte(`{"title":"quiz"}`)))

	clock.advance(4 * time.Minute)

	val, err := store.Get(ctx, "assignment:a1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"quiz"}`), val)
}

func TestMemoryStoreExpiredEntryIsMissAndEvicted(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(5*time.Minute, 0)

	require.NoError(t, store.Set(ctx, "assignment:a1", []byte("v")))

	clock.advance(5 * time.Minute)

	_, err := store.Get(ctx, "assignment:a1")
	assert.ErrorIs(t, err, ErrMiss)

	// A later Get must not resurrect the entry, even after the clock moves
	// back under the TTL horizon for a fresh write.
	_, err = store.Get(ctx, "assignment:a1")
	assert.ErrorIs(t, err, ErrMiss)

	store.mu.Lock()
	_, stillThere := store.entries["assignment:a1"]
	store.mu.Unlock()
	assert.False(t, stillThere, "expired entry should be purged on read")
}

func TestMemoryStoreOverwriteResetsClock(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(5*time.Minute, 0)

	require.NoError(t, store.Set(ctx, "k", []byte("old")))
	clock.advance(4 * time.Minute)
	require.NoError(t, store.Set(ctx, "k", []byte("new")))
	clock.advance(4 * time.Minute)

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), val)
}

func TestMemoryStoreSizeBound(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Minute, 8)

	err := store.Set(ctx, "big", []byte("123456789"))
	assert.ErrorIs(t, err, ErrValueTooLarge)

	// The oversized Set must not leave a partial entry behind.
	_, err = store.Get(ctx, "big")
	assert.ErrorIs(t, err, ErrMiss)

	assert.NoError(t, store.Set(ctx, "ok", []byte("12345678")))
}

func TestMemoryStoreRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(time.Minute, 0)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))

	require.NoError(t, store.Remove(ctx, "a"))
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)

	// Removing an absent key is not an error.
	assert.NoError(t, store.Remove(ctx, "a"))

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
}
