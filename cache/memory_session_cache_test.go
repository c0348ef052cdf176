package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/wabroker/domain"
)

func testSession(id string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:        id,
		UserID:    "user-1",
		Status:    domain.SessionStatusQRCode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemorySessionCache_SetGet(t *testing.T) {
	c := NewMemorySessionCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), testSession("s-1")))

	got, ok := c.Get(context.Background(), "s-1")
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID)

	_, ok = c.Get(context.Background(), "unknown")
	assert.False(t, ok)
}

func TestMemorySessionCache_Delete(t *testing.T) {
	c := NewMemorySessionCache(time.Minute)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), testSession("s-1")))
	assert.True(t, c.Delete(context.Background(), "s-1"))

	_, ok := c.Get(context.Background(), "s-1")
	assert.False(t, ok)

	assert.False(t, c.Delete(context.Background(), "s-1"), "deleting an absent entry reports false")
}

func TestMemorySessionCache_EntriesExpire(t *testing.T) {
	c := NewMemorySessionCache(20 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), testSession("s-1")))
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get(context.Background(), "s-1")
	assert.False(t, ok, "entries vanish after the TTL")
}
