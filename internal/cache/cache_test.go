package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache[bool]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "nonce-1", true, time.Minute))

	got, err := c.Get(ctx, "nonce-1")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache[bool]()

	_, err := c.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache[string]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache[string]()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheHealthAndClose(t *testing.T) {
	c := NewMemoryCache[string]()
	assert.NoError(t, c.Health(context.Background()))
	assert.NoError(t, c.Close())
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache[int]()
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", n, time.Minute)
				_, _ = c.Get(ctx, "shared")
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
