package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	c, err := New(Config{Driver: "memory", Prefix: "tg"})
	require.NoError(t, err)

	_, err = c.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIncr(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")

	n, err := c.Incr(ctx, "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "counter", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	v, err := c.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	require.NoError(t, c.Set(ctx, "fromset", "10", 0))
	n, err = c.Incr(ctx, "fromset", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", st.Driver)
	assert.Equal(t, int64(2), st.Keys)
}
