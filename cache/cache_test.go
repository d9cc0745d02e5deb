package cache

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-api/api"
)

func TestNop(t *testing.T) {
	var c TodoCache = Nop{}
	ctx := context.Background()

	c.Set(ctx, api.Todo{ID: 1, Title: "x"}, 0)
	_, v, ok := c.Get(ctx, 1)
	assert.False(t, ok)
	assert.Equal(t, NoVersion, v)
	c.Invalidate(ctx, 1)
	assert.NoError(t, c.Close())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "todo:42", key(42))
	assert.Equal(t, "todo:42:version", versionKey(42))
}

// TestRedis needs a running server; point REDIS_TEST_ADDR at it.
func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()
	c, err := NewRedis(ctx, addr, time.Minute, log)
	require.NoError(t, err)
	defer c.Close()

	todo := api.Todo{ID: 987654, Title: "cached", Completed: true, UserID: 3}
	c.Invalidate(ctx, todo.ID)

	_, v, ok := c.Get(ctx, todo.ID)
	assert.False(t, ok)
	assert.NotEqual(t, NoVersion, v)

	c.Set(ctx, todo, v)
	got, _, ok := c.Get(ctx, todo.ID)
	require.True(t, ok)
	assert.Equal(t, todo, got)

	c.Invalidate(ctx, todo.ID)
	_, _, ok = c.Get(ctx, todo.ID)
	assert.False(t, ok)
}

func TestRedis_SetAfterInvalidateIsDropped(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()
	c, err := NewRedis(ctx, addr, time.Minute, log)
	require.NoError(t, err)
	defer c.Close()

	todo := api.Todo{ID: 987655, Title: "before delete", UserID: 3}
	c.Invalidate(ctx, todo.ID)

	// a reader misses and loads the row, then a delete lands before it writes back
	_, v, ok := c.Get(ctx, todo.ID)
	require.False(t, ok)
	c.Invalidate(ctx, todo.ID)
	c.Set(ctx, todo, v)

	_, next, ok := c.Get(ctx, todo.ID)
	assert.False(t, ok)
	assert.Greater(t, int64(next), int64(v))

	c.Set(ctx, todo, NoVersion)
	_, _, ok = c.Get(ctx, todo.ID)
	assert.False(t, ok)
}

func TestNewRedis_Unreachable(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedis(ctx, "127.0.0.1:1", time.Minute, log)
	assert.Error(t, err)
}
