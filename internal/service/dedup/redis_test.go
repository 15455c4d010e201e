package dedup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	c := NewRedisCache(rdb, time.Minute, "trade-alert-test:")
	key := uuid.NewString()
	ctx := context.Background()

	ok, err := c.Admit(ctx, key, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Admit(ctx, key, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rdb.Del(ctx, "trade-alert-test:"+key).Err())
}
