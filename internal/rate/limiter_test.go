package rate

import (
	"context"
	"os"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := l.Allow(ctx, "7")
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	r, err := l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, int64(0), r.Remaining)
	assert.Equal(t, 50*time.Second, r.RetryAfter)

	// otro usuario tiene su propio contador
	r, err = l.Allow(ctx, "8")
	require.NoError(t, err)
	assert.True(t, r.Allowed)

	// ventana nueva
	now = now.Add(time.Minute)
	r, err = l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.CurrentHits)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLimiter(client, "gigtest:rl:"+time.Now().Format("150405.000")+":", 1, time.Minute)
	ctx := context.Background()
	r, err := l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	r, err = l.Allow(ctx, "7")
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Greater(t, r.RetryAfter, time.Duration(0))
}
