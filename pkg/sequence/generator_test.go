package sequence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisGeneratorDailyCodes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	g := &RedisGenerator{
		rdb: rdb,
		now: func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) },
	}
	ctx := context.Background()

	first, err := g.NextBurnReference(ctx)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^BRN-261019-001[A-Z2-9]{2}$`), first)

	second, err := g.NextBurnReference(ctx)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^BRN-261019-002[A-Z2-9]{2}$`), second)

	order, err := g.NextBuyOrderReference(ctx)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^SBO-261019-001`), order)

	require.True(t, mr.Exists("seq:BRN:261019"))
}
