package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"smallbiznis-tokenomics/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const (
	BurnPrefix     = "BRN"
	BuyOrderPrefix = "SBO"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator issues human-readable daily reference codes such as
// BRN-261019-00AXY.
type Generator interface {
	NextBurnReference(ctx context.Context) (string, error)
	NextBuyOrderReference(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextBurnReference(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, BurnPrefix)
}

func (g *RedisGenerator) NextBuyOrderReference(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, BuyOrderPrefix)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildSequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("incr %s: %w", key, err)
	}

	if seq == 1 {
		endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = g.rdb.ExpireAt(ctx, key, endOfDay).Err()
	}

	return format(prefix, today, seq)
}

func format(prefix, day string, seq int64) (string, error) {
	encodedSeq := strings.ToUpper(strconv.FormatInt(seq, 36))
	if n := len(encodedSeq); n < 3 {
		encodedSeq = strings.Repeat("0", 3-n) + encodedSeq
	}

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
