package leaderboard

import (
	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("leaderboard.service",
	fx.Provide(
		NewBalanceStore,
		provideCache,
		provideUpdater,
	),
	fx.Provide(fx.Annotate(Models, fx.ResultTags(`group:"models,flatten"`))),
)

var TaskModule = fx.Module("task.leaderboard",
	fx.Provide(
		NewTask,
		task.AsHandler(newRebuildHandler),
		task.AsPeriodic(newRebuildPeriodic),
	),
)

type cacheParams struct {
	fx.In

	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// provideCache returns nil without redis or with caching disabled.
func provideCache(p cacheParams) Cache {
	if p.Redis == nil || p.Config.Tokens.Leaderboard.CacheTTL <= 0 {
		return nil
	}
	return NewRedisCache(p.Redis, p.Config.Tokens.Leaderboard.CacheTTL)
}

type updaterParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Balances BalanceStore
	Supply   SupplySource
	Cache    Cache `optional:"true"`
}

func provideUpdater(p updaterParams) *Updater {
	return NewUpdater(p.DB, p.Node, p.Balances, p.Supply, p.Cache)
}
