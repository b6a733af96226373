package burn

import (
	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/services/chain"
	"smallbiznis-tokenomics/services/leaderboard"

	"go.uber.org/fx"
)

var Module = fx.Module("burn.service",
	fx.Provide(
		NewRepository,
		NewCalculatorFromConfig,
		NewTrackerFromConfig,
		NewAdvisor,
		provideBalanceChecker,
		provideSupplySource,
		provideRankingUpdater,
		NewIntegration,
	),
	fx.Provide(fx.Annotate(Models, fx.ResultTags(`group:"models,flatten"`))),
	fx.Invoke(registerVerification),
)

var TaskModule = fx.Module("task.burn",
	fx.Provide(
		NewTask,
		task.AsHandler(newReconcileHandler),
		task.AsHandler(newProcessHandler),
		task.AsPeriodic(newReconcilePeriodic),
	),
)

func provideSupplySource(t *Tracker) leaderboard.SupplySource {
	return t
}

func provideRankingUpdater(u *leaderboard.Updater) RankingUpdater {
	return u
}

// provideBalanceChecker returns nil unless TOKENS.ENFORCE_BALANCE is set.
func provideBalanceChecker(cfg *config.Config, store leaderboard.BalanceStore) BalanceChecker {
	if !cfg.Tokens.EnforceBalance {
		return nil
	}
	return store
}

// registerVerification lets the executor settle PROCESSING burns, the tracker
// re-verify them during reconciliation and every confirmation refresh the
// leaderboard.
func registerVerification(t *Tracker, e *chain.Executor, s *Integration) {
	e.AddListener(t)
	t.SetVerifier(e)
	t.OnConfirmed(s.refreshRankings)
}
