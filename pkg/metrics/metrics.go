package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const namespace = "tokens"

var (
	ChainAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_attempts_total",
		Help:      "Blockchain provider calls, including retries.",
	}, []string{"operation"})

	ChainRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_retries_total",
		Help:      "Blockchain provider calls that were retried after an error.",
	}, []string{"operation"})

	ChainFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chain_failures_total",
		Help:      "Blockchain operations that failed after exhausting retries.",
	}, []string{"operation"})

	BurnsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "burns_processed_total",
		Help:      "Burn flows by transaction type and outcome.",
	}, []string{"transaction_type", "outcome"})

	TokensBurned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "burned_total",
		Help:      "Confirmed burned token amount.",
	}, []string{"transaction_type"})

	LeaderboardUpdateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "leaderboard_update_duration_seconds",
		Help:      "Duration of a full leaderboard recompute.",
		Buckets:   prometheus.DefBuckets,
	})

	LeaderboardCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_cache_total",
		Help:      "Top users cache lookups by result.",
	}, []string{"result"})

	BuyOrders = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buy_orders_total",
		Help:      "System buy orders by status.",
	}, []string{"status"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ChainAttempts,
		ChainRetries,
		ChainFailures,
		BurnsProcessed,
		TokensBurned,
		LeaderboardUpdateDuration,
		LeaderboardCache,
		BuyOrders,
	}
}

// Register adds every collector to reg. Collectors that are already registered
// are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

var Module = fx.Module("metrics",
	fx.Provide(func() prometheus.Registerer { return prometheus.DefaultRegisterer }),
	fx.Invoke(Register),
)
