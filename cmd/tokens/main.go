package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/db"
	"smallbiznis-tokenomics/pkg/gen"
	"smallbiznis-tokenomics/pkg/hashistack/secretmanager"
	"smallbiznis-tokenomics/pkg/health"
	"smallbiznis-tokenomics/pkg/httpapi"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/pkg/otelcol"
	"smallbiznis-tokenomics/pkg/profiling"
	"smallbiznis-tokenomics/pkg/redis"
	"smallbiznis-tokenomics/pkg/sequence"
	"smallbiznis-tokenomics/pkg/server"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/services/burn"
	"smallbiznis-tokenomics/services/buyorder"
	"smallbiznis-tokenomics/services/chain"
	"smallbiznis-tokenomics/services/leaderboard"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		metrics.Module,
		otelcol.Module,
		profiling.Module,
		task.Client,
		sequence.Module,
		chain.Module,
		leaderboard.Module,
		burn.Module,
		buyorder.Module,
		health.Module,
		httpapi.Module,
		server.ProvideGRPCServer,
		health.GRPC,
		server.ProvideHTTPServer,
		fx.Invoke(logSupply),
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})

// logSupply builds the burn pipeline eagerly so bad token settings fail the
// start, then reports the current supply.
func logSupply(lc fx.Lifecycle, tracker *burn.Tracker, _ *burn.Integration, _ *buyorder.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			supply, err := tracker.GetTokenSupply(ctx)
			if err != nil {
				zap.L().Warn("failed to read token supply", zap.Error(err))
				return nil
			}
			if supply == nil {
				zap.L().Info("token supply not initialised yet")
				return nil
			}
			zap.L().Info("token supply",
				zap.String("total", supply.TotalSupply.String()),
				zap.String("circulating", supply.CirculatingSupply.String()),
				zap.String("burned", supply.BurnedSupply.String()),
			)
			return nil
		},
	})
}
