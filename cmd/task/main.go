package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/db"
	"smallbiznis-tokenomics/pkg/featureflags"
	"smallbiznis-tokenomics/pkg/gen"
	"smallbiznis-tokenomics/pkg/hashistack/secretmanager"
	"smallbiznis-tokenomics/pkg/health"
	"smallbiznis-tokenomics/pkg/httpapi"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/pkg/otelcol"
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
		featureflags.Module,
		sequence.Module,
		task.Client,
		task.Server,
		task.Scheduler,
		chain.Module,
		leaderboard.Module,
		leaderboard.TaskModule,
		burn.Module,
		burn.TaskModule,
		buyorder.Module,
		buyorder.TaskModule,
		health.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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
	return fxevent.NopLogger
})
