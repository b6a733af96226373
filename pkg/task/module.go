package task

import (
	"context"
	"fmt"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func registerClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))

	if err := client.Ping(); err != nil {
		zap.L().Error("[Asynq] Failed to connect to Asynq", zap.Error(err))
		return nil, fmt.Errorf("connect asynq: %w", err)
	}

	zap.L().Info("[Asynq] Connected to Asynq")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

type muxParams struct {
	fx.In

	Handlers []Handler `group:"task_handlers"`
}

func registerServerMux(p muxParams) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(loggingMiddleware)
	for _, h := range p.Handlers {
		mux.Handle(h.Type, h.Handler)
		zap.L().Info("[Asynq] Registered handler", zap.String("task_type", h.Type))
	}
	return mux
}

func loggingMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		zapLog := zap.L().With(zap.String("task_type", t.Type()))
		zapLog.Debug("task started")
		if err := next.ProcessTask(ctx, t); err != nil {
			zapLog.Error("task failed", zap.Error(err))
			return err
		}
		zapLog.Debug("task finished")
		return nil
	})
}

func registerAsynqServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				"critical": 10,
				"default":  5,
				"low":      3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				return fmt.Errorf("start asynq server: %w", err)
			}
			zap.L().Info("[Asynq] Asynq server started", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}

var Scheduler = fx.Module("asynq:scheduler",
	fx.Invoke(registerScheduler),
)

type schedulerParams struct {
	fx.In

	Lc       fx.Lifecycle
	Config   *config.Config
	Periodic []Periodic `group:"task_periodic"`
}

func registerScheduler(p schedulerParams) error {
	scheduler := asynq.NewScheduler(redisOpt(p.Config), &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				zap.L().Error("[Scheduler] failed to enqueue periodic task", zap.Error(err))
			}
		},
	})

	for _, job := range p.Periodic {
		if job.Cronspec == "" {
			zap.L().Info("[Scheduler] periodic task disabled", zap.String("task_type", job.Type))
			continue
		}
		id, err := scheduler.Register(job.Cronspec, asynq.NewTask(job.Type, job.Payload), job.Opts...)
		if err != nil {
			return fmt.Errorf("register periodic task %s: %w", job.Type, err)
		}
		zap.L().Info("[Scheduler] registered periodic task",
			zap.String("task_type", job.Type),
			zap.String("cronspec", job.Cronspec),
			zap.String("entry_id", id),
		)
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})
	return nil
}
