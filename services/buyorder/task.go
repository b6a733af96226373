package buyorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FlagGate is satisfied by featureflags.FeatureFlag.
type FlagGate interface {
	Enabled(ctx context.Context, feature string) (bool, error)
}

type ExecutePayload struct {
	// PricePerToken overrides the configured price.
	PricePerToken string `json:"price_per_token,omitempty"`
	// RandAmount spends an explicit amount instead of the available revenue.
	RandAmount string `json:"rand_amount,omitempty"`
}

type Task struct {
	svc   *Service
	flags FlagGate
	flag  string
	price decimal.Decimal
}

type TaskParams struct {
	fx.In

	Config  *config.Config
	Service *Service
	Flags   FlagGate `optional:"true"`
}

func NewTask(p TaskParams) (*Task, error) {
	price, err := decimal.NewFromString(p.Config.Tokens.BuyOrder.PricePerToken)
	if err != nil {
		return nil, fmt.Errorf("parse price per token: %w", err)
	}
	return &Task{
		svc:   p.Service,
		flags: p.Flags,
		flag:  p.Config.Tokens.BuyOrder.FeatureFlag,
		price: price,
	}, nil
}

func (t *Task) HandleExecute(ctx context.Context, at *asynq.Task) error {
	var payload ExecutePayload
	if len(at.Payload()) > 0 {
		if err := json.Unmarshal(at.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	zapLog := zap.L().With(zap.String("task_type", at.Type()))

	if t.flags != nil {
		enabled, err := t.flags.Enabled(ctx, t.flag)
		if err != nil {
			return fmt.Errorf("feature flag %s: %w", t.flag, err)
		}
		if !enabled {
			zapLog.Info("system buy order disabled", zap.String("flag", t.flag))
			return nil
		}
	}

	price := t.price
	if payload.PricePerToken != "" {
		p, err := decimal.NewFromString(payload.PricePerToken)
		if err != nil {
			return fmt.Errorf("invalid price: %w: %w", err, asynq.SkipRetry)
		}
		price = p
	}

	var amount *decimal.Decimal
	if payload.RandAmount != "" {
		a, err := decimal.NewFromString(payload.RandAmount)
		if err != nil {
			return fmt.Errorf("invalid amount: %w: %w", err, asynq.SkipRetry)
		}
		amount = &a
	}

	result, err := t.svc.ExecuteBuyOrder(ctx, price, amount)
	switch {
	case errors.Is(err, ErrBelowMinimumBuy):
		zapLog.Info("not enough revenue for a buy order", zap.String("error", err.Error()))
		return nil
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidAmount):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}

	// failed orders are recorded and picked up again by the next schedule
	if !result.Success {
		zapLog.Warn("system buy order failed", zap.String("reference", result.Reference), zap.String("error", result.Error))
		return nil
	}

	zapLog.Info("system buy order completed",
		zap.String("reference", result.Reference),
		zap.String("tokens_acquired", result.TokensAcquired.String()),
	)
	return nil
}

func newExecuteHandler(t *Task) task.Handler {
	return task.Handler{Type: taskname.BuyOrderExecute, Handler: asynq.HandlerFunc(t.HandleExecute)}
}

func newExecutePeriodic(cfg *config.Config) task.Periodic {
	return task.Periodic{
		Cronspec: cfg.Tokens.BuyOrder.Schedule,
		Type:     taskname.BuyOrderExecute,
		Opts:     []asynq.Option{asynq.Queue("default"), asynq.MaxRetry(0), asynq.Unique(time.Hour)},
	}
}
