package burn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/pkg/taskname"
	"smallbiznis-tokenomics/services/token"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReconcilePayload struct {
	// StaleAfter overrides the configured age for PENDING records.
	StaleAfter time.Duration `json:"stale_after,omitempty"`
}

// ProcessPayload asks the worker to burn on behalf of a payment flow.
// ReferenceID is the course, withdrawal or redemption id.
type ProcessPayload struct {
	TransactionType token.TransactionType `json:"transaction_type"`
	UserID          string                `json:"user_id"`
	ReferenceID     string                `json:"reference_id"`
	Amount          string                `json:"amount"`
}

type Task struct {
	tracker     *Tracker
	integration *Integration
	staleAfter  time.Duration
}

func NewTask(cfg *config.Config, tracker *Tracker, integration *Integration) *Task {
	return &Task{tracker: tracker, integration: integration, staleAfter: cfg.Tokens.Reconcile.StaleAfter}
}

// NewProcessTask builds the task payment flows enqueue to burn tokens.
func NewProcessTask(p ProcessPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.BurnProcess, raw), nil
}

func (t *Task) HandleProcess(ctx context.Context, at *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(at.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", at.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("transaction_type", string(payload.TransactionType)),
		zap.String("reference_id", payload.ReferenceID),
	)

	var result *ProcessResult
	switch payload.TransactionType {
	case token.CourseSale:
		result, err = t.integration.ProcessSaleBurn(ctx, payload.UserID, payload.ReferenceID, amount)
	case token.EarningsWithdrawal:
		result, err = t.integration.ProcessWithdrawalBurn(ctx, payload.UserID, payload.ReferenceID, amount)
	case token.TokenRedemption:
		result, err = t.integration.ProcessRedemptionBurn(ctx, payload.UserID, payload.ReferenceID, amount)
	default:
		return fmt.Errorf("unknown transaction type %q: %w", payload.TransactionType, asynq.SkipRetry)
	}

	if err != nil {
		switch errutil.StatusOf(err) {
		case errutil.StatusValidationFailed, errutil.StatusBadRequest,
			errutil.StatusUnprocessableEntity, errutil.StatusForbidden:
			zapLog.Warn("burn rejected", zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	// a FAILED record leaves supply untouched and a retry starts a fresh burn
	if !result.Success {
		return fmt.Errorf("burn %s failed on chain: %s", result.BurnTransactionID, result.Error)
	}

	zapLog.Info("burn task processed",
		zap.String("id", result.BurnTransactionID),
		zap.String("burned_amount", result.BurnedAmount.String()),
	)
	return nil
}

func (t *Task) HandleReconcilePending(ctx context.Context, at *asynq.Task) error {
	var payload ReconcilePayload
	if len(at.Payload()) > 0 {
		if err := json.Unmarshal(at.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	staleAfter := t.staleAfter
	if payload.StaleAfter > 0 {
		staleAfter = payload.StaleAfter
	}

	report, err := t.tracker.ReconcilePending(ctx, staleAfter)
	if err != nil {
		zap.L().Error("burn reconciliation failed", zap.String("task_type", at.Type()), zap.Error(err))
		return err
	}

	if report.Pending > 0 {
		zap.L().Warn("burns still awaiting chain finality", zap.Int("pending", report.Pending))
	}
	return nil
}

func newReconcileHandler(t *Task) task.Handler {
	return task.Handler{Type: taskname.BurnReconcilePending, Handler: asynq.HandlerFunc(t.HandleReconcilePending)}
}

func newProcessHandler(t *Task) task.Handler {
	return task.Handler{Type: taskname.BurnProcess, Handler: asynq.HandlerFunc(t.HandleProcess)}
}

func newReconcilePeriodic(cfg *config.Config) task.Periodic {
	return task.Periodic{
		Cronspec: cfg.Tokens.Reconcile.Schedule,
		Type:     taskname.BurnReconcilePending,
		Opts:     []asynq.Option{asynq.Queue("critical"), asynq.MaxRetry(3)},
	}
}
