package burn

import (
	"context"
	"time"

	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/pkg/sequence"
	"smallbiznis-tokenomics/pkg/task"
	"smallbiznis-tokenomics/services/chain"
	"smallbiznis-tokenomics/services/leaderboard"
	"smallbiznis-tokenomics/services/token"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type BurnExecutor interface {
	ExecuteBurn(ctx context.Context, req chain.BurnRequest) *chain.Result
}

type RankingUpdater interface {
	UpdateLeaderboardRankings(ctx context.Context) ([]leaderboard.RankingUpdateResult, error)
}

// VerificationScheduler is implemented by executors that can verify a
// submitted transaction in the background.
type VerificationScheduler interface {
	ScheduleVerification(txHash string) bool
}

type BalanceChecker interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type ProcessResult struct {
	Success           bool            `json:"success"`
	BurnTransactionID string          `json:"burn_transaction_id,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	BurnedAmount      decimal.Decimal `json:"burned_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	BlockchainResult  *chain.Result   `json:"blockchain_result,omitempty"`
	Error             string          `json:"error,omitempty"`
}

type Integration struct {
	calc     *Calculator
	tracker  *Tracker
	executor BurnExecutor
	rankings RankingUpdater
	balances BalanceChecker
	advisor  Advisor
	refs     sequence.Generator
	jobs     task.Enqueuer
}

type IntegrationParams struct {
	fx.In

	Calculator *Calculator
	Tracker    *Tracker
	Executor   *chain.Executor
	Rankings   RankingUpdater     `optional:"true"`
	Balances   BalanceChecker     `optional:"true"`
	Advisor    Advisor            `optional:"true"`
	References sequence.Generator `optional:"true"`
	Jobs       task.Enqueuer      `optional:"true"`
}

func NewIntegration(p IntegrationParams) *Integration {
	return &Integration{
		calc:     p.Calculator,
		tracker:  p.Tracker,
		executor: p.Executor,
		rankings: p.Rankings,
		balances: p.Balances,
		advisor:  p.Advisor,
		refs:     p.References,
		jobs:     p.Jobs,
	}
}

func (s *Integration) ProcessSaleBurn(ctx context.Context, userID, courseID string, amount decimal.Decimal) (*ProcessResult, error) {
	return s.process(ctx, userID, amount, token.CourseSale, "Course sale", map[string]any{"courseId": courseID})
}

func (s *Integration) ProcessWithdrawalBurn(ctx context.Context, userID, withdrawalID string, amount decimal.Decimal) (*ProcessResult, error) {
	return s.process(ctx, userID, amount, token.EarningsWithdrawal, "Earnings withdrawal", map[string]any{"withdrawalId": withdrawalID})
}

func (s *Integration) ProcessRedemptionBurn(ctx context.Context, userID, redemptionID string, amount decimal.Decimal) (*ProcessResult, error) {
	return s.process(ctx, userID, amount, token.TokenRedemption, "Token redemption", map[string]any{"redemptionId": redemptionID})
}

// process runs calculate, check, log, execute, confirm and rank in that order.
// Validation and policy rejections are returned as errors. A blockchain failure
// is reported in the result with the record marked FAILED.
func (s *Integration) process(ctx context.Context, userID string, amount decimal.Decimal, typ token.TransactionType, reason string, metadata map[string]any) (*ProcessResult, error) {
	zapLog := logger.FromContext(ctx).With(
		zap.String("user_id", userID),
		zap.String("transaction_type", string(typ)),
	)

	if userID == "" {
		return nil, errutil.ValidationFailed("User ID is required", nil)
	}

	calc, err := s.calc.CalculateBurn(amount, typ)
	if err != nil {
		metrics.BurnsProcessed.WithLabelValues(string(typ), "invalid").Inc()
		return nil, err
	}

	result := &ProcessResult{
		BurnedAmount: calc.BurnedAmount,
		NetAmount:    calc.NetAmount,
	}

	if s.balances != nil {
		balance, err := s.balances.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(amount) {
			metrics.BurnsProcessed.WithLabelValues(string(typ), "insufficient_balance").Inc()
			err := insufficientBalance(amount, balance)
			result.Error = err.Error()
			return result, err
		}
	}

	if s.advisor != nil {
		decision, err := s.advisor.Evaluate(ctx, ComplianceContext{
			UserID:          userID,
			Amount:          amount,
			BurnedAmount:    calc.BurnedAmount,
			TransactionType: typ,
			Metadata:        metadata,
		})
		if err != nil {
			return nil, err
		}
		if !decision.Approved {
			zapLog.Warn("burn rejected by compliance", zap.String("reasoning", decision.Reasoning))
			metrics.BurnsProcessed.WithLabelValues(string(typ), "rejected").Inc()
			err := complianceRejected(decision.Reasoning)
			result.Error = err.Error()
			return result, err
		}
	}

	params := CreateParams{
		UserID:          userID,
		Amount:          calc.OriginalAmount,
		BurnRate:        calc.BurnRate,
		BurnedAmount:    calc.BurnedAmount,
		TransactionType: typ,
		Reason:          reason,
		Metadata:        metadata,
	}
	if s.refs != nil {
		ref, err := s.refs.NextBurnReference(ctx)
		if err != nil {
			zapLog.Warn("failed to issue burn reference", zap.Error(err))
		} else {
			params.Reference = ref
		}
	}

	bt, err := s.tracker.LogBurn(ctx, params)
	if err != nil {
		return nil, err
	}
	result.BurnTransactionID = bt.ID
	result.Reference = bt.Reference

	chainResult := s.executor.ExecuteBurn(ctx, chain.BurnRequest{
		UserID:          userID,
		Amount:          calc.BurnedAmount,
		TransactionType: typ,
		Reason:          reason,
		Metadata:        metadata,
	})
	result.BlockchainResult = chainResult

	if !chainResult.Success {
		zapLog.Error("blockchain burn failed", zap.String("id", bt.ID), zap.String("error", chainResult.Error))
		metrics.BurnsProcessed.WithLabelValues(string(typ), "failed").Inc()
		if _, err := s.tracker.ConfirmBurnTransaction(ctx, bt.ID, chainResult.TransactionHash, token.StatusFailed); err != nil {
			zapLog.Error("failed to mark burn as failed", zap.String("id", bt.ID), zap.Error(err))
		}
		result.Error = chainResult.Error
		if result.Error == "" {
			result.Error = ErrBlockchainFailed.Error()
		}
		return result, nil
	}

	status := chainResult.Status
	if !status.Valid() || status == token.StatusPending {
		status = token.StatusProcessing
	}
	if _, err := s.tracker.ConfirmBurnTransaction(ctx, bt.ID, chainResult.TransactionHash, status); err != nil {
		return nil, err
	}
	result.Success = true
	metrics.BurnsProcessed.WithLabelValues(string(typ), "success").Inc()

	if status == token.StatusProcessing {
		if v, ok := s.executor.(VerificationScheduler); ok {
			v.ScheduleVerification(chainResult.TransactionHash)
		}
	}

	zapLog.Info("burn processed",
		zap.String("id", bt.ID),
		zap.String("tx_hash", chainResult.TransactionHash),
		zap.String("burned_amount", calc.BurnedAmount.String()),
		zap.String("status", string(status)),
	)
	return result, nil
}

// refreshRankings recomputes the leaderboard after a confirmed burn. A failed
// update is handed to the worker and never fails the burn.
func (s *Integration) refreshRankings(ctx context.Context, bt *BurnTransaction) {
	if s.rankings == nil {
		return
	}
	if _, err := s.rankings.UpdateLeaderboardRankings(ctx); err != nil {
		logger.FromContext(ctx).Error("leaderboard update failed after burn", zap.String("id", bt.ID), zap.Error(err))
		s.scheduleRebuild(ctx)
	}
}

// scheduleRebuild hands a failed in-line leaderboard update to the worker.
func (s *Integration) scheduleRebuild(ctx context.Context) {
	if s.jobs == nil {
		return
	}

	t, err := leaderboard.NewRebuildTask(false)
	if err != nil {
		logger.FromContext(ctx).Error("failed to build leaderboard rebuild task", zap.Error(err))
		return
	}
	if _, err := s.jobs.Enqueue(ctx, t, asynq.Queue("low"), asynq.Unique(time.Minute)); err != nil {
		logger.FromContext(ctx).Warn("failed to enqueue leaderboard rebuild", zap.Error(err))
	}
}
