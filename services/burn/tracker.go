package burn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/db/pagination"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/services/token"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const dayLayout = "2006-01-02"

// Verifier re-checks a submitted transaction on chain.
type Verifier interface {
	VerifyTransaction(ctx context.Context, txHash string) (token.BlockchainStatus, error)
}

type TypeStatistics struct {
	TotalBurned      decimal.Decimal `json:"total_burned"`
	TransactionCount int64           `json:"transaction_count"`
	AverageBurn      decimal.Decimal `json:"average_burn"`
}

type HistoricalData struct {
	Transactions   []*BurnTransaction         `json:"transactions"`
	TotalBurned    decimal.Decimal            `json:"total_burned"`
	DailyBreakdown map[string]decimal.Decimal `json:"daily_breakdown"`
}

type SupplyTrend struct {
	Dates             []string          `json:"dates"`
	TotalSupply       []decimal.Decimal `json:"total_supply"`
	CirculatingSupply []decimal.Decimal `json:"circulating_supply"`
	BurnedSupply      []decimal.Decimal `json:"burned_supply"`
}

type ReconcileReport struct {
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// ConfirmHook runs after a burn has been committed as CONFIRMED.
type ConfirmHook func(ctx context.Context, bt *BurnTransaction)

// Tracker records burns, keeps the token supply in step with confirmed burns
// and answers historical queries.
type Tracker struct {
	repo          Repository
	initialSupply decimal.Decimal
	verifier      Verifier
	hooks         []ConfirmHook
	now           func() time.Time
}

func NewTracker(repo Repository, initialSupply decimal.Decimal) *Tracker {
	return &Tracker{repo: repo, initialSupply: initialSupply, now: time.Now}
}

func NewTrackerFromConfig(cfg *config.Config, repo Repository) (*Tracker, error) {
	supply, err := decimal.NewFromString(cfg.Tokens.InitialTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("parse initial total supply: %w", err)
	}
	return NewTracker(repo, supply), nil
}

// SetVerifier enables re-verification of PROCESSING records in ReconcilePending.
func (t *Tracker) SetVerifier(v Verifier) {
	t.verifier = v
}

// OnConfirmed registers h for every confirmation, whichever path settles the
// burn. Hooks are registered during construction.
func (t *Tracker) OnConfirmed(h ConfirmHook) {
	t.hooks = append(t.hooks, h)
}

func (t *Tracker) LogBurnTransaction(ctx context.Context, userID string, amount, rate, burned decimal.Decimal, typ token.TransactionType, reason string, metadata map[string]any) (*BurnTransaction, error) {
	bt, err := t.repo.CreateBurnTransaction(ctx, CreateParams{
		UserID:          userID,
		Amount:          amount,
		BurnRate:        rate,
		BurnedAmount:    burned,
		TransactionType: typ,
		Reason:          reason,
		Metadata:        metadata,
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to log burn transaction", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	logger.FromContext(ctx).Info("burn transaction logged",
		zap.String("id", bt.ID),
		zap.String("user_id", userID),
		zap.String("transaction_type", string(typ)),
		zap.String("burned_amount", burned.String()),
	)
	return bt, nil
}

// LogBurn is LogBurnTransaction with a caller supplied reference code.
func (t *Tracker) LogBurn(ctx context.Context, p CreateParams) (*BurnTransaction, error) {
	return t.repo.CreateBurnTransaction(ctx, p)
}

// ConfirmBurnTransaction records the chain outcome of a burn. A CONFIRMED
// outcome applies the burn to the token supply in the same DB transaction, so
// each burn is counted exactly once.
func (t *Tracker) ConfirmBurnTransaction(ctx context.Context, id, txHash string, status token.BlockchainStatus) (*BurnTransaction, error) {
	var confirmed *BurnTransaction
	err := t.repo.Transaction(ctx, func(repo Repository) error {
		bt, err := repo.UpdateBurnTransactionHash(ctx, id, txHash, status)
		if err != nil {
			return err
		}
		if status == token.StatusConfirmed {
			if _, err := repo.ApplyBurn(ctx, t.initialSupply, bt.BurnedAmount); err != nil {
				return err
			}
		}
		confirmed = bt
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to confirm burn transaction",
			zap.String("id", id), zap.String("status", string(status)), zap.Error(err))
		return nil, err
	}

	logger.FromContext(ctx).Info("burn transaction updated",
		zap.String("id", id), zap.String("tx_hash", txHash), zap.String("status", string(status)))

	if status == token.StatusConfirmed {
		metrics.TokensBurned.WithLabelValues(string(confirmed.TransactionType)).Add(confirmed.BurnedAmount.InexactFloat64())
		for _, h := range t.hooks {
			h(ctx, confirmed)
		}
	}
	return confirmed, nil
}

// UpdateSupplyAfterBurn adds burnedAmount to the burned supply. totalSupply
// seeds the singleton when none exists yet. circulatingSupply is not trusted:
// circulating is always recomputed as total - burned.
func (t *Tracker) UpdateSupplyAfterBurn(ctx context.Context, totalSupply, circulatingSupply, burnedAmount decimal.Decimal) (*TokenSupply, error) {
	if !totalSupply.IsPositive() {
		totalSupply = t.initialSupply
	}
	s, err := t.repo.ApplyBurn(ctx, totalSupply, burnedAmount)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("token supply updated",
		zap.String("burned_amount", burnedAmount.String()),
		zap.String("burned_supply", s.BurnedSupply.String()),
		zap.String("circulating_supply", s.CirculatingSupply.String()),
	)
	return s, nil
}

func (t *Tracker) GetTokenSupply(ctx context.Context) (*TokenSupply, error) {
	return t.repo.GetTokenSupply(ctx)
}

// SetTokenSupply overwrites the singleton. It is meant for genesis and manual
// corrections, never for burns.
func (t *Tracker) SetTokenSupply(ctx context.Context, total, circulating, burned decimal.Decimal) (*TokenSupply, error) {
	return t.repo.UpdateTokenSupply(ctx, total, circulating, burned)
}

func (t *Tracker) GetTotalBurnedSupply(ctx context.Context) (decimal.Decimal, error) {
	s, err := t.repo.GetTokenSupply(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if s == nil {
		return decimal.Zero, nil
	}
	return s.BurnedSupply, nil
}

// GetCirculatingSupply returns the circulating supply, or the configured
// initial supply before any burn was recorded.
func (t *Tracker) GetCirculatingSupply(ctx context.Context) (decimal.Decimal, error) {
	s, err := t.repo.GetTokenSupply(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if s == nil {
		return t.initialSupply, nil
	}
	return s.CirculatingSupply, nil
}

// GetUserCumulativeBurn sums the user's confirmed burns.
func (t *Tracker) GetUserCumulativeBurn(ctx context.Context, userID string) (decimal.Decimal, error) {
	page, err := t.repo.GetBurnHistory(ctx, HistoryFilter{
		UserID:     userID,
		Status:     token.StatusConfirmed,
		Pagination: pagination.Pagination{Page: 1, Limit: 1},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return page.TotalBurned, nil
}

// GetBurnStatisticsByType aggregates confirmed burns of one type.
func (t *Tracker) GetBurnStatisticsByType(ctx context.Context, typ token.TransactionType) (*TypeStatistics, error) {
	if !typ.Valid() {
		return nil, ErrUnknownTransactionType
	}
	page, err := t.repo.GetBurnHistory(ctx, HistoryFilter{
		TransactionType: typ,
		Status:          token.StatusConfirmed,
		Pagination:      pagination.Pagination{Page: 1, Limit: 1},
	})
	if err != nil {
		return nil, err
	}

	stats := &TypeStatistics{
		TotalBurned:      page.TotalBurned,
		TransactionCount: page.Total,
		AverageBurn:      decimal.Zero,
	}
	if page.Total > 0 {
		stats.AverageBurn = page.TotalBurned.Div(decimal.NewFromInt(page.Total))
	}
	return stats, nil
}

func (t *Tracker) GetBurnHistory(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	return t.repo.GetBurnHistory(ctx, f)
}

func (t *Tracker) GetBurnStatistics(ctx context.Context) (*Statistics, error) {
	return t.repo.GetBurnStatistics(ctx)
}

// GetBurnTransaction returns nil when id is unknown.
func (t *Tracker) GetBurnTransaction(ctx context.Context, id string) (*BurnTransaction, error) {
	bt, err := t.repo.GetBurnTransaction(ctx, id)
	if errors.Is(err, ErrBurnTransactionNotFound) {
		return nil, nil
	}
	return bt, err
}

// GetHistoricalBurnData returns confirmed burns created in [start, end] with
// per-day totals keyed by YYYY-MM-DD (UTC).
func (t *Tracker) GetHistoricalBurnData(ctx context.Context, start, end time.Time) (*HistoricalData, error) {
	page, err := t.repo.GetBurnHistory(ctx, HistoryFilter{
		Status:     token.StatusConfirmed,
		StartDate:  &start,
		EndDate:    &end,
		Pagination: pagination.Pagination{Page: 1, Limit: pagination.MaxLimit},
	})
	if err != nil {
		return nil, err
	}

	txs := page.Transactions
	for p := 2; int64(len(txs)) < page.Total; p++ {
		next, err := t.repo.GetBurnHistory(ctx, HistoryFilter{
			Status:     token.StatusConfirmed,
			StartDate:  &start,
			EndDate:    &end,
			Pagination: pagination.Pagination{Page: p, Limit: pagination.MaxLimit},
		})
		if err != nil {
			return nil, err
		}
		if len(next.Transactions) == 0 {
			break
		}
		txs = append(txs, next.Transactions...)
	}

	daily := map[string]decimal.Decimal{}
	for _, bt := range txs {
		day := bt.CreatedAt.UTC().Format(dayLayout)
		daily[day] = daily[day].Add(bt.BurnedAmount)
	}

	return &HistoricalData{
		Transactions:   txs,
		TotalBurned:    page.TotalBurned,
		DailyBreakdown: daily,
	}, nil
}

func (t *Tracker) GetPendingBurnTransactions(ctx context.Context) ([]*BurnTransaction, error) {
	return t.repo.ListByStatus(ctx, token.StatusPending, time.Time{})
}

func (t *Tracker) GetProcessingBurnTransactions(ctx context.Context) ([]*BurnTransaction, error) {
	return t.repo.ListByStatus(ctx, token.StatusProcessing, time.Time{})
}

func (t *Tracker) GetFailedBurnTransactions(ctx context.Context) ([]*BurnTransaction, error) {
	return t.repo.ListByStatus(ctx, token.StatusFailed, time.Time{})
}

// CalculateOwnershipPercentage returns userTokens/totalSupply*100, or 0 when
// totalSupply is not positive.
func (t *Tracker) CalculateOwnershipPercentage(userTokens, totalSupply decimal.Decimal) float64 {
	if !totalSupply.IsPositive() {
		return 0
	}
	return userTokens.Div(totalSupply).Mul(hundred).InexactFloat64()
}

// GetSupplyTrendData approximates supply over the trailing days (oldest first).
// Total supply is assumed constant over the window; burns inside the window are
// replayed forward from the burned supply at its start.
func (t *Tracker) GetSupplyTrendData(ctx context.Context, days int) (*SupplyTrend, error) {
	if days <= 0 {
		return nil, ErrInvalidAmount
	}

	end := t.now().UTC()
	start := end.Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	var (
		supply  *TokenSupply
		history *HistoricalData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supply, err = t.repo.GetTokenSupply(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = t.GetHistoricalBurnData(gctx, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total, burnedNow := t.initialSupply, decimal.Zero
	if supply != nil {
		total, burnedNow = supply.TotalSupply, supply.BurnedSupply
	}

	trend := &SupplyTrend{
		Dates:             make([]string, 0, days),
		TotalSupply:       make([]decimal.Decimal, 0, days),
		CirculatingSupply: make([]decimal.Decimal, 0, days),
		BurnedSupply:      make([]decimal.Decimal, 0, days),
	}

	cumulative := burnedNow.Sub(history.TotalBurned)
	if cumulative.IsNegative() {
		cumulative = decimal.Zero
	}
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		cumulative = cumulative.Add(history.DailyBreakdown[day])

		trend.Dates = append(trend.Dates, day)
		trend.TotalSupply = append(trend.TotalSupply, total)
		trend.BurnedSupply = append(trend.BurnedSupply, cumulative)
		trend.CirculatingSupply = append(trend.CirculatingSupply, total.Sub(cumulative))
	}
	return trend, nil
}

// HandleVerified applies a chain verification outcome to the matching burn.
// Only CONFIRMED and FAILED outcomes move a record.
func (t *Tracker) HandleVerified(ctx context.Context, txHash string, status token.BlockchainStatus) error {
	if !status.Terminal() {
		return nil
	}
	bt, err := t.repo.FindByTxHash(ctx, txHash)
	if err != nil {
		if errors.Is(err, ErrBurnTransactionNotFound) {
			return nil
		}
		return err
	}
	if bt.BlockchainStatus.Terminal() {
		return nil
	}
	_, err = t.ConfirmBurnTransaction(ctx, bt.ID, txHash, status)
	return err
}

// ReconcilePending re-verifies PROCESSING burns and fails PENDING burns older
// than staleAfter that never reached the chain.
func (t *Tracker) ReconcilePending(ctx context.Context, staleAfter time.Duration) (*ReconcileReport, error) {
	zapLog := logger.FromContext(ctx)
	report := &ReconcileReport{}
	cutoff := t.now().Add(-staleAfter)

	if t.verifier != nil {
		processing, err := t.repo.ListByStatus(ctx, token.StatusProcessing, time.Time{})
		if err != nil {
			return nil, err
		}
		for _, bt := range processing {
			if bt.BlockchainTxHash == nil {
				continue
			}
			status, err := t.verifier.VerifyTransaction(ctx, *bt.BlockchainTxHash)
			if err != nil {
				zapLog.Warn("reconcile verification failed", zap.String("id", bt.ID), zap.Error(err))
				report.Pending++
				continue
			}
			if !status.Terminal() {
				report.Pending++
				continue
			}
			if _, err := t.ConfirmBurnTransaction(ctx, bt.ID, *bt.BlockchainTxHash, status); err != nil {
				return nil, err
			}
			if status == token.StatusConfirmed {
				report.Confirmed++
			} else {
				report.Failed++
			}
		}
	}

	stale, err := t.repo.ListByStatus(ctx, token.StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	for _, bt := range stale {
		if _, err := t.ConfirmBurnTransaction(ctx, bt.ID, "", token.StatusFailed); err != nil {
			return nil, err
		}
		report.Failed++
	}

	zapLog.Info("burn reconciliation finished",
		zap.Int("confirmed", report.Confirmed),
		zap.Int("failed", report.Failed),
		zap.Int("pending", report.Pending),
	)
	return report, nil
}
