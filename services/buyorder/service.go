package buyorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/db/option"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/pkg/repository"
	"smallbiznis-tokenomics/pkg/sequence"
	"smallbiznis-tokenomics/services/chain"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tokenPrecision is the number of decimal places kept for acquired tokens.
const tokenPrecision = 18

type Purchaser interface {
	ExecutePurchase(ctx context.Context, req chain.PurchaseRequest) *chain.Result
}

type Settings struct {
	RevenuePercentage decimal.Decimal
	MinBuyAmount      decimal.Decimal
	MaxBuyAmount      decimal.Decimal
}

func (s Settings) Validate() error {
	if !s.RevenuePercentage.IsPositive() || s.RevenuePercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: revenue percentage must be in (0, 1]", ErrInvalidBuyOrderRule)
	}
	if s.MinBuyAmount.IsNegative() {
		return fmt.Errorf("%w: minimum buy amount must not be negative", ErrInvalidBuyOrderRule)
	}
	if !s.MaxBuyAmount.IsPositive() || s.MaxBuyAmount.LessThan(s.MinBuyAmount) {
		return fmt.Errorf("%w: maximum buy amount must be positive and not below the minimum", ErrInvalidBuyOrderRule)
	}
	return nil
}

func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	bo := cfg.Tokens.BuyOrder
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s: %w", name, err)
		}
		return d, nil
	}

	var (
		s   Settings
		err error
	)
	if s.RevenuePercentage, err = parse("revenue percentage", bo.RevenuePercentage); err != nil {
		return s, err
	}
	if s.MinBuyAmount, err = parse("min buy amount", bo.MinBuyAmount); err != nil {
		return s, err
	}
	if s.MaxBuyAmount, err = parse("max buy amount", bo.MaxBuyAmount); err != nil {
		return s, err
	}
	return s, s.Validate()
}

type Result struct {
	Success         bool            `json:"success"`
	Reference       string          `json:"reference,omitempty"`
	TokensAcquired  decimal.Decimal `json:"tokens_acquired"`
	RandSpent       decimal.Decimal `json:"rand_spent"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	Error           string          `json:"error,omitempty"`
}

type Metrics struct {
	TotalRevenueTracked  decimal.Decimal `json:"total_revenue_tracked"`
	TotalTokensAcquired  decimal.Decimal `json:"total_tokens_acquired"`
	TotalSpent           decimal.Decimal `json:"total_spent"`
	AveragePricePerToken decimal.Decimal `json:"average_price_per_token"`
	ExecutionCount       int64           `json:"execution_count"`
	SuccessRate          float64         `json:"success_rate"`
	LastExecutionAt      *time.Time      `json:"last_execution_at,omitempty"`
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	revenues  repository.Repository[RevenueTrackingRecord]
	orders    repository.Repository[SystemBuyOrderHistoryRecord]
	purchaser Purchaser
	refs      sequence.Generator
	settings  Settings
	now       func() time.Time

	// serializes spend decisions within this process
	mu sync.Mutex
}

type Params struct {
	fx.In

	Config     *config.Config
	DB         *gorm.DB
	Node       *snowflake.Node
	Executor   *chain.Executor
	References sequence.Generator `optional:"true"`
}

func NewService(p Params) (*Service, error) {
	settings, err := SettingsFromConfig(p.Config)
	if err != nil {
		return nil, err
	}
	svc := newService(p.DB, p.Node, p.Executor, settings)
	svc.refs = p.References
	return svc, nil
}

func newService(db *gorm.DB, node *snowflake.Node, purchaser Purchaser, settings Settings) *Service {
	return &Service{
		db:        db,
		node:      node,
		revenues:  repository.ProvideStore[RevenueTrackingRecord](db),
		orders:    repository.ProvideStore[SystemBuyOrderHistoryRecord](db),
		purchaser: purchaser,
		settings:  settings,
		now:       time.Now,
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) TrackRevenue(ctx context.Context, source string, amount decimal.Decimal, currency string) (*RevenueTrackingRecord, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	rec := &RevenueTrackingRecord{
		ID:        s.node.Generate().String(),
		Source:    source,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: s.timestamp(),
	}
	if err := s.revenues.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("track revenue: %w", err)
	}

	logger.FromContext(ctx).Info("revenue tracked",
		zap.String("source", source),
		zap.String("amount", amount.String()),
		zap.String("currency", currency),
	)
	return rec, nil
}

type sumRow struct {
	Total decimal.NullDecimal
}

func (s *Service) sum(ctx context.Context, model any, column string, where ...any) (decimal.Decimal, error) {
	var row sumRow
	q := s.db.WithContext(ctx).Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	if err := q.Select(fmt.Sprintf("SUM(%s) AS total", column)).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

func (s *Service) totalRevenue(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.sum(ctx, &RevenueTrackingRecord{}, "amount")
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

func (s *Service) totalSpent(ctx context.Context) (decimal.Decimal, error) {
	spent, err := s.sum(ctx, &SystemBuyOrderHistoryRecord{}, "rand_spent", "status = ?", StatusCompleted)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum spent revenue: %w", err)
	}
	return spent, nil
}

// CalculateAvailableRevenue returns the share of unspent revenue that may fund
// the next buy order.
func (s *Service) CalculateAvailableRevenue(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.totalRevenue(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	spent, err := s.totalSpent(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	unspent := total.Sub(spent)
	if !unspent.IsPositive() {
		return decimal.Zero, nil
	}
	return unspent.Mul(s.settings.RevenuePercentage), nil
}

// ExecuteBuyOrder spends randAmount, or the available revenue when nil, on
// tokens at pricePerToken. Every executed order is recorded in the history
// whether or not the chain accepted it.
func (s *Service) ExecuteBuyOrder(ctx context.Context, pricePerToken decimal.Decimal, randAmount *decimal.Decimal) (*Result, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("price_per_token", pricePerToken.String()))

	if !pricePerToken.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if randAmount != nil && randAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var spend decimal.Decimal
	if randAmount != nil {
		spend = *randAmount
	} else {
		available, err := s.CalculateAvailableRevenue(ctx)
		if err != nil {
			return nil, err
		}
		spend = available
	}

	if spend.LessThan(s.settings.MinBuyAmount) || spend.IsZero() {
		err := belowMinimum(spend, s.settings.MinBuyAmount)
		zapLog.Info("buy order skipped", zap.String("spend", spend.String()))
		metrics.BuyOrders.WithLabelValues("SKIPPED").Inc()
		return &Result{Success: false, RandSpent: decimal.Zero, TokensAcquired: decimal.Zero, Error: err.Error()}, err
	}
	if spend.GreaterThan(s.settings.MaxBuyAmount) {
		zapLog.Info("buy order clamped",
			zap.String("requested", spend.String()),
			zap.String("max", s.settings.MaxBuyAmount.String()),
		)
		spend = s.settings.MaxBuyAmount
	}

	tokens := spend.DivRound(pricePerToken, tokenPrecision)

	id := s.node.Generate().String()
	reference := id
	if s.refs != nil {
		ref, err := s.refs.NextBuyOrderReference(ctx)
		if err != nil {
			zapLog.Warn("failed to issue buy order reference", zap.Error(err))
		} else {
			reference = ref
		}
	}

	chainResult := s.purchaser.ExecutePurchase(ctx, chain.PurchaseRequest{
		Reference:     reference,
		Spend:         spend,
		PricePerToken: pricePerToken,
		Tokens:        tokens,
	})

	rec := &SystemBuyOrderHistoryRecord{
		ID:             id,
		Reference:      reference,
		RandSpent:      spend,
		PricePerToken:  pricePerToken,
		TokensAcquired: tokens,
		Status:         StatusCompleted,
		ExecutedAt:     s.timestamp(),
	}
	if chainResult.TransactionHash != "" {
		hash := chainResult.TransactionHash
		rec.TransactionHash = &hash
	}
	if !chainResult.Success {
		rec.Status = StatusFailed
		rec.TokensAcquired = decimal.Zero
		rec.Error = chainResult.Error
	}

	result := &Result{
		Success:         chainResult.Success,
		Reference:       reference,
		TokensAcquired:  rec.TokensAcquired,
		RandSpent:       spend,
		TransactionHash: chainResult.TransactionHash,
		Error:           chainResult.Error,
	}

	if err := s.orders.Create(ctx, rec); err != nil {
		zapLog.Error("failed to record buy order", zap.String("reference", reference), zap.Error(err))
		return result, fmt.Errorf("record buy order: %w", err)
	}
	metrics.BuyOrders.WithLabelValues(string(rec.Status)).Inc()

	if !chainResult.Success {
		zapLog.Error("buy order failed", zap.String("reference", reference), zap.String("error", chainResult.Error))
		return result, nil
	}

	zapLog.Info("buy order completed",
		zap.String("reference", reference),
		zap.String("spend", spend.String()),
		zap.String("tokens", tokens.String()),
	)
	return result, nil
}

type orderStatRow struct {
	Status OrderStatus
	Count  int64
	Spent  decimal.NullDecimal
	Tokens decimal.NullDecimal
}

func (s *Service) GetMetrics(ctx context.Context) (*Metrics, error) {
	total, err := s.totalRevenue(ctx)
	if err != nil {
		return nil, err
	}

	var rows []orderStatRow
	err = s.db.WithContext(ctx).Model(&SystemBuyOrderHistoryRecord{}).
		Select("status, COUNT(*) AS count, SUM(rand_spent) AS spent, SUM(tokens_acquired) AS tokens").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("buy order statistics: %w", err)
	}

	m := &Metrics{
		TotalRevenueTracked:  total,
		TotalTokensAcquired:  decimal.Zero,
		TotalSpent:           decimal.Zero,
		AveragePricePerToken: decimal.Zero,
	}

	var completed int64
	for _, row := range rows {
		m.ExecutionCount += row.Count
		if row.Status != StatusCompleted {
			continue
		}
		completed += row.Count
		if row.Spent.Valid {
			m.TotalSpent = m.TotalSpent.Add(row.Spent.Decimal)
		}
		if row.Tokens.Valid {
			m.TotalTokensAcquired = m.TotalTokensAcquired.Add(row.Tokens.Decimal)
		}
	}

	if m.TotalTokensAcquired.IsPositive() {
		m.AveragePricePerToken = m.TotalSpent.Div(m.TotalTokensAcquired)
	}
	if m.ExecutionCount > 0 {
		m.SuccessRate = float64(completed) / float64(m.ExecutionCount)
	}

	last, err := s.orders.FindOne(ctx, nil, option.WithSortBy(option.QuerySortBy{SortBy: "executed_at", OrderBy: "desc"}))
	if err != nil {
		return nil, fmt.Errorf("last buy order: %w", err)
	}
	if last != nil {
		at := last.ExecutedAt
		m.LastExecutionAt = &at
	}
	return m, nil
}
