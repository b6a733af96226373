package buyorder

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/services/chain"
	"smallbiznis-tokenomics/services/testutil"
	"smallbiznis-tokenomics/services/token"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

type purchaserMock struct {
	calls   []chain.PurchaseRequest
	failure string
}

func (m *purchaserMock) ExecutePurchase(ctx context.Context, req chain.PurchaseRequest) *chain.Result {
	m.calls = append(m.calls, req)
	if m.failure != "" {
		return &chain.Result{Success: false, Status: token.StatusFailed, Error: m.failure}
	}
	return &chain.Result{Success: true, Status: token.StatusConfirmed, TransactionHash: "0xabc"}
}

func testSettings() Settings {
	return Settings{
		RevenuePercentage: d("0.1"),
		MinBuyAmount:      d("100"),
		MaxBuyAmount:      d("10000"),
	}
}

func newTestService(t *testing.T) (*Service, *purchaserMock) {
	t.Helper()

	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	purchaser := &purchaserMock{}
	svc := newService(db, node, purchaser, testSettings())

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return svc, purchaser
}

func TestTrackRevenue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.TrackRevenue(ctx, "course_sales", d("0"), "ZAR")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.TrackRevenue(ctx, "course_sales", d("-5"), "ZAR")
	require.ErrorIs(t, err, ErrInvalidAmount)

	rec, err := svc.TrackRevenue(ctx, "course_sales", d("250.50"), "")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, DefaultCurrency, rec.Currency)
}

func TestCalculateAvailableRevenue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	available, err := svc.CalculateAvailableRevenue(ctx)
	require.NoError(t, err)
	require.True(t, available.IsZero())

	_, err = svc.TrackRevenue(ctx, "course_sales", d("1000"), "ZAR")
	require.NoError(t, err)
	_, err = svc.TrackRevenue(ctx, "subscriptions", d("500"), "ZAR")
	require.NoError(t, err)

	available, err = svc.CalculateAvailableRevenue(ctx)
	require.NoError(t, err)
	requireDecimal(t, "150", available)

	spend := d("100")
	_, err = svc.ExecuteBuyOrder(ctx, d("2"), &spend)
	require.NoError(t, err)

	available, err = svc.CalculateAvailableRevenue(ctx)
	require.NoError(t, err)
	requireDecimal(t, "140", available)
}

func TestExecuteBuyOrderFromAvailableRevenue(t *testing.T) {
	svc, purchaser := newTestService(t)
	ctx := context.Background()

	_, err := svc.TrackRevenue(ctx, "course_sales", d("5000"), "ZAR")
	require.NoError(t, err)

	res, err := svc.ExecuteBuyOrder(ctx, d("2.5"), nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	requireDecimal(t, "500", res.RandSpent)
	requireDecimal(t, "200", res.TokensAcquired)
	require.Equal(t, "0xabc", res.TransactionHash)
	require.Equal(t, res.Reference, purchaser.calls[0].Reference)

	require.Len(t, purchaser.calls, 1)
	requireDecimal(t, "500", purchaser.calls[0].Spend)
	requireDecimal(t, "200", purchaser.calls[0].Tokens)
}

func TestExecuteBuyOrderValidation(t *testing.T) {
	svc, purchaser := newTestService(t)
	ctx := context.Background()

	_, err := svc.ExecuteBuyOrder(ctx, d("0"), nil)
	require.ErrorIs(t, err, ErrInvalidPrice)

	negative := d("-1")
	_, err = svc.ExecuteBuyOrder(ctx, d("1"), &negative)
	require.ErrorIs(t, err, ErrInvalidAmount)

	res, err := svc.ExecuteBuyOrder(ctx, d("1"), nil)
	require.ErrorIs(t, err, ErrBelowMinimumBuy)
	require.False(t, res.Success)

	small := d("99.99")
	_, err = svc.ExecuteBuyOrder(ctx, d("1"), &small)
	require.ErrorIs(t, err, ErrBelowMinimumBuy)

	require.Empty(t, purchaser.calls)

	m, err := svc.GetMetrics(ctx)
	require.NoError(t, err)
	require.Zero(t, m.ExecutionCount)
}

func TestExecuteBuyOrderClampsToMaximum(t *testing.T) {
	svc, purchaser := newTestService(t)

	spend := d("25000")
	res, err := svc.ExecuteBuyOrder(context.Background(), d("4"), &spend)
	require.NoError(t, err)
	require.True(t, res.Success)
	requireDecimal(t, "10000", res.RandSpent)
	requireDecimal(t, "2500", res.TokensAcquired)
	requireDecimal(t, "10000", purchaser.calls[0].Spend)
}

func TestExecuteBuyOrderFailureIsRecorded(t *testing.T) {
	svc, purchaser := newTestService(t)
	purchaser.failure = "rpc unavailable"
	ctx := context.Background()

	spend := d("1000")
	res, err := svc.ExecuteBuyOrder(ctx, d("2"), &spend)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "rpc unavailable", res.Error)

	var rec SystemBuyOrderHistoryRecord
	require.NoError(t, svc.db.Where("reference = ?", res.Reference).Take(&rec).Error)
	require.Equal(t, StatusFailed, rec.Status)
	require.Equal(t, "rpc unavailable", rec.Error)
	require.True(t, rec.TokensAcquired.IsZero())
	require.Nil(t, rec.TransactionHash)
}

func TestGetMetrics(t *testing.T) {
	svc, purchaser := newTestService(t)
	ctx := context.Background()

	m, err := svc.GetMetrics(ctx)
	require.NoError(t, err)
	require.True(t, m.AveragePricePerToken.IsZero())
	require.Nil(t, m.LastExecutionAt)

	_, err = svc.TrackRevenue(ctx, "course_sales", d("20000"), "ZAR")
	require.NoError(t, err)

	spend := d("1000")
	_, err = svc.ExecuteBuyOrder(ctx, d("2"), &spend)
	require.NoError(t, err)

	spend = d("600")
	_, err = svc.ExecuteBuyOrder(ctx, d("4"), &spend)
	require.NoError(t, err)

	purchaser.failure = "reverted"
	spend = d("300")
	_, err = svc.ExecuteBuyOrder(ctx, d("3"), &spend)
	require.NoError(t, err)

	m, err = svc.GetMetrics(ctx)
	require.NoError(t, err)
	requireDecimal(t, "20000", m.TotalRevenueTracked)
	requireDecimal(t, "1600", m.TotalSpent)
	requireDecimal(t, "650", m.TotalTokensAcquired)
	require.True(t, m.AveragePricePerToken.Sub(d("2.4615384615")).Abs().LessThan(d("0.0000001")))
	require.EqualValues(t, 3, m.ExecutionCount)
	require.InDelta(t, 2.0/3.0, m.SuccessRate, 1e-9)
	require.NotNil(t, m.LastExecutionAt)
	require.Equal(t, time.Date(2024, 3, 1, 9, 4, 0, 0, time.UTC), m.LastExecutionAt.UTC())
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tokens.BuyOrder.RevenuePercentage = "0.1"
	cfg.Tokens.BuyOrder.MinBuyAmount = "100"
	cfg.Tokens.BuyOrder.MaxBuyAmount = "10000"

	s, err := SettingsFromConfig(cfg)
	require.NoError(t, err)
	requireDecimal(t, "0.1", s.RevenuePercentage)

	cfg.Tokens.BuyOrder.RevenuePercentage = "1.5"
	_, err = SettingsFromConfig(cfg)
	require.ErrorIs(t, err, ErrInvalidBuyOrderRule)

	cfg.Tokens.BuyOrder.RevenuePercentage = "0.1"
	cfg.Tokens.BuyOrder.MaxBuyAmount = "50"
	_, err = SettingsFromConfig(cfg)
	require.ErrorIs(t, err, ErrInvalidBuyOrderRule)

	cfg.Tokens.BuyOrder.MaxBuyAmount = "abc"
	_, err = SettingsFromConfig(cfg)
	require.Error(t, err)
}
