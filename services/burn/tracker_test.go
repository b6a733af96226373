package burn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/services/token"
)

type verifierFunc func(ctx context.Context, txHash string) (token.BlockchainStatus, error)

func (f verifierFunc) VerifyTransaction(ctx context.Context, txHash string) (token.BlockchainStatus, error) {
	return f(ctx, txHash)
}

func newTestTracker(t *testing.T) (*Tracker, *gormRepository) {
	t.Helper()
	repo, _ := newTestRepository(t)
	return NewTracker(repo, d("1000000")), repo
}

func logBurn(t *testing.T, tr *Tracker, userID string, typ token.TransactionType, amount, rate, burned string) *BurnTransaction {
	t.Helper()
	bt, err := tr.LogBurnTransaction(context.Background(), userID, d(amount), d(rate), d(burned), typ, "test burn", nil)
	require.NoError(t, err)
	return bt
}

func TestConfirmBurnTransactionAppliesSupplyOnce(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	bt := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")

	burned, err := tr.GetTotalBurnedSupply(ctx)
	require.NoError(t, err)
	require.True(t, burned.IsZero())

	circulating, err := tr.GetCirculatingSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "1000000", circulating)

	confirmed, err := tr.ConfirmBurnTransaction(ctx, bt.ID, "0xhash", token.StatusConfirmed)
	require.NoError(t, err)
	require.Equal(t, token.StatusConfirmed, confirmed.BlockchainStatus)

	s, err := tr.GetTokenSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "50", s.BurnedSupply)
	requireDecimal(t, "999950", s.CirculatingSupply)

	// a second confirmation is rejected and leaves the supply alone
	_, err = tr.ConfirmBurnTransaction(ctx, bt.ID, "0xhash", token.StatusConfirmed)
	require.Error(t, err)

	burned, err = tr.GetTotalBurnedSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "50", burned)
}

func TestConfirmBurnTransactionFailedLeavesSupply(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	bt := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	failed, err := tr.ConfirmBurnTransaction(ctx, bt.ID, "", token.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, token.StatusFailed, failed.BlockchainStatus)

	s, err := tr.GetTokenSupply(ctx)
	require.NoError(t, err)
	require.Nil(t, s)

	list, err := tr.GetFailedBurnTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestConfirmRollsBackStatusWhenSupplyRejects(t *testing.T) {
	repo, _ := newTestRepository(t)
	tr := NewTracker(repo, d("10"))
	ctx := context.Background()

	bt := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	_, err := tr.ConfirmBurnTransaction(ctx, bt.ID, "0xhash", token.StatusConfirmed)
	require.Error(t, err)

	got, err := tr.GetBurnTransaction(ctx, bt.ID)
	require.NoError(t, err)
	require.Equal(t, token.StatusPending, got.BlockchainStatus)
}

func TestUpdateSupplyAfterBurn(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.UpdateSupplyAfterBurn(ctx, d("1000000"), d("999950"), d("50"))
	require.NoError(t, err)
	requireDecimal(t, "50", s.BurnedSupply)
	requireDecimal(t, "999950", s.CirculatingSupply)

	// a stale circulating value from the caller is ignored
	s, err = tr.UpdateSupplyAfterBurn(ctx, d("1000000"), d("1"), d("30"))
	require.NoError(t, err)
	requireDecimal(t, "80", s.BurnedSupply)
	requireDecimal(t, "999920", s.CirculatingSupply)

	s, err = tr.SetTokenSupply(ctx, d("2000000"), d("1999920"), d("80"))
	require.NoError(t, err)
	requireDecimal(t, "2000000", s.TotalSupply)
}

func TestUserCumulativeBurnAndTypeStatistics(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	a := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	b := logBurn(t, tr, "user-1", token.CourseSale, "200", "0.05", "10")
	logBurn(t, tr, "user-1", token.CourseSale, "400", "0.05", "20")
	c := logBurn(t, tr, "user-2", token.EarningsWithdrawal, "1000", "0.03", "30")

	for _, bt := range []*BurnTransaction{a, b, c} {
		_, err := tr.ConfirmBurnTransaction(ctx, bt.ID, "0x"+bt.ID, token.StatusConfirmed)
		require.NoError(t, err)
	}

	total, err := tr.GetUserCumulativeBurn(ctx, "user-1")
	require.NoError(t, err)
	requireDecimal(t, "60", total)

	total, err = tr.GetUserCumulativeBurn(ctx, "nobody")
	require.NoError(t, err)
	require.True(t, total.IsZero())

	stats, err := tr.GetBurnStatisticsByType(ctx, token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "60", stats.TotalBurned)
	require.EqualValues(t, 2, stats.TransactionCount)
	requireDecimal(t, "30", stats.AverageBurn)

	stats, err = tr.GetBurnStatisticsByType(ctx, token.TokenRedemption)
	require.NoError(t, err)
	require.Zero(t, stats.TransactionCount)
	require.True(t, stats.AverageBurn.IsZero())

	_, err = tr.GetBurnStatisticsByType(ctx, "GIFT")
	require.ErrorIs(t, err, ErrUnknownTransactionType)

	pending, err := tr.GetPendingBurnTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestGetBurnTransactionMissingReturnsNil(t *testing.T) {
	tr, _ := newTestTracker(t)

	bt, err := tr.GetBurnTransaction(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, bt)
}

func TestHistoricalBurnDataAndSupplyTrend(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	a := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	b := logBurn(t, tr, "user-2", token.TokenRedemption, "1000", "0.02", "20")
	for _, bt := range []*BurnTransaction{a, b} {
		_, err := tr.ConfirmBurnTransaction(ctx, bt.ID, "0x"+bt.ID, token.StatusConfirmed)
		require.NoError(t, err)
	}

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	data, err := tr.GetHistoricalBurnData(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, data.Transactions, 2)
	requireDecimal(t, "70", data.TotalBurned)
	requireDecimal(t, "70", data.DailyBreakdown["2024-03-01"])

	tr.now = func() time.Time { return time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC) }
	trend, err := tr.GetSupplyTrendData(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, trend.Dates)
	for i := range trend.Dates {
		requireDecimal(t, "1000000", trend.TotalSupply[i])
		requireDecimal(t, "70", trend.BurnedSupply[i])
		requireDecimal(t, "999930", trend.CirculatingSupply[i])
	}

	_, err = tr.GetSupplyTrendData(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCalculateOwnershipPercentage(t *testing.T) {
	tr, _ := newTestTracker(t)

	require.InDelta(t, 10.0, tr.CalculateOwnershipPercentage(d("100"), d("1000")), 1e-9)
	require.Zero(t, tr.CalculateOwnershipPercentage(d("100"), d("0")))
	require.Zero(t, tr.CalculateOwnershipPercentage(d("100"), d("-5")))
}

func TestHandleVerified(t *testing.T) {
	tr, repo := newTestTracker(t)
	ctx := context.Background()

	bt := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	_, err := repo.UpdateBurnTransactionHash(ctx, bt.ID, "0xabc", token.StatusProcessing)
	require.NoError(t, err)

	require.NoError(t, tr.HandleVerified(ctx, "0xabc", token.StatusProcessing))
	got, err := tr.GetBurnTransaction(ctx, bt.ID)
	require.NoError(t, err)
	require.Equal(t, token.StatusProcessing, got.BlockchainStatus)

	require.NoError(t, tr.HandleVerified(ctx, "0xabc", token.StatusConfirmed))
	got, err = tr.GetBurnTransaction(ctx, bt.ID)
	require.NoError(t, err)
	require.Equal(t, token.StatusConfirmed, got.BlockchainStatus)

	// repeated and unknown notifications are no-ops
	require.NoError(t, tr.HandleVerified(ctx, "0xabc", token.StatusConfirmed))
	require.NoError(t, tr.HandleVerified(ctx, "0xunknown", token.StatusFailed))

	burned, err := tr.GetTotalBurnedSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "50", burned)
}

func TestReconcilePending(t *testing.T) {
	tr, repo := newTestTracker(t)
	ctx := context.Background()

	confirmed := logBurn(t, tr, "user-1", token.CourseSale, "1000", "0.05", "50")
	failed := logBurn(t, tr, "user-2", token.CourseSale, "1000", "0.05", "50")
	unreachable := logBurn(t, tr, "user-3", token.CourseSale, "1000", "0.05", "50")
	stale := logBurn(t, tr, "user-4", token.CourseSale, "1000", "0.05", "50")

	for hash, bt := range map[string]*BurnTransaction{"0x1": confirmed, "0x2": failed, "0x3": unreachable} {
		_, err := repo.UpdateBurnTransactionHash(ctx, bt.ID, hash, token.StatusProcessing)
		require.NoError(t, err)
	}

	tr.SetVerifier(verifierFunc(func(ctx context.Context, txHash string) (token.BlockchainStatus, error) {
		switch txHash {
		case "0x1":
			return token.StatusConfirmed, nil
		case "0x2":
			return token.StatusFailed, nil
		}
		return "", errors.New("rpc unavailable")
	}))
	tr.now = func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) }

	report, err := tr.ReconcilePending(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, report.Confirmed)
	require.Equal(t, 2, report.Failed)
	require.Equal(t, 1, report.Pending)

	got, err := tr.GetBurnTransaction(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, token.StatusFailed, got.BlockchainStatus)

	got, err = tr.GetBurnTransaction(ctx, unreachable.ID)
	require.NoError(t, err)
	require.Equal(t, token.StatusProcessing, got.BlockchainStatus)

	burned, err := tr.GetTotalBurnedSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "50", burned)
}
