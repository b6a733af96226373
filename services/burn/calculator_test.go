package burn

import (
	"errors"
	"testing"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/services/token"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultBurnRates())
	require.NoError(t, err)
	return c
}

func TestCalculateBurnScenarios(t *testing.T) {
	c := newTestCalculator(t)

	cases := []struct {
		amount string
		typ    token.TransactionType
		rate   string
		burned string
		net    string
	}{
		{"1000", token.CourseSale, "0.05", "50", "950"},
		{"1000", token.EarningsWithdrawal, "0.03", "30", "970"},
		{"1000", token.TokenRedemption, "0.02", "20", "980"},
		{"123.45", token.CourseSale, "0.05", "6.1725", "117.2775"},
		{"500.50", token.EarningsWithdrawal, "0.03", "15.015", "485.485"},
		{"0.01", token.CourseSale, "0.05", "0.0005", "0.0095"},
	}

	for _, c2 := range cases {
		calc, err := c.CalculateBurn(d(c2.amount), c2.typ)
		require.NoError(t, err)
		requireDecimal(t, c2.amount, calc.OriginalAmount)
		requireDecimal(t, c2.rate, calc.BurnRate)
		requireDecimal(t, c2.burned, calc.BurnedAmount)
		requireDecimal(t, c2.net, calc.NetAmount)
		require.True(t, calc.BurnedAmount.Add(calc.NetAmount).Equal(calc.OriginalAmount))
	}
}

func TestCalculateBurnErrors(t *testing.T) {
	c := newTestCalculator(t)

	_, err := c.CalculateBurn(decimal.Zero, token.CourseSale)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.EqualError(t, err, "[VALIDATION_FAILED] Amount must be greater than 0")

	_, err = c.CalculateBurn(d("-100"), token.CourseSale)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = c.CalculateBurn(d("100"), token.TransactionType("INVALID_TYPE"))
	require.ErrorIs(t, err, ErrUnknownTransactionType)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestCalculateBurnIsIdempotent(t *testing.T) {
	c := newTestCalculator(t)
	a, err := c.CalculateBurn(d("777.77"), token.CourseSale)
	require.NoError(t, err)
	b, err := c.CalculateBurn(d("777.77"), token.CourseSale)
	require.NoError(t, err)
	require.Equal(t, a.BurnedAmount.String(), b.BurnedAmount.String())
	require.Equal(t, a.NetAmount.String(), b.NetAmount.String())
}

func TestCalculateReverseBurnRoundTrips(t *testing.T) {
	c := newTestCalculator(t)

	rev, err := c.CalculateReverseBurn(d("950"), token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "1000", rev.OriginalAmount)
	requireDecimal(t, "50", rev.BurnedAmount)

	for _, amount := range []string{"1000", "123.45", "0.01", "98765.4321"} {
		for _, typ := range token.TransactionTypes {
			fwd, err := c.CalculateBurn(d(amount), typ)
			require.NoError(t, err)
			back, err := c.CalculateReverseBurn(fwd.NetAmount, typ)
			require.NoError(t, err)
			require.True(t, back.OriginalAmount.Round(12).Equal(d(amount)), "%s %s -> %s", amount, typ, back.OriginalAmount)
		}
	}

	_, err = c.CalculateReverseBurn(decimal.Zero, token.CourseSale)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBulkAndTotalBurn(t *testing.T) {
	c := newTestCalculator(t)
	items := []Item{
		{Amount: d("1000"), TransactionType: token.CourseSale},
		{Amount: d("1000"), TransactionType: token.EarningsWithdrawal},
		{Amount: d("123.45"), TransactionType: token.CourseSale},
	}

	calcs, err := c.CalculateBulkBurns(items)
	require.NoError(t, err)
	require.Len(t, calcs, 3)

	totals, err := c.CalculateTotalBurn(items)
	require.NoError(t, err)
	requireDecimal(t, "2123.45", totals.TotalOriginal)
	requireDecimal(t, "86.1725", totals.TotalBurned)
	requireDecimal(t, "2037.2775", totals.TotalNet)

	sum := decimal.Zero
	for _, calc := range calcs {
		sum = sum.Add(calc.BurnedAmount)
	}
	require.True(t, sum.Equal(totals.TotalBurned))

	_, err = c.CalculateTotalBurn(append(items, Item{Amount: decimal.Zero, TransactionType: token.CourseSale}))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestValidateBurnTransaction(t *testing.T) {
	c := newTestCalculator(t)

	v := c.ValidateBurnTransaction(d("100"), token.CourseSale, d("1000"))
	require.True(t, v.IsValid)
	require.Empty(t, v.Errors)
	require.Empty(t, v.Warnings)

	v = c.ValidateBurnTransaction(d("1000"), token.CourseSale, d("1000"))
	require.True(t, v.IsValid, "exact balance is allowed")

	v = c.ValidateBurnTransaction(d("1500"), token.CourseSale, d("1000"))
	require.False(t, v.IsValid)
	require.Contains(t, v.Errors[0], "Insufficient balance")

	v = c.ValidateBurnTransaction(decimal.Zero, token.CourseSale, d("1000"))
	require.False(t, v.IsValid)
	require.Contains(t, v.Errors, "Amount must be greater than 0")

	v = c.ValidateBurnTransaction(d("10"), token.TransactionType("NOPE"), d("1000"))
	require.False(t, v.IsValid)
	require.Contains(t, v.Errors, "Unknown transaction type")
}

// Burns of 90% of the balance or more carry a warning.
func TestValidateBurnTransactionLargeBurnWarning(t *testing.T) {
	c := newTestCalculator(t)

	v := c.ValidateBurnTransaction(d("899"), token.CourseSale, d("1000"))
	require.Empty(t, v.Warnings)

	v = c.ValidateBurnTransaction(d("900"), token.CourseSale, d("1000"))
	require.True(t, v.IsValid)
	require.Len(t, v.Warnings, 1)
	require.Contains(t, v.Warnings[0], "90")
}

// Percentage loss ignores the amount; a flat rate applies to any size.
func TestCalculatePercentageLossIsAmountIndependent(t *testing.T) {
	c := newTestCalculator(t)

	for _, typ := range token.TransactionTypes {
		small, err := c.CalculatePercentageLoss(d("1"), typ)
		require.NoError(t, err)
		large, err := c.CalculatePercentageLoss(d("1000000"), typ)
		require.NoError(t, err)
		require.Equal(t, small, large)
	}

	loss, err := c.CalculatePercentageLoss(d("100"), token.CourseSale)
	require.NoError(t, err)
	require.InDelta(t, 5.0, loss, 1e-9)
}

func TestCalculateEffectivePrice(t *testing.T) {
	c := newTestCalculator(t)
	price, err := c.CalculateEffectivePrice(d("1000"), token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "950", price)
}

func TestUpdateAndGetBurnRates(t *testing.T) {
	c := newTestCalculator(t)

	rate := d("0.1")
	require.NoError(t, c.UpdateBurnRates(BurnRatesUpdate{CourseSale: &rate}))

	rates := c.GetBurnRates()
	requireDecimal(t, "0.1", rates.CourseSale)
	requireDecimal(t, "0.03", rates.EarningsWithdrawal)

	rates.CourseSale = d("0.5")
	requireDecimal(t, "0.1", c.GetBurnRates().CourseSale)

	bad := d("1")
	err := c.UpdateBurnRates(BurnRatesUpdate{TokenRedemption: &bad})
	require.True(t, errors.Is(err, ErrInvalidBurnRate))
	requireDecimal(t, "0.02", c.GetBurnRates().TokenRedemption)

	calc, err := c.CalculateBurn(d("1000"), token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "100", calc.BurnedAmount)
}

func TestCustomRatesFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tokens.BurnRates.CourseSale = "0.1"

	c, err := NewCalculatorFromConfig(cfg)
	require.NoError(t, err)
	calc, err := c.CalculateBurn(d("1000"), token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "100", calc.BurnedAmount)
	requireDecimal(t, "0.03", c.GetBurnRates().EarningsWithdrawal)

	cfg.Tokens.BurnRates.EarningsWithdrawal = "abc"
	_, err = NewCalculatorFromConfig(cfg)
	require.Error(t, err)
}
