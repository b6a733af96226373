package burn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/services/token"
)

func TestBuildImpactMessage(t *testing.T) {
	c := newTestCalculator(t)

	msg, err := c.BuildImpactMessage(d("1000"), token.CourseSale)
	require.NoError(t, err)
	requireDecimal(t, "50", msg.BurnedAmount)
	requireDecimal(t, "950", msg.NetAmount)
	require.InDelta(t, 5.0, msg.PercentageLoss, 1e-9)
	require.Equal(t, SeverityHigh, msg.Severity)
	require.Contains(t, msg.Headline, "5% of this course sale")
	require.Contains(t, msg.Detail, "50 are destroyed")

	msg, err = c.BuildImpactMessage(d("1000"), token.EarningsWithdrawal)
	require.NoError(t, err)
	require.Equal(t, SeverityMedium, msg.Severity)

	msg, err = c.BuildImpactMessage(d("1000"), token.TokenRedemption)
	require.NoError(t, err)
	require.Equal(t, SeverityLow, msg.Severity)

	_, err = c.BuildImpactMessage(d("0"), token.CourseSale)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCompareOptions(t *testing.T) {
	c := newTestCalculator(t)

	opts, err := c.CompareOptions(d("200"))
	require.NoError(t, err)
	require.Len(t, opts, 3)
	require.Equal(t, token.TokenRedemption, opts[0].TransactionType)
	require.Equal(t, token.EarningsWithdrawal, opts[1].TransactionType)
	require.Equal(t, token.CourseSale, opts[2].TransactionType)
	requireDecimal(t, "4", opts[0].BurnedAmount)

	_, err = c.CompareOptions(d("-1"))
	require.Error(t, err)
}
