package burn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/services/token"
)

func TestCELAdvisor(t *testing.T) {
	advisor, err := NewCELAdvisor(
		`transaction_type == "EARNINGS_WITHDRAWAL" && burned_amount > 100.0`,
		`user_id.startsWith("banned-")`,
	)
	require.NoError(t, err)
	ctx := context.Background()

	decision, err := advisor.Evaluate(ctx, ComplianceContext{
		UserID:          "user-1",
		Amount:          d("1000"),
		BurnedAmount:    d("30"),
		TransactionType: token.EarningsWithdrawal,
	})
	require.NoError(t, err)
	require.True(t, decision.Approved)

	decision, err = advisor.Evaluate(ctx, ComplianceContext{
		UserID:          "user-1",
		Amount:          d("10000"),
		BurnedAmount:    d("300"),
		TransactionType: token.EarningsWithdrawal,
	})
	require.NoError(t, err)
	require.False(t, decision.Approved)
	require.Contains(t, decision.Reasoning, "burned_amount > 100.0")

	decision, err = advisor.Evaluate(ctx, ComplianceContext{
		UserID:          "banned-7",
		Amount:          d("1"),
		BurnedAmount:    d("0.05"),
		TransactionType: token.CourseSale,
	})
	require.NoError(t, err)
	require.False(t, decision.Approved)
}

func TestNewCELAdvisorRejectsInvalidRules(t *testing.T) {
	_, err := NewCELAdvisor(`amount +`)
	require.Error(t, err)

	_, err = NewCELAdvisor(`amount * 2.0`)
	require.Error(t, err)
}

func TestNewAdvisorFromConfig(t *testing.T) {
	cfg := &config.Config{}

	advisor, err := NewAdvisor(cfg)
	require.NoError(t, err)
	require.Nil(t, advisor)

	cfg.Tokens.Compliance.Enabled = true
	advisor, err = NewAdvisor(cfg)
	require.NoError(t, err)
	require.IsType(t, AllowAllAdvisor{}, advisor)

	cfg.Tokens.Compliance.DenyRules = []string{`amount > 1.0`}
	advisor, err = NewAdvisor(cfg)
	require.NoError(t, err)
	require.IsType(t, &CELAdvisor{}, advisor)
}
