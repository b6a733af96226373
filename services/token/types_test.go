package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionTypeValid(t *testing.T) {
	for _, tt := range TransactionTypes {
		require.True(t, tt.Valid())
	}
	require.False(t, TransactionType("INVALID_TYPE").Valid())
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to BlockchainStatus
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusConfirmed, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusPending, StatusPending, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusFailed, StatusConfirmed, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusPending, BlockchainStatus("DONE"), false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}
}
