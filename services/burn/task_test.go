package burn

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/pkg/taskname"
	"smallbiznis-tokenomics/services/chain"
	"smallbiznis-tokenomics/services/token"
)

func newProcessTask(t *testing.T, p ProcessPayload) *asynq.Task {
	t.Helper()
	at, err := NewProcessTask(p)
	require.NoError(t, err)
	require.Equal(t, taskname.BurnProcess, at.Type())
	return at
}

func TestHandleProcessBurnsByType(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	task := &Task{tracker: f.tracker, integration: f.svc}
	ctx := context.Background()

	for _, p := range []ProcessPayload{
		{TransactionType: token.CourseSale, UserID: "user-1", ReferenceID: "course-1", Amount: "100"},
		{TransactionType: token.EarningsWithdrawal, UserID: "user-1", ReferenceID: "wd-1", Amount: "1000"},
		{TransactionType: token.TokenRedemption, UserID: "user-2", ReferenceID: "rd-1", Amount: "500"},
	} {
		require.NoError(t, task.HandleProcess(ctx, newProcessTask(t, p)))
	}

	burned, err := f.tracker.GetTotalBurnedSupply(ctx)
	require.NoError(t, err)
	requireDecimal(t, "45", burned)
	require.Equal(t, 3, f.rankings.calls)
	require.EqualValues(t, 3, f.countBurns(t))
}

func TestHandleProcessRejectsWithoutRetry(t *testing.T) {
	f := newIntegrationFixture(t, nil)
	task := &Task{tracker: f.tracker, integration: f.svc}
	ctx := context.Background()

	err := task.HandleProcess(ctx, asynq.NewTask(taskname.BurnProcess, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	for _, p := range []ProcessPayload{
		{TransactionType: token.CourseSale, UserID: "user-1", Amount: "abc"},
		{TransactionType: "REFUND", UserID: "user-1", Amount: "100"},
		{TransactionType: token.CourseSale, UserID: "user-1", Amount: "0"},
		{TransactionType: token.CourseSale, UserID: "", Amount: "100"},
	} {
		err := task.HandleProcess(ctx, newProcessTask(t, p))
		require.ErrorIs(t, err, asynq.SkipRetry, "payload %+v", p)
	}
	require.Zero(t, f.countBurns(t))
}

func TestHandleProcessRetriesChainFailure(t *testing.T) {
	f := newIntegrationFixture(t, executorFunc(func(ctx context.Context, req chain.BurnRequest) *chain.Result {
		return &chain.Result{Success: false, Status: token.StatusFailed, Error: "node unavailable"}
	}))
	task := &Task{tracker: f.tracker, integration: f.svc}

	err := task.HandleProcess(context.Background(), newProcessTask(t, ProcessPayload{
		TransactionType: token.CourseSale, UserID: "user-1", ReferenceID: "course-1", Amount: "100",
	}))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
	require.Contains(t, err.Error(), "node unavailable")
	require.Zero(t, f.rankings.calls)
}
