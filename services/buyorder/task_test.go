package buyorder

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/pkg/taskname"
)

type flagGateFunc func(ctx context.Context, feature string) (bool, error)

func (f flagGateFunc) Enabled(ctx context.Context, feature string) (bool, error) {
	return f(ctx, feature)
}

func newTestTask(svc *Service, gate FlagGate) *Task {
	return &Task{svc: svc, flags: gate, flag: "system_buy_order", price: d("2")}
}

func TestHandleExecuteRespectsFeatureFlag(t *testing.T) {
	svc, purchaser := newTestService(t)
	ctx := context.Background()
	_, err := svc.TrackRevenue(ctx, "course_sales", d("5000"), "ZAR")
	require.NoError(t, err)

	var asked string
	tk := newTestTask(svc, flagGateFunc(func(ctx context.Context, feature string) (bool, error) {
		asked = feature
		return false, nil
	}))
	require.NoError(t, tk.HandleExecute(ctx, asynq.NewTask(taskname.BuyOrderExecute, nil)))
	require.Equal(t, "system_buy_order", asked)
	require.Empty(t, purchaser.calls)

	tk = newTestTask(svc, flagGateFunc(func(ctx context.Context, feature string) (bool, error) {
		return false, errors.New("flagsmith down")
	}))
	require.Error(t, tk.HandleExecute(ctx, asynq.NewTask(taskname.BuyOrderExecute, nil)))
	require.Empty(t, purchaser.calls)
}

func TestHandleExecute(t *testing.T) {
	svc, purchaser := newTestService(t)
	ctx := context.Background()
	tk := newTestTask(svc, nil)

	// nothing tracked yet
	require.NoError(t, tk.HandleExecute(ctx, asynq.NewTask(taskname.BuyOrderExecute, nil)))
	require.Empty(t, purchaser.calls)

	_, err := svc.TrackRevenue(ctx, "course_sales", d("5000"), "ZAR")
	require.NoError(t, err)
	require.NoError(t, tk.HandleExecute(ctx, asynq.NewTask(taskname.BuyOrderExecute, nil)))
	require.Len(t, purchaser.calls, 1)
	requireDecimal(t, "500", purchaser.calls[0].Spend)
	requireDecimal(t, "250", purchaser.calls[0].Tokens)

	payload := []byte(`{"price_per_token":"5","rand_amount":"1000"}`)
	require.NoError(t, tk.HandleExecute(ctx, asynq.NewTask(taskname.BuyOrderExecute, payload)))
	require.Len(t, purchaser.calls, 2)
	requireDecimal(t, "200", purchaser.calls[1].Tokens)
}

func TestHandleExecuteRejectsBadPayload(t *testing.T) {
	svc, _ := newTestService(t)
	tk := newTestTask(svc, nil)

	err := tk.HandleExecute(context.Background(), asynq.NewTask(taskname.BuyOrderExecute, []byte(`{`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = tk.HandleExecute(context.Background(), asynq.NewTask(taskname.BuyOrderExecute, []byte(`{"price_per_token":"0"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
