package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	before := testutil.ToFloat64(BuyOrders.WithLabelValues("COMPLETED"))
	BuyOrders.WithLabelValues("COMPLETED").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(BuyOrders.WithLabelValues("COMPLETED")))

	n, err := testutil.GatherAndCount(reg, "tokens_buy_orders_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
}
