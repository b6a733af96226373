package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/health"
	"smallbiznis-tokenomics/pkg/metrics"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	r := NewRouter(&config.Config{AppEnv: "test"})
	RegisterRoutes(RouteParams{
		Router:   r,
		Health:   health.ProvideHealth(health.HealthParams{}),
		Gatherer: reg,
	})
	return r
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)
	metrics.BurnsProcessed.WithLabelValues("COURSE_SALE", "confirmed").Inc()

	for _, path := range []string{"/healthz", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "tokens_burns_processed_total")
}

func TestErrorMiddleware(t *testing.T) {
	r := newTestRouter(t)
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(errutil.Conflict("supply invariant violated", nil))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "supply invariant violated")
}
