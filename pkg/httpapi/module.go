package httpapi

import (
	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/health"
	"smallbiznis-tokenomics/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
	fx.Invoke(RegisterRoutes),
)

func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Error())
	return r
}

type RouteParams struct {
	fx.In

	Router   *gin.Engine
	Health   health.HealthService
	Gatherer prometheus.Gatherer `optional:"true"`
}

func RegisterRoutes(p RouteParams) {
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	p.Router.GET("/healthz", p.Health.Liveness)
	p.Router.GET("/readyz", p.Health.Readiness)
	p.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
