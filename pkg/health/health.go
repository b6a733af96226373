package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	pollInterval = 15 * time.Second
	checkTimeout = 3 * time.Second
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

// GRPC registers the standard gRPC health service and keeps it in step with
// the dependency checks.
var GRPC = fx.Module("health.grpc", fx.Invoke(RegisterGRPC))

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

func (h *Health) Healthy() bool {
	return h.Status == StatusHealthy
}

type HealthService interface {
	Check(ctx context.Context) *Health
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis *redis.Client
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:    p.DB,
		redis: p.Redis,
	}
}

func (h *health) Check(ctx context.Context) *Health {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	this := &Health{
		Status:  StatusHealthy,
		Message: "OK",
		Deps:    make([]Dependency, 0, 2),
	}

	if h.db != nil {
		dep := Dependency{Name: h.db.Name(), Status: StatusHealthy, Message: "OK"}
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{Name: "redis", Status: StatusHealthy, Message: "OK"}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}
		this.Deps = append(this.Deps, dep)
	}

	for _, dep := range this.Deps {
		if dep.Status != StatusHealthy {
			this.Status = StatusUnhealthy
			this.Message = "dependency check failed"
			break
		}
	}
	return this
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	this := h.Check(c.Request.Context())
	if !this.Healthy() {
		c.JSON(http.StatusServiceUnavailable, this)
		return
	}
	c.JSON(http.StatusOK, this)
}

func servingStatus(h *Health) healthpb.HealthCheckResponse_ServingStatus {
	if h.Healthy() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func RegisterGRPC(lc fx.Lifecycle, srv *grpc.Server, h HealthService) {
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	update := func() {
		status := servingStatus(h.Check(ctx))
		hs.SetServingStatus("", status)
		if status != healthpb.HealthCheckResponse_SERVING {
			zap.L().Warn("health check failed, reporting NOT_SERVING")
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			update()
			go func() {
				defer close(done)
				ticker := time.NewTicker(pollInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						update()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			hs.Shutdown()
			return nil
		},
	})
}
