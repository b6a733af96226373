package middleware

import (
	"context"
	"time"

	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err.Err))
		}

		zapLog := logger.FromContext(c.Request.Context())
		if c.Writer.Status() >= 500 {
			zapLog.Error("http request", fields...)
			return
		}
		zapLog.Debug("http request", fields...)
	}
}

// UnaryErrorInterceptor logs failed calls and converts domain errors to gRPC
// status errors.
func UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.FromContext(ctx).Warn("grpc call failed", zap.String("method", info.FullMethod), zap.Error(err))
			return resp, errutil.ToGRPCError(err)
		}
		return resp, nil
	}
}
