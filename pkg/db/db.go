package db

import (
	"context"
	"fmt"
	"time"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

var Module = fx.Module("database",
	fx.Provide(
		Dialect,
		New,
	),
	fx.Invoke(RegisterConnectionPool, RegisterPlugins, Migrate),
)

const connectAttempts = 5

// Dialect builds the gorm dialector selected by DATABASE.TYPE.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch d.Type {
	case "", "postgres":
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
			d.Host, d.Port, d.User, d.Password, d.DBNAME, d.SSLMode, d.Timezone)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBNAME)
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(d.DBNAME), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Type)
	}
}

func New(cfg *config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	logLevel := logger.Info
	showSQL := true
	if cfg.AppEnv == "production" {
		logLevel = logger.Warn
		showSQL = false
	}

	gormLogger := NewZapGormLogger(zap.L(), logLevel, showSQL)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Second

	var db *gorm.DB
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
		if err != nil {
			zap.L().Warn("[DB] Database not ready, retrying", zap.Int("retry", attempt), zap.Error(err))
		}
		return err
	}, backoff.WithMaxRetries(b, connectAttempts-1))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	zap.L().Info("[DB] Database connection successfully configured.")
	return db, nil
}

type connectionPoolParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	DB        *gorm.DB
	Config    *config.Config
}

func RegisterConnectionPool(p connectionPoolParams) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB from gorm: %w", err)
	}

	cp := p.Config.Database.ConnectionPool
	if cp.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cp.MaxIdleConn)
	}
	if cp.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cp.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(cp.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cp.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("[DB] Closing connection pool...")
			return sqlDB.Close()
		},
	})
	return nil
}

// RegisterPlugins installs query tracing and, when enabled, pool metrics.
func RegisterPlugins(db *gorm.DB, cfg *config.Config) error {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return fmt.Errorf("register db telemetry: %w", err)
	}

	if !cfg.Database.Metrics {
		return nil
	}

	if err := db.Use(prometheus.New(prometheus.Config{
		DBName:          cfg.Database.DBNAME,
		RefreshInterval: 15,
	})); err != nil {
		return fmt.Errorf("register db metrics: %w", err)
	}
	return nil
}

type migrationParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Models []any `group:"models"`
}

// Migrate runs AutoMigrate for every model contributed to the "models" group
// when DATABASE.AUTO_MIGRATE is set.
func Migrate(p migrationParams) error {
	if !p.Config.Database.AutoMigrate {
		return nil
	}
	if err := p.DB.AutoMigrate(p.Models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	zap.L().Info("[DB] Schema migrated", zap.Int("models", len(p.Models)))
	return nil
}
