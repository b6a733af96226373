package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smallbiznis-tokenomics/pkg/hashistack/secretmanager"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RetryConfig struct {
	// MaxRetries is a pointer so an explicit 0 disables retries.
	MaxRetries        *int          `mapstructure:"MAX_RETRIES"`
	InitialDelay      time.Duration `mapstructure:"INITIAL_DELAY"`
	MaxDelay          time.Duration `mapstructure:"MAX_DELAY"`
	BackoffMultiplier float64       `mapstructure:"BACKOFF_MULTIPLIER"`
}

// Tokens holds the burn engine settings. Monetary values are decimal strings.
type Tokens struct {
	InitialTotalSupply string `mapstructure:"INITIAL_TOTAL_SUPPLY"`
	EnforceBalance     bool   `mapstructure:"ENFORCE_BALANCE"`
	BurnRates          struct {
		CourseSale         string `mapstructure:"COURSE_SALE"`
		EarningsWithdrawal string `mapstructure:"EARNINGS_WITHDRAWAL"`
		TokenRedemption    string `mapstructure:"TOKEN_REDEMPTION"`
	} `mapstructure:"BURN_RATES"`
	Blockchain struct {
		Provider           string      `mapstructure:"PROVIDER"`
		SigningKey         string      `mapstructure:"SIGNING_KEY"`
		GasFactor          string      `mapstructure:"GAS_FACTOR"`
		VerifyAfterExecute bool        `mapstructure:"VERIFY_AFTER_EXECUTE"`
		Retry              RetryConfig `mapstructure:"RETRY"`
	} `mapstructure:"BLOCKCHAIN"`
	Compliance struct {
		Enabled   bool     `mapstructure:"ENABLED"`
		DenyRules []string `mapstructure:"DENY_RULES"`
	} `mapstructure:"COMPLIANCE"`
	Leaderboard struct {
		CacheTTL time.Duration `mapstructure:"CACHE_TTL"`
		Schedule string        `mapstructure:"SCHEDULE"`
	} `mapstructure:"LEADERBOARD"`
	Reconcile struct {
		StaleAfter time.Duration `mapstructure:"STALE_AFTER"`
		Schedule   string        `mapstructure:"SCHEDULE"`
	} `mapstructure:"RECONCILE"`
	BuyOrder struct {
		RevenuePercentage string `mapstructure:"REVENUE_PERCENTAGE"`
		MinBuyAmount      string `mapstructure:"MIN_BUY_AMOUNT"`
		MaxBuyAmount      string `mapstructure:"MAX_BUY_AMOUNT"`
		PricePerToken     string `mapstructure:"PRICE_PER_TOKEN"`
		Schedule          string `mapstructure:"SCHEDULE"`
		FeatureFlag       string `mapstructure:"FEATURE_FLAG"`
	} `mapstructure:"BUY_ORDER"`
}

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Tokens Tokens `mapstructure:"TOKENS"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "tokenomics")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", ":9090")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")

	v.SetDefault("TOKENS.INITIAL_TOTAL_SUPPLY", "1000000000")
	v.SetDefault("TOKENS.BURN_RATES.COURSE_SALE", "0.05")
	v.SetDefault("TOKENS.BURN_RATES.EARNINGS_WITHDRAWAL", "0.03")
	v.SetDefault("TOKENS.BURN_RATES.TOKEN_REDEMPTION", "0.02")
	v.SetDefault("TOKENS.BLOCKCHAIN.PROVIDER", "simulated")
	v.SetDefault("TOKENS.BLOCKCHAIN.GAS_FACTOR", "0.001")
	v.SetDefault("TOKENS.BLOCKCHAIN.VERIFY_AFTER_EXECUTE", true)
	v.SetDefault("TOKENS.BLOCKCHAIN.RETRY.MAX_RETRIES", 3)
	v.SetDefault("TOKENS.BLOCKCHAIN.RETRY.INITIAL_DELAY", time.Second)
	v.SetDefault("TOKENS.BLOCKCHAIN.RETRY.MAX_DELAY", 30*time.Second)
	v.SetDefault("TOKENS.BLOCKCHAIN.RETRY.BACKOFF_MULTIPLIER", 2.0)
	v.SetDefault("TOKENS.LEADERBOARD.CACHE_TTL", 30*time.Second)
	v.SetDefault("TOKENS.LEADERBOARD.SCHEDULE", "@every 15m")
	v.SetDefault("TOKENS.RECONCILE.STALE_AFTER", 10*time.Minute)
	v.SetDefault("TOKENS.RECONCILE.SCHEDULE", "@every 5m")
	v.SetDefault("TOKENS.BUY_ORDER.REVENUE_PERCENTAGE", "0.1")
	v.SetDefault("TOKENS.BUY_ORDER.MIN_BUY_AMOUNT", "100")
	v.SetDefault("TOKENS.BUY_ORDER.MAX_BUY_AMOUNT", "10000")
	v.SetDefault("TOKENS.BUY_ORDER.PRICE_PER_TOKEN", "1")
	v.SetDefault("TOKENS.BUY_ORDER.SCHEDULE", "@daily")
	v.SetDefault("TOKENS.BUY_ORDER.FEATURE_FLAG", "system_buy_order")
}

// Load reads config.yaml (optional) from paths, then the environment, on top of
// the defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func LoadConfig(p Params) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if p.Vault != nil {
		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := secretmanager.ReadKV(context.Background(), p.Vault, cfg.AppEnv)
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			return nil, err
		}
		zap.L().Info("Success Get Secret")
		cfg.ApplySecrets(secret)
	}

	return cfg, nil
}

// ApplySecrets overlays non-empty vault values onto the loaded config.
func (c *Config) ApplySecrets(s secretmanager.Secrets) {
	set := func(dst *string, key string) {
		if v := s.Get(key); v != "" {
			*dst = v
		}
	}

	set(&c.Database.User, "postgres_user")
	set(&c.Database.Password, "postgres_password")
	set(&c.Redis.Password, "redis_password")
	set(&c.Flagsmith.ApiKey, "flagsmith_api_key")
	set(&c.Tokens.Blockchain.SigningKey, "blockchain_signing_key")
}
