package chain

import (
	"context"
	"fmt"

	"smallbiznis-tokenomics/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("chain.service",
	fx.Provide(
		NewProvider,
		NewExecutorFromConfig,
	),
	fx.Invoke(registerLifecycle),
)

// registerLifecycle waits for in-flight verifications on shutdown.
func registerLifecycle(lc fx.Lifecycle, e *Executor) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			e.Wait()
			return nil
		},
	})
}

// NewProvider builds the provider named by TOKENS.BLOCKCHAIN.PROVIDER.
func NewProvider(cfg *config.Config) (Provider, error) {
	bc := cfg.Tokens.Blockchain
	switch bc.Provider {
	case "", "simulated":
		gas := DefaultGasFactor
		if bc.GasFactor != "" {
			f, err := decimal.NewFromString(bc.GasFactor)
			if err != nil {
				return nil, fmt.Errorf("parse gas factor: %w", err)
			}
			gas = f
		}
		return NewSimulatedProvider(WithSigningKey(bc.SigningKey), WithGasFactor(gas)), nil
	default:
		return nil, fmt.Errorf("unsupported blockchain provider %q", bc.Provider)
	}
}

func NewExecutorFromConfig(cfg *config.Config, p Provider) (*Executor, error) {
	bc := cfg.Tokens.Blockchain
	retry := retryConfigFrom(bc.Retry)
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("blockchain retry config: %w", err)
	}
	return NewExecutor(p,
		WithRetryConfig(retry),
		WithVerifyAfterExecute(bc.VerifyAfterExecute),
	), nil
}
