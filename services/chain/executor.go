package chain

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/services/token"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	opExecuteBurn     = "execute_burn"
	opExecutePurchase = "execute_purchase"
	opVerify          = "verify"
)

var tracer = otel.Tracer("tokens.chain")

var ErrNoProvider = errors.New("chain: no provider configured")

// Executor submits burns and purchases to a Provider with retries.
type Executor struct {
	mu          sync.RWMutex
	provider    Provider
	retry       RetryConfig
	verifyAfter bool
	listeners   []VerificationListener

	// detached verifications outlive the request context
	verifyTimeout time.Duration
	wg            sync.WaitGroup
	now           func() time.Time
}

type Option func(*Executor)

func WithRetryConfig(c RetryConfig) Option {
	return func(e *Executor) { e.retry = c }
}

// WithVerifyAfterExecute enables ScheduleVerification for executions that
// have not reached finality.
func WithVerifyAfterExecute(enabled bool) Option {
	return func(e *Executor) { e.verifyAfter = enabled }
}

func NewExecutor(p Provider, opts ...Option) *Executor {
	e := &Executor{
		provider:      p,
		retry:         DefaultRetryConfig(),
		verifyTimeout: 2 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) SetProvider(p Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.provider = p
}

func (e *Executor) SetRetryConfig(u RetryConfigUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.retry.apply(u)
	if err := next.Validate(); err != nil {
		return errutil.ValidationFailed(err.Error(), nil)
	}
	e.retry = next
	return nil
}

func (e *Executor) RetryConfig() RetryConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retry
}

func (e *Executor) AddListener(l VerificationListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Executor) snapshot() (Provider, RetryConfig, []VerificationListener, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	listeners := make([]VerificationListener, len(e.listeners))
	copy(listeners, e.listeners)
	return e.provider, e.retry, listeners, e.verifyAfter
}

// ValidateBurnRequest returns the first validation failure of req, if any.
func ValidateBurnRequest(req BurnRequest) error {
	switch {
	case req.UserID == "":
		return errutil.ValidationFailed("User ID is required", nil)
	case !req.Amount.IsPositive():
		return errutil.ValidationFailed("Burn amount must be greater than 0", nil)
	case !req.TransactionType.Valid():
		return errutil.ValidationFailed("Invalid transaction type", nil)
	case req.Reason == "":
		return errutil.ValidationFailed("Reason is required", nil)
	}
	return nil
}

func (e *Executor) failed(err error) *Result {
	msg := err.Error()
	var be errutil.BaseError
	if errors.As(err, &be) && be.Err == nil {
		msg = be.Message
	}
	return &Result{
		Success:   false,
		Status:    token.StatusFailed,
		Error:     msg,
		Timestamp: e.now(),
	}
}

// ExecuteBurn validates req and submits it, retrying provider errors. Failures
// are reported in the result, never as an error.
func (e *Executor) ExecuteBurn(ctx context.Context, req BurnRequest) *Result {
	ctx, span := tracer.Start(ctx, "chain.ExecuteBurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("transaction_type", req.TransactionType.String()),
	)

	zapLog := logger.FromContext(ctx).With(
		zap.String("user_id", req.UserID),
		zap.String("transaction_type", req.TransactionType.String()),
		zap.String("amount", req.Amount.String()),
	)

	if err := ValidateBurnRequest(req); err != nil {
		zapLog.Warn("invalid burn request", zap.Error(err))
		return e.failed(err)
	}

	p, retry, _, _ := e.snapshot()
	if p == nil {
		return e.failed(ErrNoProvider)
	}

	var receipt *Receipt
	err := e.withRetry(ctx, retry, opExecuteBurn, func(ctx context.Context) error {
		r, err := p.ExecuteBurn(ctx, req)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		zapLog.Error("burn execution failed", zap.Error(err))
		return e.failed(err)
	}

	zapLog.Info("burn executed",
		zap.String("tx_hash", receipt.TransactionHash),
		zap.String("status", string(receipt.Status)),
	)

	return &Result{
		Success:         true,
		TransactionHash: receipt.TransactionHash,
		Status:          receipt.Status,
		Timestamp:       e.now(),
	}
}

// ExecutePurchase submits a system buy order with the same retry policy.
func (e *Executor) ExecutePurchase(ctx context.Context, req PurchaseRequest) *Result {
	ctx, span := tracer.Start(ctx, "chain.ExecutePurchase")
	defer span.End()

	zapLog := logger.FromContext(ctx).With(
		zap.String("reference", req.Reference),
		zap.String("spend", req.Spend.String()),
	)

	if !req.Spend.IsPositive() || !req.PricePerToken.IsPositive() {
		return e.failed(errutil.ValidationFailed("Purchase amount and price must be greater than 0", nil))
	}

	p, retry, _, _ := e.snapshot()
	if p == nil {
		return e.failed(ErrNoProvider)
	}

	var receipt *Receipt
	err := e.withRetry(ctx, retry, opExecutePurchase, func(ctx context.Context) error {
		r, err := p.ExecutePurchase(ctx, req)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		zapLog.Error("purchase execution failed", zap.Error(err))
		return e.failed(err)
	}

	zapLog.Info("purchase executed", zap.String("tx_hash", receipt.TransactionHash))
	return &Result{
		Success:         true,
		TransactionHash: receipt.TransactionHash,
		Status:          receipt.Status,
		Timestamp:       e.now(),
	}
}

// VerifyTransaction queries the status of txHash, retrying provider errors.
func (e *Executor) VerifyTransaction(ctx context.Context, txHash string) (token.BlockchainStatus, error) {
	ctx, span := tracer.Start(ctx, "chain.VerifyTransaction")
	defer span.End()

	if txHash == "" {
		return "", errutil.ValidationFailed("Transaction hash is required", nil)
	}

	p, retry, _, _ := e.snapshot()
	if p == nil {
		return "", ErrNoProvider
	}

	var status token.BlockchainStatus
	err := e.withRetry(ctx, retry, opVerify, func(ctx context.Context) error {
		s, err := p.VerifyTransaction(ctx, txHash)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		return "", errutil.BadGateway("verify transaction failed", err)
	}
	return status, nil
}

func (e *Executor) GetGasEstimate(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	p, _, _, _ := e.snapshot()
	if p == nil {
		return decimal.Zero, ErrNoProvider
	}
	gas, err := p.GetGasEstimate(ctx, amount)
	if err != nil {
		return decimal.Zero, errutil.BadGateway("gas estimate failed", err)
	}
	return gas, nil
}

func (e *Executor) SignTransaction(ctx context.Context, data []byte) (string, error) {
	p, _, _, _ := e.snapshot()
	if p == nil {
		return "", ErrNoProvider
	}
	return p.SignTransaction(ctx, data)
}

// VerifyTransactionSignature re-signs data and compares in constant time.
func (e *Executor) VerifyTransactionSignature(ctx context.Context, data []byte, signature string) (bool, error) {
	expected, err := e.SignTransaction(ctx, data)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1, nil
}

func (e *Executor) withRetry(ctx context.Context, retry RetryConfig, op string, fn func(context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		metrics.ChainAttempts.WithLabelValues(op).Inc()
		return fn(ctx)
	}, retry.backOff(ctx), func(err error, next time.Duration) {
		metrics.ChainRetries.WithLabelValues(op).Inc()
		logger.FromContext(ctx).Warn("blockchain call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", next),
			zap.Error(err),
		)
	})
	if err != nil {
		metrics.ChainFailures.WithLabelValues(op).Inc()
		return fmt.Errorf("%s after %d attempt(s): %w", op, attempt, err)
	}
	return nil
}

// ScheduleVerification verifies txHash in the background and reports the
// outcome to the registered listeners. Callers invoke it once the hash is
// stored, so listeners can find the record. It reports whether a verification
// was scheduled.
func (e *Executor) ScheduleVerification(txHash string) bool {
	_, _, listeners, verifyAfter := e.snapshot()
	if !verifyAfter || len(listeners) == 0 || txHash == "" {
		return false
	}
	e.scheduleVerification(txHash, listeners)
	return true
}

func (e *Executor) scheduleVerification(txHash string, listeners []VerificationListener) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.verifyTimeout)
		defer cancel()

		status, err := e.VerifyTransaction(ctx, txHash)
		if err != nil {
			zap.L().Warn("post-execution verification failed", zap.String("tx_hash", txHash), zap.Error(err))
			return
		}
		for _, l := range listeners {
			if err := l.HandleVerified(ctx, txHash, status); err != nil {
				zap.L().Warn("verification listener failed", zap.String("tx_hash", txHash), zap.Error(err))
			}
		}
	}()
}

// Wait blocks until scheduled verifications have finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}
