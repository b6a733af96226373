package chain

import (
	"context"
	"time"

	"smallbiznis-tokenomics/services/token"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
)

type BurnRequest struct {
	UserID          string
	Amount          decimal.Decimal
	TransactionType token.TransactionType
	Reason          string
	Metadata        map[string]any
}

type PurchaseRequest struct {
	Reference     string
	Spend         decimal.Decimal
	PricePerToken decimal.Decimal
	Tokens        decimal.Decimal
}

// Receipt is what a provider reports for a submitted transaction.
type Receipt struct {
	TransactionHash string
	Status          token.BlockchainStatus
}

// Result is the executor's view of one operation after retries.
type Result struct {
	Success         bool                   `json:"success"`
	TransactionHash string                 `json:"transaction_hash,omitempty"`
	Status          token.BlockchainStatus `json:"status"`
	Error           string                 `json:"error,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// Provider talks to the ledger that actually destroys or buys tokens.
type Provider interface {
	ExecuteBurn(ctx context.Context, req BurnRequest) (*Receipt, error)
	ExecutePurchase(ctx context.Context, req PurchaseRequest) (*Receipt, error)
	VerifyTransaction(ctx context.Context, txHash string) (token.BlockchainStatus, error)
	GetGasEstimate(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	SignTransaction(ctx context.Context, data []byte) (string, error)
}

// VerificationListener receives the outcome of post-execution verification.
type VerificationListener interface {
	HandleVerified(ctx context.Context, txHash string, status token.BlockchainStatus) error
}

// Permanent marks a provider error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
