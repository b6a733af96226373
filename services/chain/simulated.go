package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/services/token"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var DefaultGasFactor = decimal.RequireFromString("0.001")

// SimulatedProvider is an in-process ledger. Transaction hashes and signatures
// are keccak256 digests so they look and behave like chain values.
type SimulatedProvider struct {
	mu        sync.Mutex
	key       []byte
	gasFactor decimal.Decimal
	finality  bool
	nonce     uint64
	txs       map[string]token.BlockchainStatus
}

type SimulatedOption func(*SimulatedProvider)

func WithSigningKey(key string) SimulatedOption {
	return func(p *SimulatedProvider) { p.key = []byte(key) }
}

func WithGasFactor(f decimal.Decimal) SimulatedOption {
	return func(p *SimulatedProvider) { p.gasFactor = f }
}

// WithDeferredFinality makes submissions report PROCESSING until the first
// verification, which confirms them.
func WithDeferredFinality() SimulatedOption {
	return func(p *SimulatedProvider) { p.finality = false }
}

func NewSimulatedProvider(opts ...SimulatedOption) *SimulatedProvider {
	p := &SimulatedProvider{
		gasFactor: DefaultGasFactor,
		finality:  true,
		txs:       map[string]token.BlockchainStatus{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *SimulatedProvider) submit(kind string, payload any) (*Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Permanent(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nonce++
	hash := hexutil.Encode(crypto.Keccak256([]byte(kind), body, []byte(fmt.Sprint(p.nonce))))

	status := token.StatusConfirmed
	if !p.finality {
		status = token.StatusProcessing
	}
	p.txs[hash] = status
	return &Receipt{TransactionHash: hash, Status: status}, nil
}

func (p *SimulatedProvider) ExecuteBurn(ctx context.Context, req BurnRequest) (*Receipt, error) {
	return p.submit("burn", map[string]any{
		"user_id":          req.UserID,
		"amount":           req.Amount.String(),
		"transaction_type": req.TransactionType,
		"reason":           req.Reason,
	})
}

func (p *SimulatedProvider) ExecutePurchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	return p.submit("purchase", map[string]any{
		"reference": req.Reference,
		"spend":     req.Spend.String(),
		"price":     req.PricePerToken.String(),
		"tokens":    req.Tokens.String(),
	})
}

func (p *SimulatedProvider) VerifyTransaction(ctx context.Context, txHash string) (token.BlockchainStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.txs[txHash]
	if !ok {
		return "", Permanent(errutil.NotFound("transaction not found", nil))
	}
	if status == token.StatusProcessing {
		status = token.StatusConfirmed
		p.txs[txHash] = status
	}
	return status, nil
}

// Fail marks a known transaction as failed on the simulated chain.
func (p *SimulatedProvider) Fail(txHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txs[txHash]; ok {
		p.txs[txHash] = token.StatusFailed
	}
}

func (p *SimulatedProvider) GetGasEstimate(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	return amount.Mul(p.gasFactor), nil
}

func (p *SimulatedProvider) SignTransaction(ctx context.Context, data []byte) (string, error) {
	return hexutil.Encode(crypto.Keccak256(p.key, data)), nil
}
