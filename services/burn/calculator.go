package burn

import (
	"fmt"
	"sync"

	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/services/token"

	"github.com/shopspring/decimal"
)

// LargeBurnWarningRatio is the share of the balance at which a burn is flagged
// as large by ValidateBurnTransaction.
var LargeBurnWarningRatio = decimal.RequireFromString("0.9")

var hundred = decimal.NewFromInt(100)

type BurnRates struct {
	CourseSale         decimal.Decimal `json:"course_sale"`
	EarningsWithdrawal decimal.Decimal `json:"earnings_withdrawal"`
	TokenRedemption    decimal.Decimal `json:"token_redemption"`
}

func DefaultBurnRates() BurnRates {
	return BurnRates{
		CourseSale:         decimal.RequireFromString("0.05"),
		EarningsWithdrawal: decimal.RequireFromString("0.03"),
		TokenRedemption:    decimal.RequireFromString("0.02"),
	}
}

// BurnRatesFromConfig parses the configured rates, keeping defaults for blanks.
func BurnRatesFromConfig(cfg *config.Config) (BurnRates, error) {
	rates := DefaultBurnRates()
	src := cfg.Tokens.BurnRates
	for _, f := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{src.CourseSale, &rates.CourseSale},
		{src.EarningsWithdrawal, &rates.EarningsWithdrawal},
		{src.TokenRedemption, &rates.TokenRedemption},
	} {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return BurnRates{}, fmt.Errorf("parse burn rate %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return rates, rates.Validate()
}

func (r BurnRates) For(t token.TransactionType) (decimal.Decimal, bool) {
	switch t {
	case token.CourseSale:
		return r.CourseSale, true
	case token.EarningsWithdrawal:
		return r.EarningsWithdrawal, true
	case token.TokenRedemption:
		return r.TokenRedemption, true
	}
	return decimal.Zero, false
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThan(decimal.NewFromInt(1))
}

func (r BurnRates) Validate() error {
	for _, t := range token.TransactionTypes {
		rate, _ := r.For(t)
		if !validRate(rate) {
			return errutil.ValidationFailed("Burn rate must be in [0, 1)", nil,
				errutil.WithDetails(errutil.Detail{Field: string(t), Message: rate.String()}))
		}
	}
	return nil
}

// BurnRatesUpdate is a partial rate table; nil fields are left unchanged.
type BurnRatesUpdate struct {
	CourseSale         *decimal.Decimal
	EarningsWithdrawal *decimal.Decimal
	TokenRedemption    *decimal.Decimal
}

type Calculation struct {
	OriginalAmount  decimal.Decimal       `json:"original_amount"`
	BurnRate        decimal.Decimal       `json:"burn_rate"`
	BurnedAmount    decimal.Decimal       `json:"burned_amount"`
	NetAmount       decimal.Decimal       `json:"net_amount"`
	TransactionType token.TransactionType `json:"transaction_type"`
}

type Item struct {
	Amount          decimal.Decimal
	TransactionType token.TransactionType
}

type Totals struct {
	TotalOriginal decimal.Decimal `json:"total_original"`
	TotalBurned   decimal.Decimal `json:"total_burned"`
	TotalNet      decimal.Decimal `json:"total_net"`
}

type Validation struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Calculator computes burns from a rate table that can be swapped at runtime.
type Calculator struct {
	mu    sync.RWMutex
	rates BurnRates
}

func NewCalculator(rates BurnRates) (*Calculator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{rates: rates}, nil
}

func NewCalculatorFromConfig(cfg *config.Config) (*Calculator, error) {
	rates, err := BurnRatesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewCalculator(rates)
}

func (c *Calculator) rate(t token.TransactionType) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rate, ok := c.rates.For(t)
	if !ok {
		return decimal.Zero, ErrUnknownTransactionType
	}
	return rate, nil
}

func (c *Calculator) CalculateBurn(amount decimal.Decimal, t token.TransactionType) (*Calculation, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	rate, err := c.rate(t)
	if err != nil {
		return nil, err
	}

	burned := amount.Mul(rate)
	return &Calculation{
		OriginalAmount:  amount,
		BurnRate:        rate,
		BurnedAmount:    burned,
		NetAmount:       amount.Sub(burned),
		TransactionType: t,
	}, nil
}

// CalculateReverseBurn finds the original amount that nets to netAmount.
func (c *Calculator) CalculateReverseBurn(netAmount decimal.Decimal, t token.TransactionType) (*Calculation, error) {
	if !netAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	rate, err := c.rate(t)
	if err != nil {
		return nil, err
	}

	original := netAmount.Div(decimal.NewFromInt(1).Sub(rate))
	return &Calculation{
		OriginalAmount:  original,
		BurnRate:        rate,
		BurnedAmount:    original.Sub(netAmount),
		NetAmount:       netAmount,
		TransactionType: t,
	}, nil
}

func (c *Calculator) CalculateBulkBurns(items []Item) ([]*Calculation, error) {
	out := make([]*Calculation, 0, len(items))
	for i, item := range items {
		calc, err := c.CalculateBurn(item.Amount, item.TransactionType)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, calc)
	}
	return out, nil
}

// CalculateTotalBurn sums the per-item calculations without re-rounding.
func (c *Calculator) CalculateTotalBurn(items []Item) (*Totals, error) {
	calcs, err := c.CalculateBulkBurns(items)
	if err != nil {
		return nil, err
	}

	totals := &Totals{TotalOriginal: decimal.Zero, TotalBurned: decimal.Zero, TotalNet: decimal.Zero}
	for _, calc := range calcs {
		totals.TotalOriginal = totals.TotalOriginal.Add(calc.OriginalAmount)
		totals.TotalBurned = totals.TotalBurned.Add(calc.BurnedAmount)
		totals.TotalNet = totals.TotalNet.Add(calc.NetAmount)
	}
	return totals, nil
}

func (c *Calculator) ValidateBurnTransaction(amount decimal.Decimal, t token.TransactionType, balance decimal.Decimal) *Validation {
	v := &Validation{Errors: []string{}, Warnings: []string{}}

	if !amount.IsPositive() {
		v.Errors = append(v.Errors, msgInvalidAmount)
	}
	if balance.LessThan(amount) {
		v.Errors = append(v.Errors, fmt.Sprintf("Insufficient balance: required %s, available %s", amount, balance))
	}
	if _, err := c.rate(t); err != nil {
		v.Errors = append(v.Errors, msgUnknownTransactionType)
	}

	if amount.IsPositive() && balance.IsPositive() && !balance.LessThan(amount) &&
		amount.GreaterThanOrEqual(balance.Mul(LargeBurnWarningRatio)) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Transaction uses %s%% of available balance", amount.Div(balance).Mul(hundred).Round(2)))
	}

	v.IsValid = len(v.Errors) == 0
	return v
}

// CalculatePercentageLoss returns rate*100. The amount does not influence the
// result.
func (c *Calculator) CalculatePercentageLoss(amount decimal.Decimal, t token.TransactionType) (float64, error) {
	rate, err := c.rate(t)
	if err != nil {
		return 0, err
	}
	return rate.Mul(hundred).InexactFloat64(), nil
}

// CalculateEffectivePrice is what the seller actually receives.
func (c *Calculator) CalculateEffectivePrice(amount decimal.Decimal, t token.TransactionType) (decimal.Decimal, error) {
	calc, err := c.CalculateBurn(amount, t)
	if err != nil {
		return decimal.Zero, err
	}
	return calc.NetAmount, nil
}

func (c *Calculator) UpdateBurnRates(u BurnRatesUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.rates
	if u.CourseSale != nil {
		next.CourseSale = *u.CourseSale
	}
	if u.EarningsWithdrawal != nil {
		next.EarningsWithdrawal = *u.EarningsWithdrawal
	}
	if u.TokenRedemption != nil {
		next.TokenRedemption = *u.TokenRedemption
	}
	if err := next.Validate(); err != nil {
		return err
	}
	c.rates = next
	return nil
}

// GetBurnRates returns a copy of the current rate table.
func (c *Calculator) GetBurnRates() BurnRates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rates
}
