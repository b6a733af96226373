package burn

import (
	"fmt"
	"sort"

	"smallbiznis-tokenomics/services/token"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var (
	mediumSeverityRate = decimal.RequireFromString("0.03")
	highSeverityRate   = decimal.RequireFromString("0.05")
)

func severityFor(rate decimal.Decimal) Severity {
	switch {
	case rate.GreaterThanOrEqual(highSeverityRate):
		return SeverityHigh
	case rate.GreaterThanOrEqual(mediumSeverityRate):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var typeLabels = map[token.TransactionType]string{
	token.CourseSale:         "course sale",
	token.EarningsWithdrawal: "earnings withdrawal",
	token.TokenRedemption:    "token redemption",
}

type ImpactMessage struct {
	TransactionType token.TransactionType `json:"transaction_type"`
	Headline        string                `json:"headline"`
	Detail          string                `json:"detail"`
	BurnedAmount    decimal.Decimal       `json:"burned_amount"`
	NetAmount       decimal.Decimal       `json:"net_amount"`
	PercentageLoss  float64               `json:"percentage_loss"`
	Severity        Severity              `json:"severity"`
}

// BuildImpactMessage describes what a burn would cost the user before they
// commit to it.
func (c *Calculator) BuildImpactMessage(amount decimal.Decimal, t token.TransactionType) (*ImpactMessage, error) {
	calc, err := c.CalculateBurn(amount, t)
	if err != nil {
		return nil, err
	}
	loss := calc.BurnRate.Mul(hundred)

	return &ImpactMessage{
		TransactionType: t,
		Headline:        fmt.Sprintf("%s%% of this %s is burned permanently", loss.String(), typeLabels[t]),
		Detail: fmt.Sprintf("You send %s tokens, %s are destroyed and %s arrive. Burned tokens reduce the circulating supply for every holder.",
			calc.OriginalAmount.String(), calc.BurnedAmount.String(), calc.NetAmount.String()),
		BurnedAmount:   calc.BurnedAmount,
		NetAmount:      calc.NetAmount,
		PercentageLoss: loss.InexactFloat64(),
		Severity:       severityFor(calc.BurnRate),
	}, nil
}

// CompareOptions builds an impact message per transaction type, cheapest first.
func (c *Calculator) CompareOptions(amount decimal.Decimal) ([]*ImpactMessage, error) {
	out := make([]*ImpactMessage, 0, len(token.TransactionTypes))
	for _, t := range token.TransactionTypes {
		msg, err := c.BuildImpactMessage(amount, t)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BurnedAmount.LessThan(out[j].BurnedAmount)
	})
	return out, nil
}
