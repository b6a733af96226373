package burn

import (
	"context"
	"fmt"

	"smallbiznis-tokenomics/pkg/celengine"
	"smallbiznis-tokenomics/pkg/config"
	"smallbiznis-tokenomics/services/token"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

type ComplianceContext struct {
	UserID          string
	Amount          decimal.Decimal
	BurnedAmount    decimal.Decimal
	TransactionType token.TransactionType
	Metadata        map[string]any
}

func (c ComplianceContext) attributes() map[string]any {
	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"user_id":          c.UserID,
		"amount":           c.Amount.InexactFloat64(),
		"burned_amount":    c.BurnedAmount.InexactFloat64(),
		"transaction_type": string(c.TransactionType),
		"metadata":         metadata,
	}
}

type Decision struct {
	Approved  bool
	Reasoning string
}

// Advisor approves or rejects a burn before it is recorded or sent on chain.
type Advisor interface {
	Evaluate(ctx context.Context, c ComplianceContext) (*Decision, error)
}

type AllowAllAdvisor struct{}

func (AllowAllAdvisor) Evaluate(context.Context, ComplianceContext) (*Decision, error) {
	return &Decision{Approved: true}, nil
}

type denyRule struct {
	expr string
	prg  cel.Program
}

// CELAdvisor rejects a burn when any deny rule evaluates to true.
type CELAdvisor struct {
	rules []denyRule
}

func NewCELAdvisor(rules ...string) (*CELAdvisor, error) {
	env, err := celengine.GetOrBuildEnv(ComplianceContext{}.attributes())
	if err != nil {
		return nil, fmt.Errorf("build compliance env: %w", err)
	}

	a := &CELAdvisor{}
	for _, expr := range rules {
		prg, err := celengine.Compile(env, expr)
		if err != nil {
			return nil, fmt.Errorf("compile deny rule %q: %w", expr, err)
		}
		a.rules = append(a.rules, denyRule{expr: expr, prg: prg})
	}
	return a, nil
}

func (a *CELAdvisor) Evaluate(ctx context.Context, c ComplianceContext) (*Decision, error) {
	attrs := c.attributes()
	for _, r := range a.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deny, err := celengine.Run(r.prg, attrs)
		if err != nil {
			return nil, fmt.Errorf("evaluate deny rule %q: %w", r.expr, err)
		}
		if deny {
			return &Decision{Approved: false, Reasoning: "matched deny rule: " + r.expr}, nil
		}
	}
	return &Decision{Approved: true}, nil
}

// NewAdvisor returns nil when compliance is disabled.
func NewAdvisor(cfg *config.Config) (Advisor, error) {
	c := cfg.Tokens.Compliance
	if !c.Enabled {
		return nil, nil
	}
	if len(c.DenyRules) == 0 {
		return AllowAllAdvisor{}, nil
	}
	return NewCELAdvisor(c.DenyRules...)
}
