package burn

import (
	"smallbiznis-tokenomics/pkg/errutil"

	"github.com/shopspring/decimal"
)

const (
	msgInvalidAmount          = "Amount must be greater than 0"
	msgUnknownTransactionType = "Unknown transaction type"
)

// Sentinels match with errors.Is on code and message.
var (
	ErrInvalidAmount            = errutil.New(errutil.StatusValidationFailed, msgInvalidAmount)
	ErrUnknownTransactionType   = errutil.New(errutil.StatusValidationFailed, msgUnknownTransactionType)
	ErrInvalidBurnRate          = errutil.New(errutil.StatusValidationFailed, "Burn rate must be in [0, 1)")
	ErrInsufficientBalance      = errutil.New(errutil.StatusUnprocessableEntity, "Insufficient balance")
	ErrBurnTransactionNotFound  = errutil.New(errutil.StatusNotFound, "burn transaction not found")
	ErrInvalidStatusTransition  = errutil.New(errutil.StatusConflict, "invalid blockchain status transition")
	ErrSupplyInvariantViolation = errutil.New(errutil.StatusConflict, "supply invariant violated")
	ErrComplianceRejected       = errutil.New(errutil.StatusForbidden, "burn rejected by compliance")
	ErrBlockchainFailed         = errutil.New(errutil.StatusBadGateway, "blockchain execution failed")
)

func insufficientBalance(required, available decimal.Decimal) error {
	return errutil.UnprocessableEntity("Insufficient balance", nil, errutil.WithDetails(
		errutil.Detail{Field: "required", Message: required.String()},
		errutil.Detail{Field: "available", Message: available.String()},
	))
}

func complianceRejected(reason string) error {
	return errutil.Forbidden("burn rejected by compliance", nil, errutil.WithDetails(
		errutil.Detail{Field: "reason", Message: reason},
	))
}

func supplyInvariantViolation(s *TokenSupply) error {
	return errutil.Conflict("supply invariant violated", nil, errutil.WithDetails(
		errutil.Detail{Field: "total_supply", Message: s.TotalSupply.String()},
		errutil.Detail{Field: "circulating_supply", Message: s.CirculatingSupply.String()},
		errutil.Detail{Field: "burned_supply", Message: s.BurnedSupply.String()},
	))
}
