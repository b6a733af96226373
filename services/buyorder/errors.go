package buyorder

import (
	"smallbiznis-tokenomics/pkg/errutil"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errutil.New(errutil.StatusValidationFailed, "Amount must be greater than 0")
	ErrInvalidPrice        = errutil.New(errutil.StatusValidationFailed, "Price per token must be greater than 0")
	ErrBelowMinimumBuy     = errutil.New(errutil.StatusUnprocessableEntity, "Buy amount below minimum")
	ErrInvalidBuyOrderRule = errutil.New(errutil.StatusValidationFailed, "Invalid buy order settings")
)

func belowMinimum(spend, min decimal.Decimal) error {
	return errutil.UnprocessableEntity("Buy amount below minimum", nil, errutil.WithDetails(
		errutil.Detail{Field: "spend", Message: spend.String()},
		errutil.Detail{Field: "minimum", Message: min.String()},
	))
}
