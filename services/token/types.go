// Package token holds the vocabulary shared by the burn, chain, leaderboard
// and buy order services.
package token

type TransactionType string

const (
	CourseSale         TransactionType = "COURSE_SALE"
	EarningsWithdrawal TransactionType = "EARNINGS_WITHDRAWAL"
	TokenRedemption    TransactionType = "TOKEN_REDEMPTION"
)

// TransactionTypes lists every burnable transaction type in rate-table order.
var TransactionTypes = []TransactionType{CourseSale, EarningsWithdrawal, TokenRedemption}

func (t TransactionType) Valid() bool {
	switch t {
	case CourseSale, EarningsWithdrawal, TokenRedemption:
		return true
	}
	return false
}

func (t TransactionType) String() string { return string(t) }

type BlockchainStatus string

const (
	StatusPending    BlockchainStatus = "PENDING"
	StatusProcessing BlockchainStatus = "PROCESSING"
	StatusConfirmed  BlockchainStatus = "CONFIRMED"
	StatusFailed     BlockchainStatus = "FAILED"
)

func (s BlockchainStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s BlockchainStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

func (s BlockchainStatus) order() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusConfirmed, StatusFailed:
		return 2
	}
	return -1
}

// CanTransition reports whether a record in status s may move to next.
// Transitions only go forward: PENDING -> PROCESSING -> CONFIRMED|FAILED, and
// PENDING may jump straight to a terminal status.
func (s BlockchainStatus) CanTransition(next BlockchainStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return next.order() > s.order()
}
