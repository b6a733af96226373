package leaderboard

import (
	"context"
	"time"

	"smallbiznis-tokenomics/pkg/db/option"
	"smallbiznis-tokenomics/pkg/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceStore reads user balances owned by the wallet service.
type BalanceStore interface {
	ListBalances(ctx context.Context) ([]*TokenBalance, error)
	ListBalancesByUser(ctx context.Context, userIDs []string) ([]*TokenBalance, error)
	FindBalance(ctx context.Context, userID string) (*TokenBalance, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error
}

type gormBalanceStore struct {
	db       *gorm.DB
	balances repository.Repository[TokenBalance]
}

func NewBalanceStore(db *gorm.DB) BalanceStore {
	return &gormBalanceStore{
		db:       db,
		balances: repository.ProvideStore[TokenBalance](db),
	}
}

func (s *gormBalanceStore) ListBalances(ctx context.Context) ([]*TokenBalance, error) {
	return s.balances.Find(ctx, nil, option.WithSortBy(option.QuerySortBy{SortBy: "user_id", OrderBy: "asc"}))
}

func (s *gormBalanceStore) ListBalancesByUser(ctx context.Context, userIDs []string) ([]*TokenBalance, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	return s.balances.Find(ctx, nil, option.ApplyOperator(option.Condition{
		Field:    "user_id",
		Operator: option.IN,
		Value:    userIDs,
	}))
}

// FindBalance returns nil when the user has no balance row.
func (s *gormBalanceStore) FindBalance(ctx context.Context, userID string) (*TokenBalance, error) {
	return s.balances.FindOne(ctx, &TokenBalance{UserID: userID})
}

// GetBalance treats a missing row as a zero balance.
func (s *gormBalanceStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	b, err := s.FindBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if b == nil {
		return decimal.Zero, nil
	}
	return b.Balance, nil
}

func (s *gormBalanceStore) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&TokenBalance{
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}).Error
}
