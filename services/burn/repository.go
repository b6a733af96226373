package burn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smallbiznis-tokenomics/pkg/db/option"
	"smallbiznis-tokenomics/pkg/db/pagination"
	"smallbiznis-tokenomics/pkg/errutil"
	"smallbiznis-tokenomics/pkg/repository"
	"smallbiznis-tokenomics/services/token"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateParams struct {
	Reference       string
	UserID          string
	Amount          decimal.Decimal
	BurnRate        decimal.Decimal
	BurnedAmount    decimal.Decimal
	TransactionType token.TransactionType
	Reason          string
	Metadata        map[string]any
}

type HistoryFilter struct {
	UserID          string
	TransactionType token.TransactionType
	Status          token.BlockchainStatus
	StartDate       *time.Time
	EndDate         *time.Time
	Pagination      pagination.Pagination
}

type HistoryPage struct {
	Transactions []*BurnTransaction `json:"transactions"`
	Total        int64              `json:"total"`
	Page         int                `json:"page"`
	Limit        int                `json:"limit"`
	TotalBurned  decimal.Decimal    `json:"total_burned"`
}

type Statistics struct {
	TotalBurned               decimal.Decimal                           `json:"total_burned"`
	BurnsByType               map[token.TransactionType]decimal.Decimal `json:"burns_by_type"`
	AverageBurnPerTransaction decimal.Decimal                           `json:"average_burn_per_transaction"`
	TransactionCount          int64                                     `json:"transaction_count"`
	SuccessRate               float64                                   `json:"success_rate"`
}

// Repository persists burn transactions and the token supply singleton.
type Repository interface {
	// Transaction runs fn against a repository bound to one DB transaction.
	Transaction(ctx context.Context, fn func(Repository) error) error

	CreateBurnTransaction(ctx context.Context, p CreateParams) (*BurnTransaction, error)
	GetBurnTransaction(ctx context.Context, id string) (*BurnTransaction, error)
	FindByTxHash(ctx context.Context, txHash string) (*BurnTransaction, error)
	UpdateBurnTransactionHash(ctx context.Context, id, txHash string, status token.BlockchainStatus) (*BurnTransaction, error)
	ListByStatus(ctx context.Context, status token.BlockchainStatus, createdBefore time.Time) ([]*BurnTransaction, error)
	GetBurnHistory(ctx context.Context, f HistoryFilter) (*HistoryPage, error)
	GetBurnStatistics(ctx context.Context) (*Statistics, error)
	VerifyChain(ctx context.Context) (bool, error)

	GetTokenSupply(ctx context.Context) (*TokenSupply, error)
	UpdateTokenSupply(ctx context.Context, total, circulating, burned decimal.Decimal) (*TokenSupply, error)
	ApplyBurn(ctx context.Context, seedTotal, delta decimal.Decimal) (*TokenSupply, error)
}

type gormRepository struct {
	db     *gorm.DB
	node   *snowflake.Node
	burns  repository.Repository[BurnTransaction]
	supply repository.Repository[TokenSupply]
	now    func() time.Time
}

func NewRepository(db *gorm.DB, node *snowflake.Node) Repository {
	return &gormRepository{
		db:     db,
		node:   node,
		burns:  repository.ProvideStore[BurnTransaction](db),
		supply: repository.ProvideStore[TokenSupply](db),
		now:    time.Now,
	}
}

func (r *gormRepository) withTx(tx *gorm.DB) *gormRepository {
	return &gormRepository{
		db:     tx,
		node:   r.node,
		burns:  r.burns.WithTrx(tx),
		supply: r.supply.WithTrx(tx),
		now:    r.now,
	}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(Repository) error) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.withTx(tx))
	})
}

func (r *gormRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *gormRepository) CreateBurnTransaction(ctx context.Context, p CreateParams) (*BurnTransaction, error) {
	var metadata datatypes.JSON
	if len(p.Metadata) > 0 {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid metadata", err)
		}
		metadata = raw
	}

	var created *BurnTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		burns := r.burns.WithTrx(tx)

		head, err := lockChainHead(ctx, tx, r.timestamp())
		if err != nil {
			return err
		}
		previous := head.Hash

		now := r.timestamp()
		bt := &BurnTransaction{
			ID:               r.node.Generate().String(),
			Reference:        p.Reference,
			UserID:           p.UserID,
			Amount:           p.Amount,
			BurnRate:         p.BurnRate,
			BurnedAmount:     p.BurnedAmount,
			TransactionType:  p.TransactionType,
			Reason:           p.Reason,
			BlockchainStatus: token.StatusPending,
			Metadata:         metadata,
			PreviousHash:     previous,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		bt.Hash = bt.GenerateHash()

		if err := burns.Create(ctx, bt); err != nil {
			return err
		}
		moved := tx.WithContext(ctx).Model(&ChainHead{}).
			Where("id = ? AND hash = ?", chainHeadID, previous).
			Updates(map[string]any{
				"hash":       bt.Hash,
				"entries":    gorm.Expr("entries + 1"),
				"updated_at": now,
			})
		if moved.Error != nil {
			return moved.Error
		}
		if moved.RowsAffected != 1 {
			return errors.New("burn chain head moved concurrently")
		}
		created = bt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create burn transaction: %w", err)
	}
	return created, nil
}

// lockChainHead locks the chain head for the rest of tx. The head is touched
// with an UPDATE before it is read, so the read sees the latest committed hash
// once the lock is granted. A missing head is seeded from the newest record.
func lockChainHead(ctx context.Context, tx *gorm.DB, now time.Time) (*ChainHead, error) {
	tx = tx.WithContext(ctx)

	touched := tx.Model(&ChainHead{}).Where("id = ?", chainHeadID).Update("updated_at", now)
	if touched.Error != nil {
		return nil, fmt.Errorf("lock chain head: %w", touched.Error)
	}

	if touched.RowsAffected == 0 {
		var tails []*BurnTransaction
		if err := tx.Order("created_at DESC").Order("id DESC").Limit(1).Find(&tails).Error; err != nil {
			return nil, fmt.Errorf("find chain tail: %w", err)
		}
		seed := &ChainHead{ID: chainHeadID, Hash: genesisHash, UpdatedAt: now}
		if len(tails) > 0 {
			seed.Hash = tails[0].Hash
			if err := tx.Model(&BurnTransaction{}).Count(&seed.Entries).Error; err != nil {
				return nil, fmt.Errorf("count chain entries: %w", err)
			}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return nil, fmt.Errorf("seed chain head: %w", err)
		}
	}

	var head ChainHead
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", chainHeadID).
		Take(&head).Error
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	return &head, nil
}

func (r *gormRepository) GetBurnTransaction(ctx context.Context, id string) (*BurnTransaction, error) {
	bt, err := r.burns.FindOne(ctx, &BurnTransaction{ID: id})
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, ErrBurnTransactionNotFound
	}
	return bt, nil
}

func (r *gormRepository) FindByTxHash(ctx context.Context, txHash string) (*BurnTransaction, error) {
	bt, err := r.burns.FindOne(ctx, &BurnTransaction{BlockchainTxHash: &txHash})
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, ErrBurnTransactionNotFound
	}
	return bt, nil
}

// UpdateBurnTransactionHash moves a record forward in its lifecycle. Terminal
// records and backward moves are rejected with a conflict.
func (r *gormRepository) UpdateBurnTransactionHash(ctx context.Context, id, txHash string, status token.BlockchainStatus) (*BurnTransaction, error) {
	var updated *BurnTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		burns := r.burns.WithTrx(tx)

		current, err := burns.FindOne(ctx, &BurnTransaction{ID: id}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if current == nil {
			return ErrBurnTransactionNotFound
		}
		if !current.BlockchainStatus.CanTransition(status) {
			return errutil.Conflict("invalid blockchain status transition", nil, errutil.WithDetails(
				errutil.Detail{Field: "from", Message: string(current.BlockchainStatus)},
				errutil.Detail{Field: "to", Message: string(status)},
			))
		}

		changes := map[string]any{
			"blockchain_status": status,
			"updated_at":        r.timestamp(),
		}
		if txHash != "" {
			changes["blockchain_tx_hash"] = txHash
		}

		// guard on the previous status so a concurrent writer cannot be overwritten
		res := tx.WithContext(ctx).Model(&BurnTransaction{}).
			Where("id = ? AND blockchain_status = ?", id, current.BlockchainStatus).
			Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStatusTransition
		}

		updated, err = burns.FindOne(ctx, &BurnTransaction{ID: id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *gormRepository) ListByStatus(ctx context.Context, status token.BlockchainStatus, createdBefore time.Time) ([]*BurnTransaction, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
	}
	if !createdBefore.IsZero() {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LT,
			Value:    createdBefore.UTC(),
		}))
	}
	return r.burns.Find(ctx, &BurnTransaction{BlockchainStatus: status}, opts...)
}

func (f HistoryFilter) options() []option.QueryOption {
	var opts []option.QueryOption
	if f.StartDate != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: f.StartDate.UTC()}))
	}
	if f.EndDate != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LTE, Value: f.EndDate.UTC()}))
	}
	return opts
}

func (f HistoryFilter) query() *BurnTransaction {
	return &BurnTransaction{
		UserID:           f.UserID,
		TransactionType:  f.TransactionType,
		BlockchainStatus: f.Status,
	}
}

type sumRow struct {
	Total decimal.NullDecimal
}

func (r *gormRepository) GetBurnHistory(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	page := f.Pagination.Normalize()
	query := f.query()
	filters := f.options()

	total, err := r.burns.Count(ctx, query, filters...)
	if err != nil {
		return nil, fmt.Errorf("count burn history: %w", err)
	}

	var sum sumRow
	q := r.db.WithContext(ctx).Model(&BurnTransaction{}).Where(query)
	for _, opt := range filters {
		q = opt(q)
	}
	if err := q.Select("SUM(burned_amount) AS total").Scan(&sum).Error; err != nil {
		return nil, fmt.Errorf("sum burn history: %w", err)
	}

	opts := append(filters,
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.ApplyPagination(page),
	)
	txs, err := r.burns.Find(ctx, query, opts...)
	if err != nil {
		return nil, fmt.Errorf("list burn history: %w", err)
	}

	totalBurned := decimal.Zero
	if sum.Total.Valid {
		totalBurned = sum.Total.Decimal
	}

	return &HistoryPage{
		Transactions: txs,
		Total:        total,
		Page:         page.Page,
		Limit:        page.Limit,
		TotalBurned:  totalBurned,
	}, nil
}

type typeStatRow struct {
	TransactionType token.TransactionType
	Burned          decimal.NullDecimal
	Count           int64
}

// GetBurnStatistics aggregates confirmed burns. TransactionCount covers every
// record, AverageBurnPerTransaction is TotalBurned/TransactionCount and
// SuccessRate is confirmed/total.
func (r *gormRepository) GetBurnStatistics(ctx context.Context) (*Statistics, error) {
	var rows []typeStatRow
	err := r.db.WithContext(ctx).Model(&BurnTransaction{}).
		Select("transaction_type, SUM(burned_amount) AS burned, COUNT(*) AS count").
		Where("blockchain_status = ?", token.StatusConfirmed).
		Group("transaction_type").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("burn statistics: %w", err)
	}

	total, err := r.burns.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("count burns: %w", err)
	}

	stats := &Statistics{
		TotalBurned:               decimal.Zero,
		BurnsByType:               map[token.TransactionType]decimal.Decimal{},
		AverageBurnPerTransaction: decimal.Zero,
		TransactionCount:          total,
	}
	for _, t := range token.TransactionTypes {
		stats.BurnsByType[t] = decimal.Zero
	}

	var confirmed int64
	for _, row := range rows {
		burned := decimal.Zero
		if row.Burned.Valid {
			burned = row.Burned.Decimal
		}
		stats.BurnsByType[row.TransactionType] = burned
		stats.TotalBurned = stats.TotalBurned.Add(burned)
		confirmed += row.Count
	}

	if total > 0 {
		stats.AverageBurnPerTransaction = stats.TotalBurned.Div(decimal.NewFromInt(total))
		stats.SuccessRate = float64(confirmed) / float64(total)
	}
	return stats, nil
}

// VerifyChain recomputes every audit hash in creation order.
func (r *gormRepository) VerifyChain(ctx context.Context) (bool, error) {
	var txs []*BurnTransaction
	err := r.db.WithContext(ctx).Model(&BurnTransaction{}).
		Order("created_at ASC").Order("id ASC").
		Find(&txs).Error
	if err != nil {
		return false, err
	}

	previous := genesisHash
	for _, bt := range txs {
		if bt.PreviousHash != previous || bt.GenerateHash() != bt.Hash {
			return false, nil
		}
		previous = bt.Hash
	}
	return true, nil
}

func (r *gormRepository) GetTokenSupply(ctx context.Context) (*TokenSupply, error) {
	return r.supply.FindOne(ctx, &TokenSupply{ID: SupplyID})
}

// UpdateTokenSupply upserts the singleton. The caller supplies the whole
// triple, which must satisfy total = circulating + burned.
func (r *gormRepository) UpdateTokenSupply(ctx context.Context, total, circulating, burned decimal.Decimal) (*TokenSupply, error) {
	s := &TokenSupply{
		ID:                SupplyID,
		TotalSupply:       total,
		CirculatingSupply: circulating,
		BurnedSupply:      burned,
		LastUpdated:       r.timestamp(),
	}
	if total.IsNegative() || circulating.IsNegative() || burned.IsNegative() || !s.Consistent() {
		return nil, supplyInvariantViolation(s)
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_supply", "circulating_supply", "burned_supply", "last_updated"}),
	}).Create(s).Error
	if err != nil {
		return nil, fmt.Errorf("upsert token supply: %w", err)
	}
	return s, nil
}

// ApplyBurn adds delta to the burned supply with a single additive UPDATE and
// recomputes circulating from the totals. A missing singleton is seeded with
// seedTotal and nothing burned. The post-write state is checked before commit.
func (r *gormRepository) ApplyBurn(ctx context.Context, seedTotal, delta decimal.Decimal) (*TokenSupply, error) {
	if delta.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var out *TokenSupply
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.timestamp()

		res := tx.Exec(
			"UPDATE token_supplies SET circulating_supply = total_supply - (burned_supply + ?), burned_supply = burned_supply + ?, last_updated = ? WHERE id = ?",
			delta, delta, now, SupplyID,
		)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			seed := &TokenSupply{
				ID:                SupplyID,
				TotalSupply:       seedTotal,
				CirculatingSupply: seedTotal.Sub(delta),
				BurnedSupply:      delta,
				LastUpdated:       now,
			}
			created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected == 0 {
				// lost the seeding race; the row exists now
				if err := tx.Exec(
					"UPDATE token_supplies SET circulating_supply = total_supply - (burned_supply + ?), burned_supply = burned_supply + ?, last_updated = ? WHERE id = ?",
					delta, delta, now, SupplyID,
				).Error; err != nil {
					return err
				}
			}
		}

		current, err := r.supply.WithTrx(tx).FindOne(ctx, &TokenSupply{ID: SupplyID})
		if err != nil {
			return err
		}
		if current == nil {
			return errors.New("token supply missing after update")
		}
		if !current.Consistent() || current.CirculatingSupply.IsNegative() {
			return supplyInvariantViolation(current)
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
