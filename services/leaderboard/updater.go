package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"smallbiznis-tokenomics/pkg/db/option"
	"smallbiznis-tokenomics/pkg/logger"
	"smallbiznis-tokenomics/pkg/metrics"
	"smallbiznis-tokenomics/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultTopLimit = 100
	MaxTopLimit     = 1000

	ownershipPlaces  = 4
	percentilePlaces = 2
)

var hundred = decimal.NewFromInt(100)

// SupplySource reports the circulating supply ownership is measured against.
type SupplySource interface {
	GetCirculatingSupply(ctx context.Context) (decimal.Decimal, error)
}

type RankingUpdateResult struct {
	UserID              string  `json:"user_id"`
	NewRank             int     `json:"new_rank"`
	PreviousRank        *int    `json:"previous_rank,omitempty"`
	OwnershipPercentage float64 `json:"ownership_percentage"`
	Changed             bool    `json:"changed"`
}

type RankingInfo struct {
	Rank                int             `json:"rank"`
	OwnershipPercentage float64         `json:"ownership_percentage"`
	TotalSupply         decimal.Decimal `json:"total_supply"`
	UserTokens          decimal.Decimal `json:"user_tokens"`
}

type TopUser struct {
	Rank                int             `json:"rank"`
	UserID              string          `json:"user_id"`
	OwnershipPercentage float64         `json:"ownership_percentage"`
	UserTokens          decimal.Decimal `json:"user_tokens"`
}

type RankingStatistics struct {
	TotalUsers                 int     `json:"total_users"`
	TopOwnershipPercentage     float64 `json:"top_ownership_percentage"`
	AverageOwnershipPercentage float64 `json:"average_ownership_percentage"`
	MedianOwnershipPercentage  float64 `json:"median_ownership_percentage"`
	GiniCoefficient            float64 `json:"gini_coefficient"`
}

type HistoryPoint struct {
	Date                time.Time `json:"date"`
	Rank                int       `json:"rank"`
	OwnershipPercentage float64   `json:"ownership_percentage"`
}

// Updater ranks users by their share of the circulating supply.
type Updater struct {
	db       *gorm.DB
	node     *snowflake.Node
	balances BalanceStore
	supply   SupplySource
	cache    Cache
	entries  repository.Repository[LeaderboardEntry]
	history  repository.Repository[RankingHistory]
	group    singleflight.Group
	now      func() time.Time
}

func NewUpdater(db *gorm.DB, node *snowflake.Node, balances BalanceStore, supply SupplySource, cache Cache) *Updater {
	return &Updater{
		db:       db,
		node:     node,
		balances: balances,
		supply:   supply,
		cache:    cache,
		entries:  repository.ProvideStore[LeaderboardEntry](db),
		history:  repository.ProvideStore[RankingHistory](db),
		now:      time.Now,
	}
}

// OwnershipPercentage returns tokens/supply*100 rounded to 4 places, or zero
// when supply is not positive.
func OwnershipPercentage(tokens, supply decimal.Decimal) decimal.Decimal {
	if !supply.IsPositive() {
		return decimal.Zero
	}
	return tokens.Div(supply).Mul(hundred).Round(ownershipPlaces)
}

func globalEntry() *LeaderboardEntry {
	return &LeaderboardEntry{LeaderboardType: TypeGlobal, Period: PeriodGlobal}
}

type ranked struct {
	userID string
	score  decimal.Decimal
}

// UpdateLeaderboardRankings recomputes every global rank from current balances.
// Ties on ownership are broken by user id ascending.
func (u *Updater) UpdateLeaderboardRankings(ctx context.Context) ([]RankingUpdateResult, error) {
	zapLog := logger.FromContext(ctx)
	start := u.now()
	defer func() {
		metrics.LeaderboardUpdateDuration.Observe(time.Since(start).Seconds())
	}()

	supply, err := u.supply.GetCirculatingSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("get circulating supply: %w", err)
	}
	if !supply.IsPositive() {
		zapLog.Warn("circulating supply is not positive, skipping ranking update", zap.String("supply", supply.String()))
		return []RankingUpdateResult{}, nil
	}

	balances, err := u.balances.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	rows := make([]ranked, 0, len(balances))
	for _, b := range balances {
		rows = append(rows, ranked{userID: b.UserID, score: OwnershipPercentage(b.Balance, supply)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].score.Cmp(rows[j].score); c != 0 {
			return c > 0
		}
		return rows[i].userID < rows[j].userID
	})

	results := make([]RankingUpdateResult, 0, len(rows))
	err = u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries := u.entries.WithTrx(tx)

		existing, err := entries.Find(ctx, globalEntry())
		if err != nil {
			return err
		}
		previous := make(map[string]int, len(existing))
		for _, e := range existing {
			previous[e.UserID] = e.Rank
		}

		now := u.now().UTC()
		upserts := make([]*LeaderboardEntry, 0, len(rows))
		var changes []*RankingHistory
		userIDs := make([]string, 0, len(rows))
		for i, row := range rows {
			rank := i + 1
			res := RankingUpdateResult{
				UserID:              row.userID,
				NewRank:             rank,
				OwnershipPercentage: row.score.InexactFloat64(),
				Changed:             true,
			}
			if prev, ok := previous[row.userID]; ok {
				res.PreviousRank = &prev
				res.Changed = prev != rank
			}
			results = append(results, res)
			userIDs = append(userIDs, row.userID)

			upserts = append(upserts, &LeaderboardEntry{
				ID:              u.node.Generate().String(),
				UserID:          row.userID,
				LeaderboardType: TypeGlobal,
				Period:          PeriodGlobal,
				Rank:            rank,
				Score:           row.score,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if res.Changed {
				changes = append(changes, &RankingHistory{
					ID:                  u.node.Generate().String(),
					UserID:              row.userID,
					Rank:                rank,
					OwnershipPercentage: row.score,
					CirculatingSupply:   supply,
					RecordedAt:          now,
				})
			}
		}

		// users without a balance row drop off the board
		stale := tx.Where("leaderboard_type = ? AND period = ?", TypeGlobal, PeriodGlobal)
		if len(userIDs) > 0 {
			stale = stale.Where("user_id NOT IN ?", userIDs)
		}
		if err := stale.Delete(&LeaderboardEntry{}).Error; err != nil {
			return err
		}

		if len(upserts) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "leaderboard_type"}, {Name: "period"}},
				DoUpdates: clause.AssignmentColumns([]string{"rank", "score", "updated_at"}),
			}).CreateInBatches(upserts, 100).Error
			if err != nil {
				return err
			}
		}

		return u.history.WithTrx(tx).BatchCreate(ctx, changes)
	})
	if err != nil {
		zapLog.Error("failed to update leaderboard rankings", zap.Error(err))
		return nil, err
	}

	if u.cache != nil {
		if err := u.cache.Invalidate(ctx); err != nil {
			zapLog.Warn("failed to invalidate leaderboard cache", zap.Error(err))
		}
	}

	changed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
	}
	zapLog.Info("leaderboard rankings updated",
		zap.Int("total_users_updated", len(results)),
		zap.Int("changed_count", changed),
	)
	return results, nil
}

// GetUserRankingInfo returns nil when the user has no balance or no entry.
func (u *Updater) GetUserRankingInfo(ctx context.Context, userID string) (*RankingInfo, error) {
	balance, err := u.balances.FindBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, nil
	}

	entry, err := u.entries.FindOne(ctx, &LeaderboardEntry{UserID: userID, LeaderboardType: TypeGlobal, Period: PeriodGlobal})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	supply, err := u.supply.GetCirculatingSupply(ctx)
	if err != nil {
		return nil, err
	}

	return &RankingInfo{
		Rank:                entry.Rank,
		OwnershipPercentage: OwnershipPercentage(balance.Balance, supply).InexactFloat64(),
		TotalSupply:         supply,
		UserTokens:          balance.Balance,
	}, nil
}

// GetTopUsersByOwnership serves from the cache when one is configured.
// Concurrent misses for the same page share one database read.
func (u *Updater) GetTopUsersByOwnership(ctx context.Context, limit int) ([]*TopUser, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		limit = MaxTopLimit
	}

	if u.cache != nil {
		users, ok, err := u.cache.GetTop(ctx, limit)
		if err != nil {
			logger.FromContext(ctx).Warn("leaderboard cache read failed", zap.Error(err))
		}
		if ok {
			metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return users, nil
		}
		metrics.LeaderboardCache.WithLabelValues("miss").Inc()
	}

	v, err, _ := u.group.Do(strconv.Itoa(limit), func() (any, error) {
		users, err := u.loadTopUsers(ctx, limit)
		if err != nil {
			return nil, err
		}
		if u.cache != nil {
			if err := u.cache.SetTop(ctx, limit, users); err != nil {
				logger.FromContext(ctx).Warn("leaderboard cache write failed", zap.Error(err))
			}
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*TopUser), nil
}

func (u *Updater) loadTopUsers(ctx context.Context, limit int) ([]*TopUser, error) {
	entries, err := u.entries.Find(ctx, globalEntry(),
		option.WithSortBy(option.QuerySortBy{SortBy: "rank", OrderBy: "asc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	balances, err := u.balances.ListBalancesByUser(ctx, ids)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		byUser[b.UserID] = b.Balance
	}

	users := make([]*TopUser, 0, len(entries))
	for _, e := range entries {
		tokens, ok := byUser[e.UserID]
		if !ok {
			tokens = decimal.Zero
		}
		users = append(users, &TopUser{
			Rank:                e.Rank,
			UserID:              e.UserID,
			OwnershipPercentage: e.Score.InexactFloat64(),
			UserTokens:          tokens,
		})
	}
	return users, nil
}

// GetUserRankingPercentile returns (total - rank) / total * 100 rounded to two
// places, or nil when the user is not ranked.
func (u *Updater) GetUserRankingPercentile(ctx context.Context, userID string) (*float64, error) {
	entry, err := u.entries.FindOne(ctx, &LeaderboardEntry{UserID: userID, LeaderboardType: TypeGlobal, Period: PeriodGlobal})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}

	total, err := u.entries.Count(ctx, globalEntry())
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	p := decimal.NewFromInt(total - int64(entry.Rank)).
		Div(decimal.NewFromInt(total)).
		Mul(hundred).
		Round(percentilePlaces).
		InexactFloat64()
	return &p, nil
}

func (u *Updater) GetRankingStatistics(ctx context.Context) (*RankingStatistics, error) {
	entries, err := u.entries.Find(ctx, globalEntry(),
		option.WithSortBy(option.QuerySortBy{SortBy: "score", OrderBy: "desc"}),
	)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(entries))
	for _, e := range entries {
		scores = append(scores, e.Score.InexactFloat64())
	}
	return rankingStatistics(scores), nil
}

// GetUserRankingHistory lists recorded rank changes over the trailing days,
// oldest first.
func (u *Updater) GetUserRankingHistory(ctx context.Context, userID string, days int) ([]HistoryPoint, error) {
	if days <= 0 {
		days = 30
	}
	since := u.now().UTC().AddDate(0, 0, -days)

	rows, err := u.history.Find(ctx, &RankingHistory{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "recorded_at", Operator: option.GTE, Value: since}),
		option.WithSortBy(option.QuerySortBy{SortBy: "recorded_at", OrderBy: "asc"}),
	)
	if err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, HistoryPoint{
			Date:                r.RecordedAt,
			Rank:                r.Rank,
			OwnershipPercentage: r.OwnershipPercentage.InexactFloat64(),
		})
	}
	return points, nil
}

// RebuildAllRankings clears the global board and recomputes it.
func (u *Updater) RebuildAllRankings(ctx context.Context) ([]RankingUpdateResult, error) {
	zapLog := logger.FromContext(ctx)
	zapLog.Warn("starting full leaderboard rebuild")

	err := u.db.WithContext(ctx).
		Where("leaderboard_type = ? AND period = ?", TypeGlobal, PeriodGlobal).
		Delete(&LeaderboardEntry{}).Error
	if err != nil {
		return nil, fmt.Errorf("clear leaderboard: %w", err)
	}

	results, err := u.UpdateLeaderboardRankings(ctx)
	if err != nil {
		return nil, err
	}
	zapLog.Info("leaderboard rebuild completed", zap.Int("users", len(results)))
	return results, nil
}
