package leaderboard

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeGlobal   = "GLOBAL"
	PeriodGlobal = "global"
)

type LeaderboardEntry struct {
	ID              string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID          string          `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_leaderboard_user_type_period" json:"user_id"`
	LeaderboardType string          `gorm:"column:leaderboard_type;size:16;not null;uniqueIndex:idx_leaderboard_user_type_period;index:idx_leaderboard_type_period_rank" json:"leaderboard_type"`
	Period          string          `gorm:"column:period;size:16;not null;uniqueIndex:idx_leaderboard_user_type_period;index:idx_leaderboard_type_period_rank" json:"period"`
	Rank            int             `gorm:"column:rank;not null;index:idx_leaderboard_type_period_rank" json:"rank"`
	Score           decimal.Decimal `gorm:"column:score;type:decimal(10,4);not null" json:"score"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (LeaderboardEntry) TableName() string { return "leaderboard_entries" }

// RankingHistory is appended whenever a user's global rank changes.
type RankingHistory struct {
	ID                  string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID              string          `gorm:"column:user_id;size:64;not null;index:idx_ranking_history_user_recorded" json:"user_id"`
	Rank                int             `gorm:"column:rank;not null" json:"rank"`
	OwnershipPercentage decimal.Decimal `gorm:"column:ownership_percentage;type:decimal(10,4);not null" json:"ownership_percentage"`
	CirculatingSupply   decimal.Decimal `gorm:"column:circulating_supply;type:decimal(36,18);not null" json:"circulating_supply"`
	RecordedAt          time.Time       `gorm:"column:recorded_at;index:idx_ranking_history_user_recorded" json:"recorded_at"`
}

func (RankingHistory) TableName() string { return "leaderboard_ranking_histories" }

type TokenBalance struct {
	UserID    string          `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(36,18);not null" json:"balance"`
	UpdatedAt time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (TokenBalance) TableName() string { return "token_balances" }

func Models() []any {
	return []any{&LeaderboardEntry{}, &RankingHistory{}, &TokenBalance{}}
}
