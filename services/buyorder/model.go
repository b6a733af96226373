package buyorder

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
)

const DefaultCurrency = "ZAR"

// RevenueTrackingRecord is one fiat inflow available to fund buy orders.
type RevenueTrackingRecord struct {
	ID        string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	Source    string          `gorm:"column:source;size:64;not null;index" json:"source"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	Currency  string          `gorm:"column:currency;size:8;not null" json:"currency"`
	CreatedAt time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (RevenueTrackingRecord) TableName() string { return "revenue_tracking_records" }

type SystemBuyOrderHistoryRecord struct {
	ID              string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	Reference       string          `gorm:"column:reference;size:32;index" json:"reference"`
	RandSpent       decimal.Decimal `gorm:"column:rand_spent;type:decimal(36,18);not null" json:"rand_spent"`
	PricePerToken   decimal.Decimal `gorm:"column:price_per_token;type:decimal(36,18);not null" json:"price_per_token"`
	TokensAcquired  decimal.Decimal `gorm:"column:tokens_acquired;type:decimal(36,18);not null" json:"tokens_acquired"`
	Status          OrderStatus     `gorm:"column:status;size:16;not null;index" json:"status"`
	TransactionHash *string         `gorm:"column:transaction_hash;size:80" json:"transaction_hash,omitempty"`
	Error           string          `gorm:"column:error" json:"error,omitempty"`
	ExecutedAt      time.Time       `gorm:"column:executed_at;index" json:"executed_at"`
}

func (SystemBuyOrderHistoryRecord) TableName() string { return "system_buy_order_histories" }

func Models() []any {
	return []any{
		&RevenueTrackingRecord{},
		&SystemBuyOrderHistoryRecord{},
	}
}
