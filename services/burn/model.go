package burn

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"smallbiznis-tokenomics/services/token"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	// SupplyID is the primary key of the token supply singleton.
	SupplyID = "global"

	genesisHash = "GENESIS"

	// chainHeadID is the primary key of the audit chain head row.
	chainHeadID = "burn_transactions"
)

type BurnTransaction struct {
	ID               string                 `gorm:"column:id;primaryKey;size:32" json:"id"`
	Reference        string                 `gorm:"column:reference;size:32;index" json:"reference"`
	UserID           string                 `gorm:"column:user_id;size:64;not null;index" json:"user_id"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:decimal(36,18);not null" json:"amount"`
	BurnRate         decimal.Decimal        `gorm:"column:burn_rate;type:decimal(10,8);not null" json:"burn_rate"`
	BurnedAmount     decimal.Decimal        `gorm:"column:burned_amount;type:decimal(36,18);not null" json:"burned_amount"`
	TransactionType  token.TransactionType  `gorm:"column:transaction_type;size:32;not null;index" json:"transaction_type"`
	Reason           string                 `gorm:"column:reason;not null" json:"reason"`
	BlockchainTxHash *string                `gorm:"column:blockchain_tx_hash;size:80;index" json:"blockchain_tx_hash,omitempty"`
	BlockchainStatus token.BlockchainStatus `gorm:"column:blockchain_status;size:16;not null;index" json:"blockchain_status"`
	Metadata         datatypes.JSON         `gorm:"column:metadata" json:"metadata,omitempty"`
	PreviousHash     string                 `gorm:"column:previous_hash;size:64" json:"previous_hash"`
	Hash             string                 `gorm:"column:hash;size:64" json:"hash"`
	CreatedAt        time.Time              `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"column:updated_at" json:"updated_at"`
}

func (BurnTransaction) TableName() string { return "burn_transactions" }

func (m *BurnTransaction) NetAmount() decimal.Decimal {
	return m.Amount.Sub(m.BurnedAmount)
}

// HashFields are the immutable fields covered by the audit hash.
func (m *BurnTransaction) HashFields() map[string]string {
	return map[string]string{
		"id":               m.ID,
		"user_id":          m.UserID,
		"amount":           m.Amount.String(),
		"burn_rate":        m.BurnRate.String(),
		"burned_amount":    m.BurnedAmount.String(),
		"transaction_type": string(m.TransactionType),
		"reason":           m.Reason,
		"created_at":       m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":    m.PreviousHash,
	}
}

func (m *BurnTransaction) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type TokenSupply struct {
	ID                string          `gorm:"column:id;primaryKey;size:16" json:"-"`
	TotalSupply       decimal.Decimal `gorm:"column:total_supply;type:decimal(36,18);not null" json:"total_supply"`
	CirculatingSupply decimal.Decimal `gorm:"column:circulating_supply;type:decimal(36,18);not null" json:"circulating_supply"`
	BurnedSupply      decimal.Decimal `gorm:"column:burned_supply;type:decimal(36,18);not null" json:"burned_supply"`
	LastUpdated       time.Time       `gorm:"column:last_updated" json:"last_updated"`
}

func (TokenSupply) TableName() string { return "token_supplies" }

// Consistent reports whether total = circulating + burned.
func (s *TokenSupply) Consistent() bool {
	return s.TotalSupply.Equal(s.CirculatingSupply.Add(s.BurnedSupply))
}

// ChainHead holds the hash of the newest burn record. Appends lock this row, so
// concurrent writers extend the audit chain one at a time.
type ChainHead struct {
	ID        string    `gorm:"column:id;primaryKey;size:32"`
	Hash      string    `gorm:"column:hash;size:64;not null"`
	Entries   int64     `gorm:"column:entries;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ChainHead) TableName() string { return "burn_chain_heads" }

// Models lists the tables owned by this package.
func Models() []any {
	return []any{&BurnTransaction{}, &TokenSupply{}, &ChainHead{}}
}
