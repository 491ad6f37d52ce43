// Package domain contains the append-only credit ledger model. The ledger is
// the source of truth for balances; rows are never updated or deleted.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionKind classifies ledger entries. Grants are issued by the grant
// engine; deductions and refunds are written by the consumption flows that
// query this ledger.
type TransactionKind string

const (
	KindGrantInitial  TransactionKind = "GRANT_INITIAL"
	KindGrantPeriodic TransactionKind = "GRANT_PERIODIC"
	KindDeduction     TransactionKind = "DEDUCTION"
	KindRefund        TransactionKind = "REFUND"
	KindAdjustment    TransactionKind = "ADJUSTMENT"
)

// CreditTransaction is one immutable ledger row. DedupeKey is the idempotency
// discriminator: unique per (subscription, kind), it makes replayed grant
// writes collapse into a single row at the storage layer.
type CreditTransaction struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	UserID         snowflake.ID    `gorm:"not null;index"`
	SubscriptionID *snowflake.ID   `gorm:"index;uniqueIndex:ux_credit_tx_dedupe,priority:1"`
	Amount         int64           `gorm:"not null"`
	Kind           TransactionKind `gorm:"type:text;not null;uniqueIndex:ux_credit_tx_dedupe,priority:2"`
	DedupeKey      string          `gorm:"type:text;not null;uniqueIndex:ux_credit_tx_dedupe,priority:3"`
	CreatedAt      time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }
