package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListTransactionsRequest struct {
	UserID    string
	PageToken string
	PageSize  int
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []CreditTransaction `json:"transactions"`
}

type AdjustmentRequest struct {
	UserID    string
	Amount    int64
	Kind      TransactionKind
	DedupeKey string
}

type Service interface {
	// AppendTx writes one ledger row inside the caller's transaction using an
	// ON CONFLICT DO NOTHING insert. It reports false when the dedupe key
	// already existed, which callers treat as a duplicate, not an error.
	AppendTx(ctx context.Context, tx *gorm.DB, entry *CreditTransaction) (bool, error)

	// CreateAdjustment appends a standalone signed entry (support tooling,
	// refunds, deductions) in its own transaction.
	CreateAdjustment(ctx context.Context, req AdjustmentRequest) (bool, error)

	// Balance derives the user's balance as the sum of all transaction
	// amounts, consulting the read cache when available.
	Balance(ctx context.Context, userID snowflake.ID) (int64, error)

	// BalanceFromLedger bypasses the cache; the reconciler uses it to repair
	// cached values.
	BalanceFromLedger(ctx context.Context, userID snowflake.ID) (int64, error)

	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidKind      = errors.New("invalid_kind")
	ErrInvalidDedupeKey = errors.New("invalid_dedupe_key")
)
