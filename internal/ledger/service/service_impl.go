package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/balancecache"
	"github.com/creditrail/creditrail/internal/clock"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/pkg/db"
	"github.com/creditrail/creditrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cache *balancecache.Cache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cache *balancecache.Cache
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
		cache: p.Cache,
	}
}

func (s *Service) AppendTx(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.CreditTransaction) (bool, error) {
	if entry.UserID == 0 {
		return false, ledgerdomain.ErrInvalidUser
	}
	if entry.Amount == 0 {
		return false, ledgerdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(entry.DedupeKey) == "" {
		return false, ledgerdomain.ErrInvalidDedupeKey
	}

	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, user_id, subscription_id, amount, kind, dedupe_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscription_id, kind, dedupe_key) DO NOTHING`,
		entry.ID,
		entry.UserID,
		entry.SubscriptionID,
		entry.Amount,
		string(entry.Kind),
		entry.DedupeKey,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Debug("duplicate ledger write suppressed",
			zap.String("user_id", entry.UserID.String()),
			zap.String("kind", string(entry.Kind)),
			zap.String("dedupe_key", entry.DedupeKey),
		)
		return false, nil
	}
	return true, nil
}

func (s *Service) CreateAdjustment(ctx context.Context, req ledgerdomain.AdjustmentRequest) (bool, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return false, ledgerdomain.ErrInvalidUser
	}
	switch req.Kind {
	case ledgerdomain.KindAdjustment, ledgerdomain.KindDeduction, ledgerdomain.KindRefund:
	default:
		return false, ledgerdomain.ErrInvalidKind
	}

	entry := ledgerdomain.CreditTransaction{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Amount:    req.Amount,
		Kind:      req.Kind,
		DedupeKey: strings.TrimSpace(req.DedupeKey),
	}

	inserted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		inserted, txErr = s.AppendTx(ctx, tx, &entry)
		return txErr
	})
	if err != nil {
		// Rows without a subscription dedupe against the per-user partial
		// index, which surfaces as a unique violation instead of a no-op.
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	if inserted {
		s.cache.Invalidate(ctx, userID)
	}
	return inserted, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}
	if balance, ok := s.cache.Get(ctx, userID); ok {
		return balance, nil
	}

	balance, err := s.BalanceFromLedger(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, userID, balance)
	return balance, nil
}

func (s *Service) BalanceFromLedger(ctx context.Context, userID snowflake.ID) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil || userID == 0 {
		return ledgerdomain.ListTransactionsResponse{}, ledgerdomain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	query := `SELECT id, user_id, subscription_id, amount, kind, dedupe_key, created_at
	 FROM credit_transactions
	 WHERE user_id = ?`
	args := []any{userID}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return ledgerdomain.ListTransactionsResponse{}, err
		}
		query += ` AND id < ?`
		args = append(args, cursorID)
	}

	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, pageSize+1)

	var transactions []ledgerdomain.CreditTransaction
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&transactions).Error; err != nil {
		return ledgerdomain.ListTransactionsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(transactions, pageSize, func(item ledgerdomain.CreditTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(transactions) > pageSize {
		transactions = transactions[:pageSize]
	}

	return ledgerdomain.ListTransactionsResponse{
		PageInfo:     *pageInfo,
		Transactions: transactions,
	}, nil
}
