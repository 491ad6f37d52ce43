package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/clock"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&ledgerdomain.CreditTransaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_credit_tx_user_dedupe
		ON credit_transactions (user_id, kind, dedupe_key) WHERE subscription_id IS NULL`).Error; err != nil {
		t.Fatalf("create adjustment index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
	})
	return svc, db, node
}

func TestAppendTxDeduplicates(t *testing.T) {
	svc, db, node := setupLedger(t)
	ctx := context.Background()
	userID := node.Generate()
	subID := node.Generate()

	entry := func() *ledgerdomain.CreditTransaction {
		return &ledgerdomain.CreditTransaction{
			UserID:         userID,
			SubscriptionID: &subID,
			Amount:         200,
			Kind:           ledgerdomain.KindGrantPeriodic,
			DedupeKey:      "period-2",
		}
	}

	inserted, err := svc.AppendTx(ctx, db, entry())
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if !inserted {
		t.Fatal("expected first append to insert")
	}

	inserted, err = svc.AppendTx(ctx, db, entry())
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate append to be suppressed")
	}

	// Same key under a different kind is a distinct entry.
	other := entry()
	other.Kind = ledgerdomain.KindGrantInitial
	inserted, err = svc.AppendTx(ctx, db, other)
	if err != nil {
		t.Fatalf("other kind append: %v", err)
	}
	if !inserted {
		t.Fatal("expected different kind to insert")
	}
}

func TestAppendTxValidation(t *testing.T) {
	svc, db, node := setupLedger(t)
	ctx := context.Background()

	if _, err := svc.AppendTx(ctx, db, &ledgerdomain.CreditTransaction{
		Amount:    100,
		Kind:      ledgerdomain.KindGrantInitial,
		DedupeKey: "initial",
	}); err != ledgerdomain.ErrInvalidUser {
		t.Fatalf("expected invalid_user, got %v", err)
	}

	if _, err := svc.AppendTx(ctx, db, &ledgerdomain.CreditTransaction{
		UserID:    node.Generate(),
		Kind:      ledgerdomain.KindGrantInitial,
		DedupeKey: "initial",
	}); err != ledgerdomain.ErrInvalidAmount {
		t.Fatalf("expected invalid_amount, got %v", err)
	}

	if _, err := svc.AppendTx(ctx, db, &ledgerdomain.CreditTransaction{
		UserID: node.Generate(),
		Amount: 100,
		Kind:   ledgerdomain.KindGrantInitial,
	}); err != ledgerdomain.ErrInvalidDedupeKey {
		t.Fatalf("expected invalid_dedupe_key, got %v", err)
	}
}

func TestBalanceIsLedgerSum(t *testing.T) {
	svc, db, node := setupLedger(t)
	ctx := context.Background()
	userID := node.Generate()
	subID := node.Generate()

	entries := []struct {
		amount int64
		kind   ledgerdomain.TransactionKind
		key    string
	}{
		{200, ledgerdomain.KindGrantInitial, "initial"},
		{200, ledgerdomain.KindGrantPeriodic, "period-2"},
		{-50, ledgerdomain.KindDeduction, "usage-1"},
		{25, ledgerdomain.KindRefund, "refund-1"},
	}
	for _, e := range entries {
		if _, err := svc.AppendTx(ctx, db, &ledgerdomain.CreditTransaction{
			UserID:         userID,
			SubscriptionID: &subID,
			Amount:         e.amount,
			Kind:           e.kind,
			DedupeKey:      e.key,
		}); err != nil {
			t.Fatalf("append %s: %v", e.key, err)
		}
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 375 {
		t.Fatalf("expected 375, got %d", balance)
	}

	// A user with no rows has a zero balance, not an error.
	empty, err := svc.Balance(ctx, node.Generate())
	if err != nil {
		t.Fatalf("empty balance: %v", err)
	}
	if empty != 0 {
		t.Fatalf("expected 0, got %d", empty)
	}
}

func TestCreateAdjustmentIdempotent(t *testing.T) {
	svc, _, node := setupLedger(t)
	ctx := context.Background()
	userID := node.Generate()

	req := ledgerdomain.AdjustmentRequest{
		UserID:    userID.String(),
		Amount:    -100,
		Kind:      ledgerdomain.KindAdjustment,
		DedupeKey: "support-ticket-991",
	}

	applied, err := svc.CreateAdjustment(ctx, req)
	if err != nil {
		t.Fatalf("first adjustment: %v", err)
	}
	if !applied {
		t.Fatal("expected first adjustment applied")
	}

	applied, err = svc.CreateAdjustment(ctx, req)
	if err != nil {
		t.Fatalf("replayed adjustment: %v", err)
	}
	if applied {
		t.Fatal("expected replay suppressed")
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != -100 {
		t.Fatalf("expected -100, got %d", balance)
	}
}

func TestCreateAdjustmentRejectsGrantKinds(t *testing.T) {
	svc, _, node := setupLedger(t)

	_, err := svc.CreateAdjustment(context.Background(), ledgerdomain.AdjustmentRequest{
		UserID:    node.Generate().String(),
		Amount:    500,
		Kind:      ledgerdomain.KindGrantPeriodic,
		DedupeKey: "sneaky",
	})
	if err != ledgerdomain.ErrInvalidKind {
		t.Fatalf("expected invalid_kind, got %v", err)
	}
}

func TestListTransactionsPaginates(t *testing.T) {
	svc, db, node := setupLedger(t)
	ctx := context.Background()
	userID := node.Generate()
	subID := node.Generate()

	for i := 0; i < 5; i++ {
		if _, err := svc.AppendTx(ctx, db, &ledgerdomain.CreditTransaction{
			UserID:         userID,
			SubscriptionID: &subID,
			Amount:         100,
			Kind:           ledgerdomain.KindGrantPeriodic,
			DedupeKey:      "period-" + snowflake.ID(i+2).String(),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	first, err := svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{
		UserID:   userID.String(),
		PageSize: 3,
	})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Transactions) != 3 || !first.HasMore {
		t.Fatalf("expected 3 rows with more, got %d (has_more=%v)", len(first.Transactions), first.HasMore)
	}

	second, err := svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{
		UserID:    userID.String(),
		PageToken: first.NextPageToken,
		PageSize:  3,
	})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Transactions) != 2 || second.HasMore {
		t.Fatalf("expected final 2 rows, got %d (has_more=%v)", len(second.Transactions), second.HasMore)
	}

	// Newest first, no overlap between pages.
	seen := map[snowflake.ID]bool{}
	for _, tx := range append(first.Transactions, second.Transactions...) {
		if seen[tx.ID] {
			t.Fatalf("duplicate row %s across pages", tx.ID)
		}
		seen[tx.ID] = true
	}
}
