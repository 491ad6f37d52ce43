package access

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/clock"
	"github.com/creditrail/creditrail/internal/config"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	grantservice "github.com/creditrail/creditrail/internal/grant/service"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	ledgerservice "github.com/creditrail/creditrail/internal/ledger/service"
	planservice "github.com/creditrail/creditrail/internal/plan/service"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	subscriptionrepo "github.com/creditrail/creditrail/internal/subscription/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type accessDeps struct {
	clock    *clock.FakeClock
	node     *snowflake.Node
	grantSvc grantdomain.Service
	ledger   ledgerdomain.Service
}

func setupAccess(t *testing.T) (*Service, *accessDeps) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}, &ledgerdomain.CreditTransaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_subscriptions_active_user
		ON subscriptions (user_id) WHERE status = 'ACTIVE'`).Error; err != nil {
		t.Fatalf("create active index: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	catalog, err := planservice.NewCatalog(planservice.Params{Config: config.Config{}, Log: zap.NewNop()})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	repo := subscriptionrepo.Provide()
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
	})
	grantSvc := grantservice.NewService(grantservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fc,
		Catalog: catalog,
		Repo:    repo,
		Ledger:  ledgerSvc,
	})

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Catalog:  catalog,
		Repo:     repo,
		GrantSvc: grantSvc,
	})

	return svc, &accessDeps{clock: fc, node: node, grantSvc: grantSvc, ledger: ledgerSvc}
}

func TestAccessTriggerGrantsFreeTier(t *testing.T) {
	svc, deps := setupAccess(t)
	ctx := context.Background()
	userID := deps.node.Generate()

	if _, err := deps.grantSvc.GrantInitial(ctx, userID.String()); err != nil {
		t.Fatalf("signup: %v", err)
	}

	// Mid-period access does nothing.
	svc.OnAuthenticatedAccess(ctx, userID.String())
	balance, _ := deps.ledger.BalanceFromLedger(ctx, userID)
	if balance != 200 {
		t.Fatalf("expected 200 mid-period, got %d", balance)
	}

	deps.clock.Advance(31 * 24 * time.Hour)

	svc.OnAuthenticatedAccess(ctx, userID.String())
	balance, _ = deps.ledger.BalanceFromLedger(ctx, userID)
	if balance != 400 {
		t.Fatalf("expected 400 after period boundary, got %d", balance)
	}

	// Repeat access in the same period stays flat.
	svc.OnAuthenticatedAccess(ctx, userID.String())
	balance, _ = deps.ledger.BalanceFromLedger(ctx, userID)
	if balance != 400 {
		t.Fatalf("expected no double grant, got %d", balance)
	}
}

func TestAccessTriggerIgnoresPaidTier(t *testing.T) {
	svc, deps := setupAccess(t)
	ctx := context.Background()
	userID := deps.node.Generate()

	if _, err := deps.grantSvc.ActivatePlan(ctx, grantdomain.ActivatePlanRequest{
		UserID:            userID.String(),
		PlanCode:          "plus",
		ProviderReference: "sub_ext_300",
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	deps.clock.Advance(31 * 24 * time.Hour)

	// Paid renewals come from the provider, never from logins.
	svc.OnAuthenticatedAccess(ctx, userID.String())
	balance, _ := deps.ledger.BalanceFromLedger(ctx, userID)
	if balance != 2000 {
		t.Fatalf("expected activation grant only, got %d", balance)
	}
}

func TestAccessTriggerSwallowsBadInput(t *testing.T) {
	svc, deps := setupAccess(t)
	ctx := context.Background()

	// None of these may panic or error; the trigger is best-effort.
	svc.OnAuthenticatedAccess(ctx, "")
	svc.OnAuthenticatedAccess(ctx, "not-a-snowflake")
	svc.OnAuthenticatedAccess(ctx, deps.node.Generate().String()) // no subscription
}
