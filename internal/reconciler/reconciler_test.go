package reconciler

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
	subscriptionservice "github.com/creditrail/creditrail/internal/subscription/service"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type reconcilerDeps struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	node     *snowflake.Node
	repo     subscriptiondomain.Repository
	grantSvc grantdomain.Service
	ledger   ledgerdomain.Service
}

func setupReconciler(t *testing.T) (*Reconciler, *reconcilerDeps) {
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
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fc,
		Repo:  repo,
	})

	reconciler, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fc,
		Catalog:         catalog,
		Repo:            repo,
		GrantSvc:        grantSvc,
		SubscriptionSvc: subscriptionSvc,
		LedgerSvc:       ledgerSvc,
		Config:          Config{BatchSize: 2},
	})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	return reconciler, &reconcilerDeps{
		db:       db,
		clock:    fc,
		node:     node,
		repo:     repo,
		grantSvc: grantSvc,
		ledger:   ledgerSvc,
	}
}

func TestSweepGrantsMissedPeriods(t *testing.T) {
	reconciler, deps := setupReconciler(t)
	ctx := context.Background()

	// Three free users sign up; batch size 2 forces the sweep to paginate.
	users := make([]snowflake.ID, 3)
	for i := range users {
		users[i] = deps.node.Generate()
		if _, err := deps.grantSvc.GrantInitial(ctx, users[i].String()); err != nil {
			t.Fatalf("signup %d: %v", i, err)
		}
	}

	deps.clock.Advance(31 * 24 * time.Hour)

	if err := reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	for _, userID := range users {
		balance, err := deps.ledger.BalanceFromLedger(ctx, userID)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if balance != 400 {
			t.Fatalf("expected 400 after sweep, got %d for user %s", balance, userID)
		}
	}

	// Re-running in the same period must not grant again.
	if err := reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, userID := range users {
		balance, _ := deps.ledger.BalanceFromLedger(ctx, userID)
		if balance != 400 {
			t.Fatalf("sweep re-run must be idempotent, got %d", balance)
		}
	}
}

func TestSweepExpiresLapsedPaidSubscription(t *testing.T) {
	reconciler, deps := setupReconciler(t)
	ctx := context.Background()
	userID := deps.node.Generate()

	activated, err := deps.grantSvc.ActivatePlan(ctx, grantdomain.ActivatePlanRequest{
		UserID:            userID.String(),
		PlanCode:          "plus",
		ProviderReference: "sub_ext_200",
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}

	// Period (30d) plus grace (72h) elapse with no renewal.
	deps.clock.Advance(34 * 24 * time.Hour)

	if err := reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	sub, err := deps.repo.FindByID(ctx, deps.db, activated.SubscriptionID)
	if err != nil || sub == nil {
		t.Fatalf("find: %v", err)
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusExpired {
		t.Fatalf("expected EXPIRED, got %s", sub.Status)
	}
	if sub.ExpiredAt == nil {
		t.Fatal("expected expired_at stamped")
	}

	// The expired row must not receive the backup grant.
	balance, err := deps.ledger.BalanceFromLedger(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 2000 {
		t.Fatalf("expected only the activation grant, got %d", balance)
	}
}

func TestSweepGrantsPaidWithinGraceWindow(t *testing.T) {
	reconciler, deps := setupReconciler(t)
	ctx := context.Background()
	userID := deps.node.Generate()

	if _, err := deps.grantSvc.ActivatePlan(ctx, grantdomain.ActivatePlanRequest{
		UserID:            userID.String(),
		PlanCode:          "pro",
		ProviderReference: "sub_ext_201",
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// One day past the period boundary, still inside the grace window: the
	// sweep covers the missed renewal webhook instead of expiring.
	deps.clock.Advance(31 * 24 * time.Hour)

	if err := reconciler.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	sub, err := deps.repo.FindActiveByUserID(ctx, deps.db, userID)
	if err != nil || sub == nil {
		t.Fatalf("expected still active, got %v / %v", sub, err)
	}
	balance, err := deps.ledger.BalanceFromLedger(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 12000 {
		t.Fatalf("expected activation plus one sweep grant, got %d", balance)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RunInterval != 24*time.Hour {
		t.Fatalf("unexpected interval %v", cfg.RunInterval)
	}
	if cfg.GraceWindow != 72*time.Hour {
		t.Fatalf("unexpected grace %v", cfg.GraceWindow)
	}
	if cfg.BatchSize != 200 {
		t.Fatalf("unexpected batch size %d", cfg.BatchSize)
	}
	if cfg.JobTimeout != 10*time.Minute {
		t.Fatalf("unexpected timeout %v", cfg.JobTimeout)
	}
}
