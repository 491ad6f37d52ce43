// Package reconciler is the safety net behind the event-driven grant paths.
// It sweeps active subscriptions for allowances the webhook or access triggers
// missed, and retires paid subscriptions whose renewal never arrived. Every
// write goes through the same idempotent engine the triggers use, so a sweep
// racing a live trigger can never double-issue.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/balancecache"
	"github.com/creditrail/creditrail/internal/clock"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/internal/metrics"
	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_reconciler_config")

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	Catalog         plandomain.Catalog
	Repo            subscriptiondomain.Repository
	GrantSvc        grantdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
	Cache           *balancecache.Cache `optional:"true"`
	Metrics         *metrics.Metrics    `optional:"true"`
	Config          Config              `optional:"true"`
}

type Reconciler struct {
	db              *gorm.DB
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	catalog         plandomain.Catalog
	repo            subscriptiondomain.Repository
	grantSvc        grantdomain.Service
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
	cache           *balancecache.Cache
	metrics         *metrics.Metrics
}

func New(p Params) (*Reconciler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Catalog == nil || p.Repo == nil || p.GrantSvc == nil || p.SubscriptionSvc == nil || p.LedgerSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Reconciler{
		db:              p.DB,
		log:             p.Log.Named("reconciler").With(zap.String("component", "reconciler")),
		cfg:             p.Config.withDefaults(),
		clock:           p.Clock,
		catalog:         p.Catalog,
		repo:            p.Repo,
		grantSvc:        p.GrantSvc,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
		cache:           p.Cache,
		metrics:         p.Metrics,
	}, nil
}

func (r *Reconciler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, r.cfg.JobTimeout)
	defer cancel()

	err := fn(ctx)
	if r.metrics != nil {
		r.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		r.log.Warn("sweep timed out",
			zap.String("job", name),
			zap.Duration("timeout", r.cfg.JobTimeout),
		)
		return nil
	}
	return err
}

// RunOnce performs one full reconciliation pass. The expiry sweep runs first:
// a paid subscription lapsed beyond the grace window must be retired, not
// handed a backup grant. Per-row failures are joined and reported at the end
// so one bad row never stalls the rest of the sweep.
func (r *Reconciler) RunOnce(parent context.Context) error {
	err := errors.Join(
		r.runJob(parent, "expiry_sweep", r.ExpirySweepJob),
		r.runJob(parent, "grant_sweep", r.GrantSweepJob),
	)
	if r.metrics != nil {
		r.metrics.ReconcilerRuns.Inc()
		if err != nil {
			r.metrics.ReconcilerErrs.Inc()
		}
	}
	return err
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.log.Warn("reconciliation run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GrantSweepJob pages through active subscriptions in id order and re-runs the
// periodic grant for every row whose anchor is at least one period behind.
// Rows a concurrent trigger already served come back as skips.
func (r *Reconciler) GrantSweepJob(ctx context.Context) error {
	now := r.clock.Now()
	var jobErr error
	var afterID snowflake.ID
	granted := 0
	scanned := 0

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		batch, err := r.repo.ListActiveAfterID(ctx, r.db, afterID, r.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		scanned += len(batch)

		for _, subscription := range batch {
			plan, err := r.catalog.Get(subscription.PlanCode)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				r.log.Error("subscription references unknown plan",
					zap.String("subscription_id", subscription.ID.String()),
					zap.String("plan", subscription.PlanCode),
				)
				continue
			}
			if !grantdomain.Eligible(subscription, plan, now) {
				continue
			}

			result, err := r.grantSvc.GrantPeriodic(ctx, subscription.ID.String())
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				r.log.Warn("sweep grant failed",
					zap.String("subscription_id", subscription.ID.String()),
					zap.Error(err),
				)
				continue
			}
			if result.Outcome == grantdomain.OutcomeGranted {
				granted++
				r.repairBalance(ctx, subscription.UserID)
			}
		}
	}

	r.log.Info("grant sweep finished",
		zap.Int("scanned", scanned),
		zap.Int("granted", granted),
	)
	return jobErr
}

// ExpirySweepJob retires paid subscriptions whose renewal is more than the
// grace window overdue. Free subscriptions never expire; they just wait for
// the next access.
func (r *Reconciler) ExpirySweepJob(ctx context.Context) error {
	now := r.clock.Now()
	var jobErr error
	var afterID snowflake.ID
	expired := 0

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		batch, err := r.repo.ListActiveAfterID(ctx, r.db, afterID, r.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		for _, subscription := range batch {
			plan, err := r.catalog.Get(subscription.PlanCode)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				continue
			}
			if plan.Tier != plandomain.TierPaid {
				continue
			}

			overdue := now.Sub(grantdomain.Anchor(subscription))
			if overdue < grantdomain.PeriodLength(plan)+r.cfg.GraceWindow {
				continue
			}

			err = r.subscriptionSvc.Transition(ctx, subscription.ID.String(), subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.ReasonLapsed)
			if err != nil {
				// Terminal already: a cancellation landed between the read and
				// the transition. Nothing to do.
				if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
					continue
				}
				jobErr = errors.Join(jobErr, err)
				r.log.Warn("expiry transition failed",
					zap.String("subscription_id", subscription.ID.String()),
					zap.Error(err),
				)
				continue
			}
			expired++
			r.log.Info("subscription expired after grace window",
				zap.String("subscription_id", subscription.ID.String()),
				zap.String("plan", subscription.PlanCode),
				zap.Duration("overdue", overdue),
			)
		}
	}

	if expired > 0 {
		r.log.Info("expiry sweep finished", zap.Int("expired", expired))
	}
	return jobErr
}

// repairBalance recomputes the cached balance from the ledger after a sweep
// write. The cache is never authoritative, so failures here only cost a later
// cache miss.
func (r *Reconciler) repairBalance(ctx context.Context, userID snowflake.ID) {
	if r.cache == nil {
		return
	}
	balance, err := r.ledgerSvc.BalanceFromLedger(ctx, userID)
	if err != nil {
		r.log.Debug("balance repair failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return
	}
	r.cache.Set(ctx, userID, balance)
}
