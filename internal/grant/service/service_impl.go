package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/balancecache"
	"github.com/creditrail/creditrail/internal/clock"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	"github.com/creditrail/creditrail/internal/metrics"
	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"github.com/creditrail/creditrail/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errDuplicateLedgerEntry aborts a grant transaction when the ledger dedupe
// index already holds the entry; the rollback keeps last_granted_at untouched.
var errDuplicateLedgerEntry = errors.New("duplicate_ledger_entry")

const initialGrantDedupeKey = "initial"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Catalog plandomain.Catalog
	Repo    subscriptiondomain.Repository
	Ledger  ledgerdomain.Service
	Cache   *balancecache.Cache `optional:"true"`
	Metrics *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	catalog plandomain.Catalog
	repo    subscriptiondomain.Repository
	ledger  ledgerdomain.Service
	cache   *balancecache.Cache
	metrics *metrics.Metrics
}

func NewService(p Params) grantdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("grant.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		catalog: p.Catalog,
		repo:    p.Repo,
		ledger:  p.Ledger,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

func (s *Service) GrantInitial(ctx context.Context, userID string) (grantdomain.Result, error) {
	parsed, err := parseID(userID, subscriptiondomain.ErrInvalidUser)
	if err != nil {
		return grantdomain.Result{}, err
	}

	plan, err := s.catalog.FreePlan()
	if err != nil {
		return grantdomain.Result{}, err
	}

	var result grantdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountByUserID(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if count > 0 {
			result = grantdomain.Result{Outcome: grantdomain.OutcomeAlreadyInitialized}
			return nil
		}

		now := s.clock.Now()
		subscription := subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			UserID:             parsed,
			PlanCode:           plan.Code,
			Status:             subscriptiondomain.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			LastGrantedAt:      &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}

		amount := plan.InitialAllowance
		if amount <= 0 {
			amount = plan.PeriodicAllowance
		}
		subID := subscription.ID
		inserted, err := s.ledger.AppendTx(ctx, tx, &ledgerdomain.CreditTransaction{
			UserID:         parsed,
			SubscriptionID: &subID,
			Amount:         amount,
			Kind:           ledgerdomain.KindGrantInitial,
			DedupeKey:      initialGrantDedupeKey,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateLedgerEntry
		}

		result = grantdomain.Result{
			Outcome:        grantdomain.OutcomeGranted,
			SubscriptionID: subscription.ID,
			Amount:         amount,
		}
		return nil
	})
	if err != nil {
		// A concurrent signup that won the insert race is equivalent to the
		// user already being initialized.
		if db.IsDuplicateKeyErr(err) || errors.Is(err, errDuplicateLedgerEntry) {
			return grantdomain.Result{Outcome: grantdomain.OutcomeAlreadyInitialized}, nil
		}
		return grantdomain.Result{}, err
	}

	if result.Outcome == grantdomain.OutcomeGranted {
		s.afterGrant(ctx, parsed, ledgerdomain.KindGrantInitial, result.Amount)
	}
	return result, nil
}

func (s *Service) GrantPeriodic(ctx context.Context, subscriptionID string) (grantdomain.Result, error) {
	id, err := parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return grantdomain.Result{}, err
	}

	var result grantdomain.Result
	var userID snowflake.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		userID = subscription.UserID

		result, err = s.grantPeriodicLocked(ctx, tx, subscription)
		return err
	})
	if err != nil {
		if errors.Is(err, errDuplicateLedgerEntry) {
			return s.skip(id, grantdomain.SkipDuplicate), nil
		}
		return grantdomain.Result{}, err
	}

	if result.Outcome == grantdomain.OutcomeGranted {
		s.afterGrant(ctx, userID, ledgerdomain.KindGrantPeriodic, result.Amount)
	}
	return result, nil
}

func (s *Service) ActivatePlan(ctx context.Context, req grantdomain.ActivatePlanRequest) (grantdomain.Result, error) {
	parsed, err := parseID(req.UserID, subscriptiondomain.ErrInvalidUser)
	if err != nil {
		return grantdomain.Result{}, err
	}

	plan, err := s.catalog.Get(strings.TrimSpace(req.PlanCode))
	if err != nil {
		return grantdomain.Result{}, err
	}

	reference := strings.TrimSpace(req.ProviderReference)

	var result grantdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindActiveByUserIDForUpdate(ctx, tx, parsed)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if current != nil {
			if isActivationReplay(current, plan.Code, reference) {
				result = s.skip(current.ID, grantdomain.SkipAlreadyActive)
				return nil
			}

			current.Status = subscriptiondomain.SubscriptionStatusCancelled
			current.CanceledAt = &now
			current.UpdatedAt = now
			if err := s.repo.UpdateLifecycle(ctx, tx, current); err != nil {
				return err
			}
			s.log.Info("subscription superseded by plan change",
				zap.String("subscription_id", current.ID.String()),
				zap.String("old_plan", current.PlanCode),
				zap.String("new_plan", plan.Code),
			)
		}

		subscription := subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			UserID:             parsed,
			PlanCode:           plan.Code,
			Status:             subscriptiondomain.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			LastGrantedAt:      nil,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if reference != "" {
			subscription.ProviderReference = &reference
		}
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}

		// First allowance rides in the same transaction: the nil anchor makes
		// the new row eligible immediately.
		result, err = s.grantPeriodicLocked(ctx, tx, &subscription)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return grantdomain.Result{Outcome: grantdomain.OutcomeSkipped, Reason: grantdomain.SkipAlreadyActive}, nil
		}
		if errors.Is(err, errDuplicateLedgerEntry) {
			return grantdomain.Result{Outcome: grantdomain.OutcomeSkipped, Reason: grantdomain.SkipDuplicate}, nil
		}
		return grantdomain.Result{}, err
	}

	if result.Outcome == grantdomain.OutcomeGranted {
		s.afterGrant(ctx, parsed, ledgerdomain.KindGrantPeriodic, result.Amount)
	}
	return result, nil
}

// grantPeriodicLocked runs the eligibility check, the compare-and-swap on the
// period anchor, and the ledger append inside the caller's transaction.
func (s *Service) grantPeriodicLocked(
	ctx context.Context,
	tx *gorm.DB,
	subscription *subscriptiondomain.Subscription,
) (grantdomain.Result, error) {
	if subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		return s.skip(subscription.ID, grantdomain.SkipInactive), nil
	}

	plan, err := s.catalog.Get(subscription.PlanCode)
	if err != nil {
		return grantdomain.Result{}, err
	}

	now := s.clock.Now()
	if !grantdomain.Eligible(*subscription, plan, now) {
		return s.skip(subscription.ID, grantdomain.SkipNotDue), nil
	}

	advanced, err := s.repo.AdvanceLastGranted(ctx, tx, subscription.ID, subscription.LastGrantedAt, now)
	if err != nil {
		return grantdomain.Result{}, err
	}
	if !advanced {
		s.log.Debug("periodic grant lost the race",
			zap.String("subscription_id", subscription.ID.String()),
		)
		return s.skip(subscription.ID, grantdomain.SkipLostRace), nil
	}

	subID := subscription.ID
	inserted, err := s.ledger.AppendTx(ctx, tx, &ledgerdomain.CreditTransaction{
		UserID:         subscription.UserID,
		SubscriptionID: &subID,
		Amount:         plan.PeriodicAllowance,
		Kind:           ledgerdomain.KindGrantPeriodic,
		DedupeKey:      fmt.Sprintf("period-%d", grantdomain.GrantSequence(*subscription, plan, now)),
	})
	if err != nil {
		return grantdomain.Result{}, err
	}
	if !inserted {
		return grantdomain.Result{}, errDuplicateLedgerEntry
	}

	s.log.Info("periodic grant issued",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("plan", plan.Code),
		zap.Int64("amount", plan.PeriodicAllowance),
		zap.Int("period_index", grantdomain.PeriodIndex(*subscription, plan, now)),
	)
	return grantdomain.Result{
		Outcome:        grantdomain.OutcomeGranted,
		SubscriptionID: subscription.ID,
		Amount:         plan.PeriodicAllowance,
	}, nil
}

func (s *Service) skip(id snowflake.ID, reason string) grantdomain.Result {
	s.metrics.RecordSkip(reason)
	return grantdomain.Result{
		Outcome:        grantdomain.OutcomeSkipped,
		Reason:         reason,
		SubscriptionID: id,
	}
}

func (s *Service) afterGrant(ctx context.Context, userID snowflake.ID, kind ledgerdomain.TransactionKind, amount int64) {
	s.cache.Invalidate(ctx, userID)
	s.metrics.RecordGrant(string(kind), amount)
}

func isActivationReplay(current *subscriptiondomain.Subscription, planCode, reference string) bool {
	if current.PlanCode != planCode {
		return false
	}
	if reference == "" || current.ProviderReference == nil {
		return false
	}
	return *current.ProviderReference == reference
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
