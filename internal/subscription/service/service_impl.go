package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/clock"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) GetActiveByUserID(ctx context.Context, userID string) (subscriptiondomain.Subscription, error) {
	parsed, err := parseID(userID, subscriptiondomain.ErrInvalidUser)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindActiveByUserID(ctx, s.db, parsed)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) Transition(
	ctx context.Context,
	subscriptionID string,
	target subscriptiondomain.SubscriptionStatus,
	reason subscriptiondomain.TransitionReason,
) error {
	id, err := parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return err
	}

	if !isValidStatus(target) {
		return subscriptiondomain.ErrInvalidTargetStatus
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if subscription.Status == target {
			return nil
		}

		if !isTransitionAllowed(subscription.Status, target) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		switch target {
		case subscriptiondomain.SubscriptionStatusCancelled:
			subscription.CanceledAt = &now
		case subscriptiondomain.SubscriptionStatusExpired:
			subscription.ExpiredAt = &now
		default:
			return subscriptiondomain.ErrInvalidTargetStatus
		}

		subscription.Status = target
		subscription.UpdatedAt = now

		s.log.Info("subscription transitioned",
			zap.String("subscription_id", subscription.ID.String()),
			zap.String("status", string(target)),
			zap.String("reason", string(reason)),
		)
		return s.repo.UpdateLifecycle(ctx, tx, subscription)
	})
}

func (s *Service) CancelByProviderReference(ctx context.Context, reference string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return subscriptiondomain.ErrInvalidSubscription
	}

	subscription, err := s.repo.FindByProviderReference(ctx, s.db, reference)
	if err != nil {
		return err
	}
	if subscription == nil {
		s.log.Debug("cancellation for unknown provider reference ignored",
			zap.String("provider_reference", reference),
		)
		return nil
	}
	if subscription.Status.Terminal() {
		return nil
	}

	return s.Transition(ctx, subscription.ID.String(),
		subscriptiondomain.SubscriptionStatusCancelled,
		subscriptiondomain.ReasonUserCancelled,
	)
}

func parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}

func isValidStatus(status subscriptiondomain.SubscriptionStatus) bool {
	switch status {
	case subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusCancelled,
		subscriptiondomain.SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}

func isTransitionAllowed(current, target subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusActive:
		return target == subscriptiondomain.SubscriptionStatusCancelled ||
			target == subscriptiondomain.SubscriptionStatusExpired
	default:
		// CANCELLED and EXPIRED are terminal.
		return false
	}
}
