package domain

import (
	"context"
	"errors"
)

type TransitionReason string

const (
	ReasonUserCancelled TransitionReason = "user_cancelled"
	ReasonSuperseded    TransitionReason = "superseded_by_plan_change"
	ReasonLapsed        TransitionReason = "renewal_lapsed"
)

type Service interface {
	GetByID(ctx context.Context, id string) (Subscription, error)
	GetActiveByUserID(ctx context.Context, userID string) (Subscription, error)

	// Transition applies the lifecycle state machine: ACTIVE may move to
	// CANCELLED or EXPIRED; terminal states never move again. Transitioning a
	// row to its current status is a no-op.
	Transition(ctx context.Context, subscriptionID string, target SubscriptionStatus, reason TransitionReason) error

	// CancelByProviderReference transitions the row matched by an opaque
	// provider reference. An unknown reference is an idempotent no-op.
	CancelByProviderReference(ctx context.Context, reference string) error
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidTargetStatus  = errors.New("invalid_target_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
