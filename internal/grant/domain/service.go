package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Outcome classifies the result of a grant attempt. Skips are the expected
// steady state between periods and after lost races, never errors.
type Outcome string

const (
	OutcomeGranted            Outcome = "granted"
	OutcomeSkipped            Outcome = "skipped"
	OutcomeAlreadyInitialized Outcome = "already_initialized"
)

// Skip reasons recorded on Result.Reason and in metrics.
const (
	SkipNotDue        = "not_due"
	SkipInactive      = "inactive"
	SkipLostRace      = "lost_race"
	SkipDuplicate     = "duplicate_ledger_entry"
	SkipAlreadyActive = "already_active"
)

type Result struct {
	Outcome        Outcome      `json:"outcome"`
	Reason         string       `json:"reason,omitempty"`
	SubscriptionID snowflake.ID `json:"subscription_id,omitempty"`
	Amount         int64        `json:"amount,omitempty"`
}

type ActivatePlanRequest struct {
	UserID            string
	PlanCode          string
	ProviderReference string
}

// Service is the credit grant engine. Every operation executes as one atomic
// transaction spanning the subscription row and the ledger; the update to
// last_granted_at is conditioned on the value read inside that transaction,
// so concurrent triggers collapse to exactly one grant per period.
type Service interface {
	// GrantInitial provisions a user's free subscription and signup
	// allowance. Repeated calls return OutcomeAlreadyInitialized.
	GrantInitial(ctx context.Context, userID string) (Result, error)

	// GrantPeriodic attempts the next periodic grant for one subscription.
	GrantPeriodic(ctx context.Context, subscriptionID string) (Result, error)

	// ActivatePlan supersedes any active subscription with a new row for the
	// given plan and issues its first allowance in the same transaction.
	ActivatePlan(ctx context.Context, req ActivatePlanRequest) (Result, error)
}
