// Package domain holds the grant engine contract and the pure eligibility
// calculator.
package domain

import (
	"time"

	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
)

// PeriodLength converts the plan's period into a duration.
func PeriodLength(plan plandomain.Plan) time.Duration {
	return time.Duration(plan.PeriodDays) * 24 * time.Hour
}

// Anchor is the instant the next eligibility window is measured from: the
// last grant, or the row's period start when nothing was granted yet.
func Anchor(sub subscriptiondomain.Subscription) time.Time {
	if sub.LastGrantedAt != nil {
		return *sub.LastGrantedAt
	}
	return sub.CurrentPeriodStart
}

// Eligible reports whether the subscription may receive its next periodic
// grant at now. A nil anchor always means the first grant is due.
func Eligible(sub subscriptiondomain.Subscription, plan plandomain.Plan, now time.Time) bool {
	if sub.LastGrantedAt == nil {
		return true
	}
	return now.Sub(*sub.LastGrantedAt) >= PeriodLength(plan)
}

// PeriodIndex numbers the eligibility window containing now, counted from the
// anchor. Diagnostics only: periods are never backfilled, so a subscription
// that skips windows still receives exactly one allowance per trigger.
func PeriodIndex(sub subscriptiondomain.Subscription, plan plandomain.Plan, now time.Time) int {
	elapsed := now.Sub(Anchor(sub))
	if elapsed < 0 {
		return 1
	}
	return int(elapsed/PeriodLength(plan)) + 1
}

// GrantSequence numbers grant windows from the fixed row creation instant.
// Unlike PeriodIndex it never moves with the anchor, so consecutive grants
// (always a full period apart) map to strictly increasing values, which
// makes it a safe ledger dedupe discriminator.
func GrantSequence(sub subscriptiondomain.Subscription, plan plandomain.Plan, now time.Time) int {
	elapsed := now.Sub(sub.CurrentPeriodStart)
	if elapsed < 0 {
		return 1
	}
	return int(elapsed/PeriodLength(plan)) + 1
}
