// Package domain describes the immutable plan catalog. Plans are created by
// deployment configuration and never mutated at runtime.
package domain

import "errors"

// Tier separates the free recurring-on-access plan from paid
// recurring-on-renewal plans.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPaid Tier = "PAID"
)

// Plan is a catalog entry. PeriodDays is the length of one grant window;
// InitialAllowance is the one-time signup grant and only meaningful on the
// free tier.
type Plan struct {
	Code              string `json:"code"`
	Tier              Tier   `json:"tier"`
	InitialAllowance  int64  `json:"initial_allowance"`
	PeriodicAllowance int64  `json:"periodic_allowance"`
	PeriodDays        int    `json:"period_days"`
}

type Catalog interface {
	// Get returns ErrPlanNotConfigured for unknown codes. Callers must treat
	// that as fatal configuration breakage, never as a zero-credit plan.
	Get(code string) (Plan, error)
	FreePlan() (Plan, error)
	List() []Plan
}

var (
	ErrPlanNotConfigured = errors.New("plan_not_configured")
	ErrInvalidCatalog    = errors.New("invalid_plan_catalog")
)
