package service

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/creditrail/creditrail/internal/config"
	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

type catalog struct {
	plans map[string]plandomain.Plan
}

// defaultPlans ships the catalog used when PLAN_CATALOG is not set.
func defaultPlans() []plandomain.Plan {
	return []plandomain.Plan{
		{Code: "free", Tier: plandomain.TierFree, InitialAllowance: 200, PeriodicAllowance: 200, PeriodDays: 30},
		{Code: "plus", Tier: plandomain.TierPaid, PeriodicAllowance: 2000, PeriodDays: 30},
		{Code: "pro", Tier: plandomain.TierPaid, PeriodicAllowance: 6000, PeriodDays: 30},
	}
}

func NewCatalog(p Params) (plandomain.Catalog, error) {
	plans := defaultPlans()
	if p.Config.PlanCatalog != "" {
		var override []plandomain.Plan
		if err := json.Unmarshal([]byte(p.Config.PlanCatalog), &override); err != nil {
			return nil, fmt.Errorf("%w: %v", plandomain.ErrInvalidCatalog, err)
		}
		plans = override
	}

	byCode := make(map[string]plandomain.Plan, len(plans))
	freeCount := 0
	for _, plan := range plans {
		if err := validatePlan(plan); err != nil {
			return nil, err
		}
		if _, exists := byCode[plan.Code]; exists {
			return nil, fmt.Errorf("%w: duplicate code %q", plandomain.ErrInvalidCatalog, plan.Code)
		}
		if plan.Tier == plandomain.TierFree {
			freeCount++
		}
		byCode[plan.Code] = plan
	}
	if freeCount != 1 {
		return nil, fmt.Errorf("%w: exactly one free plan required, got %d", plandomain.ErrInvalidCatalog, freeCount)
	}

	p.Log.Named("plan.catalog").Info("plan catalog loaded", zap.Int("plans", len(byCode)))
	return &catalog{plans: byCode}, nil
}

func validatePlan(plan plandomain.Plan) error {
	if plan.Code == "" {
		return fmt.Errorf("%w: empty plan code", plandomain.ErrInvalidCatalog)
	}
	if plan.Tier != plandomain.TierFree && plan.Tier != plandomain.TierPaid {
		return fmt.Errorf("%w: plan %q has unknown tier %q", plandomain.ErrInvalidCatalog, plan.Code, plan.Tier)
	}
	if plan.PeriodicAllowance <= 0 {
		return fmt.Errorf("%w: plan %q has non-positive allowance", plandomain.ErrInvalidCatalog, plan.Code)
	}
	if plan.PeriodDays <= 0 {
		return fmt.Errorf("%w: plan %q has non-positive period", plandomain.ErrInvalidCatalog, plan.Code)
	}
	return nil
}

func (c *catalog) Get(code string) (plandomain.Plan, error) {
	plan, ok := c.plans[code]
	if !ok {
		return plandomain.Plan{}, fmt.Errorf("%w: %q", plandomain.ErrPlanNotConfigured, code)
	}
	return plan, nil
}

func (c *catalog) FreePlan() (plandomain.Plan, error) {
	for _, plan := range c.plans {
		if plan.Tier == plandomain.TierFree {
			return plan, nil
		}
	}
	return plandomain.Plan{}, plandomain.ErrPlanNotConfigured
}

func (c *catalog) List() []plandomain.Plan {
	out := make([]plandomain.Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
