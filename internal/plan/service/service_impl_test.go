package service

import (
	"errors"
	"testing"

	"github.com/creditrail/creditrail/internal/config"
	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := NewCatalog(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)

	free, err := catalog.FreePlan()
	require.NoError(t, err)
	require.Equal(t, "free", free.Code)
	require.Equal(t, int64(200), free.InitialAllowance)
	require.Equal(t, int64(200), free.PeriodicAllowance)
	require.Equal(t, 30, free.PeriodDays)

	plus, err := catalog.Get("plus")
	require.NoError(t, err)
	require.Equal(t, plandomain.TierPaid, plus.Tier)
	require.Equal(t, int64(2000), plus.PeriodicAllowance)

	pro, err := catalog.Get("pro")
	require.NoError(t, err)
	require.Equal(t, int64(6000), pro.PeriodicAllowance)

	require.Len(t, catalog.List(), 3)
}

func TestUnknownPlanCode(t *testing.T) {
	catalog, err := NewCatalog(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)

	_, err = catalog.Get("enterprise")
	require.True(t, errors.Is(err, plandomain.ErrPlanNotConfigured))
}

func TestCatalogOverride(t *testing.T) {
	cfg := config.Config{PlanCatalog: `[
		{"code":"starter","tier":"FREE","initial_allowance":50,"periodic_allowance":50,"period_days":7},
		{"code":"team","tier":"PAID","periodic_allowance":10000,"period_days":30}
	]`}
	catalog, err := NewCatalog(Params{Config: cfg, Log: zap.NewNop()})
	require.NoError(t, err)

	free, err := catalog.FreePlan()
	require.NoError(t, err)
	require.Equal(t, "starter", free.Code)
	require.Equal(t, 7, free.PeriodDays)

	_, err = catalog.Get("plus")
	require.True(t, errors.Is(err, plandomain.ErrPlanNotConfigured), "defaults replaced by override")
}

func TestCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed json", `{not json`},
		{"no free plan", `[{"code":"team","tier":"PAID","periodic_allowance":100,"period_days":30}]`},
		{"two free plans", `[
			{"code":"a","tier":"FREE","periodic_allowance":100,"period_days":30},
			{"code":"b","tier":"FREE","periodic_allowance":100,"period_days":30}
		]`},
		{"duplicate code", `[
			{"code":"x","tier":"FREE","periodic_allowance":100,"period_days":30},
			{"code":"x","tier":"PAID","periodic_allowance":100,"period_days":30}
		]`},
		{"zero allowance", `[{"code":"x","tier":"FREE","periodic_allowance":0,"period_days":30}]`},
		{"zero period", `[{"code":"x","tier":"FREE","periodic_allowance":100,"period_days":0}]`},
		{"unknown tier", `[{"code":"x","tier":"TRIAL","periodic_allowance":100,"period_days":30}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(Params{Config: config.Config{PlanCatalog: tt.json}, Log: zap.NewNop()})
			require.True(t, errors.Is(err, plandomain.ErrInvalidCatalog), "got %v", err)
		})
	}
}
