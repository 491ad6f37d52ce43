// Package access hooks periodic grants for the free tier onto authenticated
// traffic. Free subscriptions have no external renewal events, so the first
// request after a period boundary is what mints the next allowance.
package access

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/creditrail/creditrail/internal/grant/domain"
	plandomain "github.com/creditrail/creditrail/internal/plan/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Catalog  plandomain.Catalog
	Repo     subscriptiondomain.Repository
	GrantSvc domain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	catalog  plandomain.Catalog
	repo     subscriptiondomain.Repository
	grantSvc domain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("access.service"),
		catalog:  p.Catalog,
		repo:     p.Repo,
		grantSvc: p.GrantSvc,
	}
}

// OnAuthenticatedAccess runs on the hot path of every authenticated request.
// It never fails the request: any problem is logged and swallowed, and the
// reconciler picks up whatever was missed.
func (s *Service) OnAuthenticatedAccess(ctx context.Context, userID string) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil || parsed == 0 {
		return
	}

	subscription, err := s.repo.FindActiveByPlanTier(ctx, s.db, parsed, s.freePlanCodes())
	if err != nil {
		s.log.Warn("free tier lookup failed on access",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	if subscription == nil {
		return
	}

	result, err := s.grantSvc.GrantPeriodic(ctx, subscription.ID.String())
	if err != nil {
		s.log.Warn("access-triggered grant failed",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Error(err),
		)
		return
	}
	if result.Outcome == domain.OutcomeGranted {
		s.log.Info("access-triggered grant issued",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Int64("amount", result.Amount),
		)
	}
}

func (s *Service) freePlanCodes() []string {
	var codes []string
	for _, plan := range s.catalog.List() {
		if plan.Tier == plandomain.TierFree {
			codes = append(codes, plan.Code)
		}
	}
	return codes
}
