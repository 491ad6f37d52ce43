package service

import (
	"context"
	"strings"

	"github.com/creditrail/creditrail/internal/grant/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	webhookdomain "github.com/creditrail/creditrail/internal/webhook/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GrantSvc        domain.Service
	SubscriptionSvc subscriptiondomain.Service
	Repo            subscriptiondomain.Repository
}

type Dispatcher struct {
	db              *gorm.DB
	log             *zap.Logger
	grantSvc        domain.Service
	subscriptionSvc subscriptiondomain.Service
	repo            subscriptiondomain.Repository
}

func NewDispatcher(p Params) webhookdomain.Dispatcher {
	return &Dispatcher{
		db:              p.DB,
		log:             p.Log.Named("webhook.dispatcher"),
		grantSvc:        p.GrantSvc,
		subscriptionSvc: p.SubscriptionSvc,
		repo:            p.Repo,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event webhookdomain.Event) (domain.Result, error) {
	if err := validate(&event); err != nil {
		return domain.Result{}, err
	}

	log := d.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("provider_reference", event.ProviderReference),
	)

	switch event.Type {
	case webhookdomain.EventActivation:
		return d.grantSvc.ActivatePlan(ctx, domain.ActivatePlanRequest{
			UserID:            event.UserID,
			PlanCode:          event.PlanCode,
			ProviderReference: event.ProviderReference,
		})

	case webhookdomain.EventRenewal:
		subscription, err := d.repo.FindByProviderReference(ctx, d.db, event.ProviderReference)
		if err != nil {
			return domain.Result{}, err
		}
		if subscription == nil {
			// Renewal delivered before its activation: create the
			// subscription instead of dropping the event.
			log.Warn("renewal for unknown subscription, treating as implicit activation")
			return d.grantSvc.ActivatePlan(ctx, domain.ActivatePlanRequest{
				UserID:            event.UserID,
				PlanCode:          event.PlanCode,
				ProviderReference: event.ProviderReference,
			})
		}
		return d.grantSvc.GrantPeriodic(ctx, subscription.ID.String())

	case webhookdomain.EventCancellation:
		if err := d.subscriptionSvc.CancelByProviderReference(ctx, event.ProviderReference); err != nil {
			return domain.Result{}, err
		}
		return domain.Result{Outcome: domain.OutcomeSkipped, Reason: "cancelled"}, nil

	default:
		return domain.Result{}, webhookdomain.ErrUnknownEventType
	}
}

func validate(event *webhookdomain.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.ProviderReference = strings.TrimSpace(event.ProviderReference)
	event.UserID = strings.TrimSpace(event.UserID)
	event.PlanCode = strings.TrimSpace(event.PlanCode)

	switch event.Type {
	case webhookdomain.EventActivation, webhookdomain.EventRenewal:
		if event.UserID == "" || event.PlanCode == "" || event.ProviderReference == "" {
			return webhookdomain.ErrInvalidEvent
		}
	case webhookdomain.EventCancellation:
		if event.ProviderReference == "" {
			return webhookdomain.ErrInvalidEvent
		}
	default:
		return webhookdomain.ErrUnknownEventType
	}
	return nil
}
