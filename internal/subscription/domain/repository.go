package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindActiveByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)
	FindActiveByPlanTier(ctx context.Context, db *gorm.DB, userID snowflake.ID, planCodes []string) (*Subscription, error)
	FindByProviderReference(ctx context.Context, db *gorm.DB, reference string) (*Subscription, error)
	CountByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	ListActiveAfterID(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Subscription, error)

	// AdvanceLastGranted moves the period anchor forward, conditioned on the
	// previously observed value. A false return means another grant won the
	// race and the caller must skip.
	AdvanceLastGranted(ctx context.Context, db *gorm.DB, id snowflake.ID, observed *time.Time, next time.Time) (bool, error)

	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
