package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, user_id, plan_code, status, current_period_start, last_granted_at,
	 provider_reference, canceled_at, expired_at, metadata, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

// lockClause returns a row lock suffix where the dialect supports one. SQLite
// serializes writers anyway; the CAS on last_granted_at is the real guard.
func lockClause(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, user_id, plan_code, status, current_period_start, last_granted_at,
			provider_reference, canceled_at, expired_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.UserID,
		subscription.PlanCode,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.LastGrantedAt,
		subscription.ProviderReference,
		subscription.CanceledAt,
		subscription.ExpiredAt,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`+lockClause(db),
		id,
	)
}

func (r *repo) FindActiveByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		subscriptiondomain.SubscriptionStatusActive,
	)
}

func (r *repo) FindActiveByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC
		 LIMIT 1`+lockClause(db),
		userID,
		subscriptiondomain.SubscriptionStatusActive,
	)
}

func (r *repo) FindActiveByPlanTier(ctx context.Context, db *gorm.DB, userID snowflake.ID, planCodes []string) (*subscriptiondomain.Subscription, error) {
	if len(planCodes) == 0 {
		return nil, nil
	}
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = ? AND status = ? AND plan_code IN ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		subscriptiondomain.SubscriptionStatusActive,
		planCodes,
	)
}

func (r *repo) FindByProviderReference(ctx context.Context, db *gorm.DB, reference string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE provider_reference = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		reference,
	)
}

func (r *repo) CountByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE user_id = ?`,
		userID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ListActiveAfterID(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		afterID,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) AdvanceLastGranted(ctx context.Context, db *gorm.DB, id snowflake.ID, observed *time.Time, next time.Time) (bool, error) {
	var result *gorm.DB
	if observed == nil {
		result = db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET last_granted_at = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND last_granted_at IS NULL`,
			next,
			next,
			id,
			subscriptiondomain.SubscriptionStatusActive,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET last_granted_at = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND last_granted_at = ?`,
			next,
			next,
			id,
			subscriptiondomain.SubscriptionStatusActive,
			*observed,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, canceled_at = ?, expired_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.CanceledAt,
		subscription.ExpiredAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(query, args...).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}
