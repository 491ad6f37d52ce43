// Package domain contains persistence models for subscription lifecycle
// episodes. A subscription row is one episode: tier changes cancel the old row
// and insert a new one, never mutate plan_code in place.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
// CANCELLED and EXPIRED are terminal for the row; reactivation always creates
// a fresh row.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Subscription captures one lifecycle episode for a user.
//
// LastGrantedAt is the period anchor: nil means the first grant is due now,
// and once set it only ever moves forward (the grant engine advances it with a
// compare-and-swap update).
type Subscription struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	UserID             snowflake.ID       `gorm:"not null;index"`
	PlanCode           string             `gorm:"type:text;not null"`
	Status             SubscriptionStatus `gorm:"type:text;not null;index"`
	CurrentPeriodStart time.Time          `gorm:"not null"`
	LastGrantedAt      *time.Time         `gorm:""`
	ProviderReference  *string            `gorm:"type:text;index"`
	CanceledAt         *time.Time         `gorm:""`
	ExpiredAt          *time.Time         `gorm:""`
	Metadata           datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt          time.Time          `gorm:"not null"`
	UpdatedAt          time.Time          `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Terminal reports whether the row can never transition again.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}
