// Package domain defines the normalized payment-provider events consumed by
// the dispatcher. Signature verification and payload parsing happen upstream;
// by the time an event reaches this package it is well-formed and trusted,
// and carries no provider-specific field names.
package domain

import (
	"context"
	"errors"
	"time"

	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
)

type EventType string

const (
	EventActivation   EventType = "ACTIVATION"
	EventRenewal      EventType = "RENEWAL"
	EventCancellation EventType = "CANCELLATION"
)

type Event struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	ProviderReference string    `json:"provider_reference"`
	UserID            string    `json:"user_id"`
	PlanCode          string    `json:"plan_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Dispatcher interface {
	// Dispatch routes one event into the grant engine or the lifecycle
	// manager. Replayed events resolve to skips, not errors.
	Dispatch(ctx context.Context, event Event) (grantdomain.Result, error)
}

var (
	ErrUnknownEventType = errors.New("unknown_event_type")
	ErrInvalidEvent     = errors.New("invalid_event")
)
