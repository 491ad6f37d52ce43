package server

import (
	"net/http"
	"time"

	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

type subscriptionView struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	PlanCode           string     `json:"plan_code"`
	Status             string     `json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	LastGrantedAt      *time.Time `json:"last_granted_at,omitempty"`
	ProviderReference  *string    `json:"provider_reference,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toSubscriptionView(sub subscriptiondomain.Subscription) subscriptionView {
	return subscriptionView{
		ID:                 sub.ID.String(),
		UserID:             sub.UserID.String(),
		PlanCode:           sub.PlanCode,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		LastGrantedAt:      sub.LastGrantedAt,
		ProviderReference:  sub.ProviderReference,
		CanceledAt:         sub.CanceledAt,
		ExpiredAt:          sub.ExpiredAt,
		CreatedAt:          sub.CreatedAt,
	}
}

func (s *Server) handleGetSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetByID(c.Request.Context(), c.Param("subscription_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionView(sub))
}

func (s *Server) handleGetActiveSubscription(c *gin.Context) {
	sub, err := s.subscriptionSvc.GetActiveByUserID(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionView(sub))
}

type activatePlanRequest struct {
	PlanCode          string `json:"plan_code"`
	ProviderReference string `json:"provider_reference"`
}

// handleActivatePlan is the support path for plan changes outside the webhook
// flow. It runs the same supersede-and-grant transaction the dispatcher uses.
func (s *Server) handleActivatePlan(c *gin.Context) {
	var req activatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if req.PlanCode == "" {
		AbortWithError(c, newValidationError("plan_code", "invalid_request", "plan_code is required"))
		return
	}

	result, err := s.grantSvc.ActivatePlan(c.Request.Context(), grantdomain.ActivatePlanRequest{
		UserID:            c.Param("user_id"),
		PlanCode:          req.PlanCode,
		ProviderReference: req.ProviderReference,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGrantResultResponse(result))
}

func (s *Server) handleCancelSubscription(c *gin.Context) {
	err := s.subscriptionSvc.Transition(
		c.Request.Context(),
		c.Param("subscription_id"),
		subscriptiondomain.SubscriptionStatusCancelled,
		subscriptiondomain.ReasonUserCancelled,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleSignup(c *gin.Context) {
	result, err := s.grantSvc.GrantInitial(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toGrantResultResponse(result))
}

// handleAccess is the authenticated-access hook. It always returns 202: grant
// failures never surface to the request that tripped the trigger.
func (s *Server) handleAccess(c *gin.Context) {
	s.accessSvc.OnAuthenticatedAccess(c.Request.Context(), c.Param("user_id"))
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
