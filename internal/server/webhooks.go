package server

import (
	"net/http"
	"time"

	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	webhookdomain "github.com/creditrail/creditrail/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type webhookRequest struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	ProviderReference string    `json:"provider_reference"`
	UserID            string    `json:"user_id"`
	PlanCode          string    `json:"plan_id"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type grantResultResponse struct {
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
}

func toGrantResultResponse(result grantdomain.Result) grantResultResponse {
	resp := grantResultResponse{
		Outcome: string(result.Outcome),
		Reason:  result.Reason,
		Amount:  result.Amount,
	}
	if result.SubscriptionID != 0 {
		resp.SubscriptionID = result.SubscriptionID.String()
	}
	return resp
}

// handlePaymentWebhook accepts normalized provider events. Replays and
// duplicates resolve to skip outcomes with a 200 so the provider stops
// retrying.
func (s *Server) handlePaymentWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	result, err := s.dispatcher.Dispatch(c.Request.Context(), webhookdomain.Event{
		ID:                req.ID,
		Type:              webhookdomain.EventType(req.Type),
		ProviderReference: req.ProviderReference,
		UserID:            req.UserID,
		PlanCode:          req.PlanCode,
		OccurredAt:        req.OccurredAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("webhook processed",
		zap.String("event_type", req.Type),
		zap.String("outcome", string(result.Outcome)),
	)
	c.JSON(http.StatusOK, toGrantResultResponse(result))
}
