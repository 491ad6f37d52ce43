package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/creditrail/creditrail/internal/ledger/domain"
	subscriptiondomain "github.com/creditrail/creditrail/internal/subscription/domain"
	"github.com/creditrail/creditrail/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type balanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type transactionView struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Amount         int64     `json:"amount"`
	Kind           string    `json:"kind"`
	DedupeKey      string    `json:"dedupe_key"`
	CreatedAt      time.Time `json:"created_at"`
}

type listTransactionsResponse struct {
	pagination.PageInfo
	Transactions []transactionView `json:"transactions"`
}

func (s *Server) handleGetBalance(c *gin.Context) {
	userID, err := parseUserParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balanceResponse{
		UserID:  userID.String(),
		Balance: balance,
	})
}

func (s *Server) handleListTransactions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_token", "invalid_request", "invalid pagination"))
		return
	}

	resp, err := s.ledgerSvc.ListTransactions(c.Request.Context(), ledgerdomain.ListTransactionsRequest{
		UserID:    c.Param("user_id"),
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	views := make([]transactionView, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		view := transactionView{
			ID:        tx.ID.String(),
			UserID:    tx.UserID.String(),
			Amount:    tx.Amount,
			Kind:      string(tx.Kind),
			DedupeKey: tx.DedupeKey,
			CreatedAt: tx.CreatedAt,
		}
		if tx.SubscriptionID != nil {
			view.SubscriptionID = tx.SubscriptionID.String()
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, listTransactionsResponse{
		PageInfo:     resp.PageInfo,
		Transactions: views,
	})
}

type adjustmentRequest struct {
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	DedupeKey string `json:"dedupe_key"`
}

type adjustmentResponse struct {
	Applied bool `json:"applied"`
}

// handleCreateAdjustment appends a signed support entry. A replayed dedupe key
// reports applied=false with a 200; the first write already stuck.
func (s *Server) handleCreateAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	kind := ledgerdomain.TransactionKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	switch kind {
	case ledgerdomain.KindDeduction, ledgerdomain.KindRefund, ledgerdomain.KindAdjustment:
	default:
		AbortWithError(c, ledgerdomain.ErrInvalidKind)
		return
	}

	applied, err := s.ledgerSvc.CreateAdjustment(c.Request.Context(), ledgerdomain.AdjustmentRequest{
		UserID:    c.Param("user_id"),
		Amount:    req.Amount,
		Kind:      kind,
		DedupeKey: req.DedupeKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, adjustmentResponse{Applied: applied})
}

func parseUserParam(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("user_id")))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidUser
	}
	return id, nil
}
