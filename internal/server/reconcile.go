package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleReconcile runs one ad-hoc reconciliation pass inline. The scheduled
// runner uses the same RunOnce, so an operator-triggered pass is always safe
// to overlap with it.
func (s *Server) handleReconcile(c *gin.Context) {
	if err := s.reconciler.RunOnce(c.Request.Context()); err != nil {
		s.log.Warn("ad-hoc reconciliation reported errors", zap.Error(err))
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
