package server

import (
	"net/http"

	recondomain "github.com/carebridge/revcycle/internal/reconciliation/domain"
	"github.com/gin-gonic/gin"
)

type batchReconcileRequest struct {
	Items []recondomain.BatchReconcileItem `json:"items" binding:"required,min=1"`
}

// BatchReconcile processes each payment in its own transaction and reports
// per-item outcomes; HTTP 207 signals a mixed result.
func (s *Server) BatchReconcile(c *gin.Context) {
	var req batchReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcomes, err := s.reconEngine.BatchReconcile(c.Request.Context(), req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := 0
	for _, out := range outcomes {
		if out.Error != "" {
			failed++
		}
	}
	status := http.StatusOK
	if failed > 0 && failed < len(outcomes) {
		status = http.StatusMultiStatus
	} else if failed == len(outcomes) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"outcomes": outcomes, "failed": failed})
}

func (s *Server) ImportRemittance(c *gin.Context) {
	var req recondomain.ImportRemittanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconEngine.ImportRemittance(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
