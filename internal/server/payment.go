package server

import (
	"net/http"

	paymentdomain "github.com/carebridge/revcycle/internal/payment/domain"
	recondomain "github.com/carebridge/revcycle/internal/reconciliation/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreatePayment(c *gin.Context) {
	var req paymentdomain.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) ListPayments(c *gin.Context) {
	var req paymentdomain.ListPaymentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "payment_id")
	if !ok {
		return
	}
	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) SuggestPaymentMatches(c *gin.Context) {
	id, ok := pathID(c, "payment_id")
	if !ok {
		return
	}
	suggestions, err := s.paymentSvc.SuggestMatches(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) ReconcilePayment(c *gin.Context) {
	id, ok := pathID(c, "payment_id")
	if !ok {
		return
	}
	var req recondomain.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconEngine.Reconcile(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) AutoReconcilePayment(c *gin.Context) {
	id, ok := pathID(c, "payment_id")
	if !ok {
		return
	}
	var req recondomain.AutoReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.reconEngine.AutoReconcile(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) UndoReconciliation(c *gin.Context) {
	id, ok := pathID(c, "payment_id")
	if !ok {
		return
	}
	result, err := s.reconEngine.Undo(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
