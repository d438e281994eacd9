package server

import (
	"net/http"

	payerdomain "github.com/carebridge/revcycle/internal/payer/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreatePayer(c *gin.Context) {
	var req payerdomain.CreatePayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payer, err := s.payerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payer)
}

func (s *Server) ListPayers(c *gin.Context) {
	payers, err := s.payerSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payers": payers})
}

func (s *Server) GetPayer(c *gin.Context) {
	id, ok := pathID(c, "payer_id")
	if !ok {
		return
	}
	payer, err := s.payerSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payer)
}

func (s *Server) UpdatePayer(c *gin.Context) {
	id, ok := pathID(c, "payer_id")
	if !ok {
		return
	}
	var req payerdomain.UpdatePayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payer, err := s.payerSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payer)
}
