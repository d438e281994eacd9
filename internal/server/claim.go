package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	claimdomain "github.com/carebridge/revcycle/internal/claim/domain"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateClaim(c *gin.Context) {
	var req claimdomain.CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.claimSvc.CreateFromServices(c.Request.Context(), req)
	if errors.Is(err, svcdomain.ErrValidationFailed) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"type":    "validation_error",
				"message": "one or more services failed billing validation",
			},
			"validation_results": resp.ValidationResults,
		})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) ListClaims(c *gin.Context) {
	var req claimdomain.ListClaimsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	claims, err := s.claimSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

func (s *Server) GetClaim(c *gin.Context) {
	id, ok := pathID(c, "claim_id")
	if !ok {
		return
	}
	claim, err := s.claimSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

func (s *Server) RevalidateClaim(c *gin.Context) {
	id, ok := pathID(c, "claim_id")
	if !ok {
		return
	}
	claim, results, err := s.claimSvc.Revalidate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": claim, "validation_results": results})
}

func (s *Server) SubmitClaim(c *gin.Context) {
	id, ok := pathID(c, "claim_id")
	if !ok {
		return
	}
	var req claimdomain.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, claimdomain.ErrSubmissionIncomplete)
		return
	}

	claim, err := s.claimSvc.Submit(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

func (s *Server) AcknowledgeClaim(c *gin.Context) {
	s.transitionClaim(c, s.claimSvc.Acknowledge)
}

func (s *Server) MarkClaimPending(c *gin.Context) {
	s.transitionClaim(c, s.claimSvc.MarkPending)
}

func (s *Server) AppealClaim(c *gin.Context) {
	s.transitionClaim(c, s.claimSvc.Appeal)
}

func (s *Server) FinalizeClaimDenial(c *gin.Context) {
	s.transitionClaim(c, s.claimSvc.FinalizeDenial)
}

func (s *Server) VoidClaim(c *gin.Context) {
	s.transitionClaim(c, s.claimSvc.Void)
}

func (s *Server) ResubmitClaim(c *gin.Context) {
	id, ok := pathID(c, "claim_id")
	if !ok {
		return
	}
	claim, err := s.claimSvc.Resubmit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"claim": claim})
}

func (s *Server) transitionClaim(c *gin.Context, op func(context.Context, snowflake.ID) (*claimdomain.Claim, error)) {
	id, ok := pathID(c, "claim_id")
	if !ok {
		return
	}
	claim, err := op(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}
