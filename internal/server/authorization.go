package server

import (
	"net/http"

	authdomain "github.com/carebridge/revcycle/internal/authorization/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateAuthorization(c *gin.Context) {
	var req authdomain.CreateAuthorizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	auth, err := s.authSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auth)
}

func (s *Server) GetAuthorization(c *gin.Context) {
	id, ok := pathID(c, "authorization_id")
	if !ok {
		return
	}
	auth, err := s.authSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth)
}

func (s *Server) ActivateAuthorization(c *gin.Context) {
	id, ok := pathID(c, "authorization_id")
	if !ok {
		return
	}
	auth, err := s.authSvc.Activate(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth)
}

func (s *Server) CancelAuthorization(c *gin.Context) {
	id, ok := pathID(c, "authorization_id")
	if !ok {
		return
	}
	auth, err := s.authSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, auth)
}
