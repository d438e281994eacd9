package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	svcdomain "github.com/carebridge/revcycle/internal/servicedelivery/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateService(c *gin.Context) {
	var req svcdomain.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	svc, err := s.serviceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, svc)
}

func (s *Server) ListServices(c *gin.Context) {
	var req svcdomain.ListServicesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	services, err := s.serviceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (s *Server) GetService(c *gin.Context) {
	id, ok := pathID(c, "service_id")
	if !ok {
		return
	}
	svc, err := s.serviceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

func (s *Server) UpdateServiceDocumentation(c *gin.Context) {
	id, ok := pathID(c, "service_id")
	if !ok {
		return
	}
	var req svcdomain.UpdateDocumentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	svc, err := s.serviceSvc.UpdateDocumentation(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

type validateServicesRequest struct {
	ServiceIDs []int64 `json:"service_ids" binding:"required,min=1"`
	PayerID    int64   `json:"payer_id,string"`
}

// ValidateServices is the read-only billing-readiness check. When payer_id
// is supplied the stricter conversion rules apply.
func (s *Server) ValidateServices(c *gin.Context) {
	var req validateServicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ids := make([]snowflake.ID, 0, len(req.ServiceIDs))
	for _, raw := range req.ServiceIDs {
		ids = append(ids, snowflake.ID(raw))
	}

	var (
		results []svcdomain.ValidationResult
		err     error
	)
	if req.PayerID != 0 {
		results, err = s.validator.ValidateForConversion(c.Request.Context(), ids, snowflake.ID(req.PayerID))
	} else {
		results, err = s.validator.Validate(c.Request.Context(), ids)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
