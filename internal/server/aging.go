package server

import (
	"net/http"
	"strconv"
	"time"

	agingdomain "github.com/carebridge/revcycle/internal/aging/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) AgingReport(c *gin.Context) {
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		asOf = parsed
	}

	var filters agingdomain.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	report, err := s.agingCalc.ComputeAging(c.Request.Context(), asOf, filters)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) CollectionWorklist(c *gin.Context) {
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		asOf = parsed
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	items, err := s.agingCalc.CollectionWorklist(c.Request.Context(), asOf, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
