package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/carebridge/revcycle/internal/actorctx"
	"github.com/carebridge/revcycle/internal/config"
	"github.com/gin-gonic/gin"
)

const (
	headerOrgID     = "X-Org-ID"
	headerActorID   = "X-Actor-ID"
	headerActorType = "X-Actor-Type"
)

// ActorContextMiddleware resolves the acting org and principal from request
// headers into the context every core operation reads. Identity headers are
// assumed to be set by the authenticating proxy in front of this service.
func ActorContextMiddleware(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		orgID := cfg.DefaultOrgID
		if raw := strings.TrimSpace(c.GetHeader(headerOrgID)); raw != "" {
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
				orgID = parsed
			}
		}
		if orgID != 0 {
			ctx = actorctx.WithOrgID(ctx, snowflake.ID(orgID))
		}

		actorType := strings.TrimSpace(c.GetHeader(headerActorType))
		if actorType == "" {
			actorType = "user"
		}
		if actorID := strings.TrimSpace(c.GetHeader(headerActorID)); actorID != "" {
			ctx = actorctx.WithActor(ctx, actorType, actorID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
