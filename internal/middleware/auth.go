package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/service"
	pkgjwt "github.com/wikigate/moderation-backend/pkg/jwt"
)

const actorKey = "actor"

// Auth resolves the acting principal from a Bearer token and attaches
// it to the request context along with its network origin. When
// required is false, anonymous requests pass through with an empty
// actor (anonymous submissions are a normal case for the queue).
func Auth(mgr *pkgjwt.Manager, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := service.Actor{
			IP:        c.ClientIP(),
			XFF:       c.GetHeader("X-Forwarded-For"),
			UserAgent: c.GetHeader("User-Agent"),
			AnonToken: c.GetHeader("X-Anon-Token"),
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				common.FailResponse(c, common.ErrNotLoggedIn)
				c.Abort()
				return
			}
			actor.Name = actor.IP
			c.Set(actorKey, actor)
			c.Next()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := mgr.Verify(token)
		if err != nil {
			common.FailResponse(c, common.ErrNotLoggedIn)
			c.Abort()
			return
		}

		actor.ID = claims.UserID
		actor.Name = claims.UserName
		actor.Registered = claims.Registered
		actor.Capabilities = claims.Capabilities
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireCap aborts unless the actor holds the capability.
func RequireCap(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetActor(c).Has(capability) {
			common.FailResponse(c, common.ErrNotModerator)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActor returns the actor attached by Auth.
func GetActor(c *gin.Context) service.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(service.Actor); ok {
			return a
		}
	}
	return service.Actor{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
