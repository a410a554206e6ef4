// Package middleware holds the trust gate between this service and
// the booking backend.
package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/telemed-live/videocall-service/pkg/log"
	"github.com/telemed-live/videocall-service/pkg/response"
)

// HeaderInternalSecret carries the shared secret proving the caller
// is the trusted booking service, not an arbitrary client.
const HeaderInternalSecret = "X-Internal-Secret"

// InternalAuth validates the shared-secret header on orchestration
// endpoints. With no configured secret the gate fails closed: it
// never degrades to "no auth required".
func InternalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := log.Ctx(c.Request.Context())

		if secret == "" {
			l.Error().Msg("internal secret is not configured")
			c.Abort()
			response.InternalError(c, "service is not configured for internal calls")
			return
		}

		got := c.GetHeader(HeaderInternalSecret)
		if got == "" {
			l.Warn().Msg("missing internal secret header")
			c.Abort()
			response.Unauthorized(c, "missing "+HeaderInternalSecret+" header")
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			l.Warn().Msg("internal secret mismatch")
			c.Abort()
			response.Unauthorized(c, "invalid "+HeaderInternalSecret+" header")
			return
		}

		c.Next()
	}
}
