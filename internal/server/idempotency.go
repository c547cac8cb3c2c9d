package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const idempotencyKeyTTL = 24 * time.Hour

func idempotencyKeyFromHeader(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

// IdempotencyGuard rejects a request whose Idempotency-Key was already seen
// within the TTL. Requests without a key pass through, as do all requests
// when no redis client is configured.
func (s *Server) IdempotencyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := idempotencyKeyFromHeader(c)
		if key == "" || s.redis == nil {
			c.Next()
			return
		}

		tenantID := tenantIDFromGin(c)
		storageKey := "windbill:idem:" + tenantID.String() + ":" + c.FullPath() + ":" + key
		set, err := s.redis.SetNX(c.Request.Context(), storageKey, "1", idempotencyKeyTTL).Result()
		if err != nil {
			// Redis being down must not block billing operations.
			s.log.Warn("idempotency check unavailable")
			c.Next()
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate_request"})
			return
		}
		c.Next()
	}
}
