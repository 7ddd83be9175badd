package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderWebhookSecret = "X-Billing-Route-Secret"
	HeaderRequestID     = "X-Request-ID"
)

// RequestID tags every request with an identifier, honoring one supplied by
// an upstream proxy.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		log.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		)
	}
}

// WebhookSecretRequired gates the webhook routes with a shared route secret
// before any provider-level signature check runs. An empty configured secret
// disables the gate (local development).
func (s *Server) WebhookSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.WebhookRouteSecret
		if secret == "" {
			c.Next()
			return
		}
		supplied := strings.TrimSpace(c.GetHeader(HeaderWebhookSecret))
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(secret)) != 1 {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}
