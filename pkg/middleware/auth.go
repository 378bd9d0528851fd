package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/echoline-ai/echoline/pkg/response"
	"github.com/gin-gonic/gin"
)

// APIKeyAuth guards the management surface. Requests must carry the shared
// secret in the X-API-Key header. An empty configured key disables the check
// (development mode).
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			response.FailWithStatus(c, http.StatusUnauthorized, "invalid or missing API key", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SignWebhookPayload computes the hex HMAC-SHA256 signature for an outbound
// or inbound webhook body.
func SignWebhookPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a webhook signature in constant time.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	expected := SignWebhookPayload(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
