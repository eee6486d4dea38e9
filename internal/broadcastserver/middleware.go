package broadcastserver

import "github.com/gin-gonic/gin"

// securityHeaders adds standard hardening headers to every response.
// Adapted unchanged from the teacher's SecurityHeadersMiddleware — these
// mitigate clickjacking, MIME-sniffing, and information leakage regardless
// of what the handler underneath actually serves.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}
