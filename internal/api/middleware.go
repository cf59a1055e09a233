package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace-payments/internal/ratelimit"
	"marketplace-payments/internal/service"
	"marketplace-payments/internal/util"

	"github.com/gin-gonic/gin"
)

const identityKey = "caller_identity"

// rateLimitConfig carries the per-caller ceilings for the limiter middleware
type rateLimitConfig struct {
	anonMax int
	authMax int
	window  time.Duration
}

// rateLimitMiddleware applies the sliding-window limit. Authenticated callers
// are keyed by identity with the higher ceiling; anonymous callers are keyed
// by client address.
func rateLimitMiddleware(limiter *ratelimit.Limiter, cfg rateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier, max, keyedBy := resolveIdentifier(c, cfg)

		result, err := limiter.Check(c.Request.Context(), identifier, max, cfg.window)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", result.ResetTime.UTC().Format(time.RFC3339))

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			util.RateLimitedTotal.WithLabelValues(keyedBy).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate_limited",
				"message":    "Too many requests. Please slow down.",
				"retryAfter": retryAfter,
			})
			return
		}

		c.Next()
	}
}

func resolveIdentifier(c *gin.Context, cfg rateLimitConfig) (identifier string, max int, keyedBy string) {
	if userID := strings.TrimSpace(c.GetHeader("X-User-ID")); userID != "" {
		return "user:" + userID, cfg.authMax, "identity"
	}
	return "ip:" + clientAddress(c), cfg.anonMax, "address"
}

// clientAddress picks the first forwarded-for entry, then the real-ip
// header, then a constant unknown bucket
func clientAddress(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); realIP != "" {
		return realIP
	}
	if addr := c.ClientIP(); addr != "" {
		return addr
	}
	return "unknown"
}

// requireAuth resolves the verified caller identity set by the upstream
// gateway; identity provisioning itself is out of scope here
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		c.Set(identityKey, service.Identity{
			UserID: userID,
			Email:  c.GetHeader("X-User-Email"),
			Role:   c.GetHeader("X-User-Role"),
		})
		c.Next()
	}
}

// requireAdmin allows only admin callers through
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerIdentity(c)
		if !caller.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			return
		}
		c.Next()
	}
}

func callerIdentity(c *gin.Context) service.Identity {
	if value, exists := c.Get(identityKey); exists {
		if identity, ok := value.(service.Identity); ok {
			return identity
		}
	}
	return service.Identity{}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
