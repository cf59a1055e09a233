package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-payments/internal/ratelimit"
	"marketplace-payments/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(anonMax, authMax int) *gin.Engine {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
	router := gin.New()
	router.Use(rateLimitMiddleware(limiter, rateLimitConfig{
		anonMax: anonMax,
		authMax: authMax,
		window:  time.Minute,
	}))
	router.POST("/v1/refunds", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimitMiddlewareDeniesAfterBudget(t *testing.T) {
	router := limitedRouter(2, 10)

	var recorder *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		recorder = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		router.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	}
	assert.Equal(t, "2", recorder.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", recorder.Header().Get("X-RateLimit-Remaining"))

	recorder = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("Retry-After"))
	assert.Contains(t, recorder.Body.String(), "rate_limited")
}

func TestRateLimitMiddlewareKeysAuthenticatedCallersByIdentity(t *testing.T) {
	router := limitedRouter(1, 5)

	// The anonymous budget for this address is spent.
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusTooManyRequests, recorder.Code)

	// The same address with a verified identity draws from its own, higher
	// budget.
	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.10")
	req.Header.Set("X-User-ID", "42")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "5", recorder.Header().Get("X-RateLimit-Limit"))
}

func TestClientAddressPrecedence(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	c.Request.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	c.Request.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.1", clientAddress(c))

	c.Request.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", clientAddress(c))
}

func TestRequireAuth(t *testing.T) {
	router := gin.New()
	router.POST("/v1/refunds", requireAuth(), func(c *gin.Context) {
		caller := callerIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "role": caller.Role})
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/refunds", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-User-ID", "not-a-number")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/refunds", nil)
	req.Header.Set("X-User-ID", "42")
	req.Header.Set("X-User-Role", "user")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"user_id":42`)
}

func TestRequireAdmin(t *testing.T) {
	router := gin.New()
	router.POST("/v1/payouts/process", requireAuth(), requireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payouts/process", nil)
	req.Header.Set("X-User-ID", "42")
	req.Header.Set("X-User-Role", "user")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/payouts/process", nil)
	req.Header.Set("X-User-ID", "1")
	req.Header.Set("X-User-Role", "admin")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestCallerIdentityDefaultsEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, service.Identity{}, callerIdentity(c))
}
