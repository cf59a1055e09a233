package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"marketplace-payments/internal/util"

	"github.com/gin-gonic/gin"
)

// validatorConfig gates mutating endpoints before any business logic runs
type validatorConfig struct {
	maxBodyBytes      int64
	honeypotField     string
	minFormFillMillis int64
	now               func() time.Time
}

// validatedBody is a request body that passed all gate checks
type validatedBody struct {
	Raw    []byte
	Parsed map[string]interface{}
}

// validateRequest applies the size, content-type, JSON and anti-bot checks in
// order. On failure it writes the error response and returns false.
func (v *validatorConfig) validateRequest(c *gin.Context, maxSize int64, requireJSON bool) (*validatedBody, bool) {
	if maxSize <= 0 {
		maxSize = v.maxBodyBytes
	}

	// A declared length over the ceiling is rejected before reading anything.
	if declared := c.Request.ContentLength; declared > maxSize {
		util.ValidationFailuresTotal.WithLabelValues("oversized").Inc()
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Request body too large: %d bytes declared, %d allowed", declared, maxSize),
		})
		return nil, false
	}

	if requireJSON && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		if contentType := c.ContentType(); contentType != "application/json" {
			util.ValidationFailuresTotal.WithLabelValues("content_type").Inc()
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "Content-Type must be application/json",
			})
			return nil, false
		}
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSize+1))
	if err != nil {
		util.ValidationFailuresTotal.WithLabelValues("read_error").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return nil, false
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		util.ValidationFailuresTotal.WithLabelValues("invalid_json").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON body",
		})
		return nil, false
	}

	// Re-measure the parsed body's serialized size; a missing or forged
	// Content-Length must not bypass the ceiling.
	serialized, err := json.Marshal(parsed)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Invalid JSON body",
		})
		return nil, false
	}
	if int64(len(serialized)) > maxSize {
		util.ValidationFailuresTotal.WithLabelValues("oversized").Inc()
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Request body too large: %d bytes, %d allowed", len(serialized), maxSize),
		})
		return nil, false
	}

	if v.isBot(parsed) {
		util.ValidationFailuresTotal.WithLabelValues("bot").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "Request rejected",
			"is_bot": true,
		})
		return nil, false
	}

	return &validatedBody{Raw: raw, Parsed: parsed}, true
}

// isBot applies the honeypot checks: a filled hidden field, or a form
// submitted faster than a human plausibly could.
func (v *validatorConfig) isBot(parsed map[string]interface{}) bool {
	if v.honeypotField != "" {
		if value, ok := parsed[v.honeypotField].(string); ok && value != "" {
			return true
		}
	}

	startedAt, ok := formStartedAt(parsed)
	if !ok {
		return false
	}
	now := time.Now
	if v.now != nil {
		now = v.now
	}
	return now().UnixMilli()-startedAt < v.minFormFillMillis
}

func formStartedAt(parsed map[string]interface{}) (int64, bool) {
	raw, ok := parsed["form_started_at"]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return int64(value), true
	case string:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return ms, true
	}
	return 0, false
}
