package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"marketplace-payments/config"
	"marketplace-payments/internal/models"
	"marketplace-payments/internal/ratelimit"
	"marketplace-payments/internal/service"
	"marketplace-payments/internal/util"
	"marketplace-payments/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	verifier   *webhook.Verifier
	dispatcher *webhook.Dispatcher
	refunds    *service.RefundService
	payouts    *service.PayoutService
	limiter    *ratelimit.Limiter
	validator  validatorConfig
	rateCfg    rateLimitConfig
	hasSecret  bool
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cfg *config.Config,
	verifier *webhook.Verifier,
	dispatcher *webhook.Dispatcher,
	refunds *service.RefundService,
	payouts *service.PayoutService,
	limiter *ratelimit.Limiter,
) *Handler {
	return &Handler{
		verifier:   verifier,
		dispatcher: dispatcher,
		refunds:    refunds,
		payouts:    payouts,
		limiter:    limiter,
		validator: validatorConfig{
			maxBodyBytes:      cfg.Validate.MaxBodyBytes,
			honeypotField:     cfg.Validate.HoneypotField,
			minFormFillMillis: cfg.Validate.MinFormFillMillis,
		},
		rateCfg: rateLimitConfig{
			anonMax: cfg.RateLimit.AnonMaxRequests,
			authMax: cfg.RateLimit.AuthMaxRequests,
			window:  cfg.RateLimit.Window,
		},
		hasSecret: cfg.Stripe.WebhookSecret != "",
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Signature verification is the authentication mechanism for this route.
	router.POST("/webhooks/stripe", h.handleWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware(h.limiter, h.rateCfg))
	{
		v1.POST("/refunds", requireAuth(), h.createRefund)
		v1.POST("/payouts/process", requireAuth(), requireAdmin(), h.processPayout)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// handleWebhook verifies and dispatches one processor event. The raw body is
// captured before any parsing; signatures are byte-exact.
func (h *Handler) handleWebhook(c *gin.Context) {
	if !h.hasSecret {
		h.logger.Error("Webhook secret is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Webhook endpoint is not configured",
		})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.validator.maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	if err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature")); err != nil {
		util.WebhookSignatureFailures.Inc()
		h.logger.Warn("Webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid signature",
		})
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event payload",
		})
		return
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), &event)
	if err != nil {
		if svcErr, ok := service.AsError(err); ok && svcErr.Code == service.CodeNotFound {
			// Terminal business error: redelivery cannot fix a missing
			// entity, so acknowledge and log.
			h.logger.Warn("Webhook references missing entity",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.Error(err))
			c.JSON(http.StatusOK, gin.H{
				"received":   true,
				"event_id":   event.ID,
				"event_type": event.Type,
				"status":     "skipped",
			})
			return
		}

		h.logger.Error("Webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to process event",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":   true,
		"event_id":   event.ID,
		"event_type": event.Type,
		"status":     string(outcome),
	})
}

// createRefund handles authenticated refund requests
func (h *Handler) createRefund(c *gin.Context) {
	body, ok := h.validator.validateRequest(c, 0, true)
	if !ok {
		return
	}

	var req service.RefundRequest
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.TransactionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "transaction_id is required",
		})
		return
	}

	resp, err := h.refunds.Refund(c.Request.Context(), callerIdentity(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// processPayout handles admin payout requests
func (h *Handler) processPayout(c *gin.Context) {
	body, ok := h.validator.validateRequest(c, 0, true)
	if !ok {
		return
	}

	var req service.PayoutRequest
	if err := json.Unmarshal(body.Raw, &req); err != nil || req.PayoutID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "payout_id is required",
		})
		return
	}

	resp, err := h.payouts.ProcessPayout(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	if svcErr, ok := service.AsError(err); ok {
		body := gin.H{"error": svcErr.Message}
		if svcErr.Err != nil && svcErr.Code == service.CodeDependency {
			body["details"] = svcErr.Err.Error()
		}
		c.JSON(svcErr.Status, body)
		return
	}

	h.logger.Error("Unhandled service error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}
