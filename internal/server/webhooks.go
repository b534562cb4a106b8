package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	webhookdomain "github.com/tipwave/tipwave/internal/webhook/domain"
)

// SignatureHeader carries the `t=<unix>,v1=<sig>` webhook signature.
const SignatureHeader = "Webhook-Signature"

// handleWebhook always acks with 200 once the signature checks out, so
// a downstream processing failure never triggers a provider retry
// storm; those failures are only logged. Signature problems are the
// exception: 400 for a bad signature, 500 for a missing secret.
func (s *Server) handleWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err = s.reconciler.Process(c.Request.Context(), provider, payload, c.GetHeader(SignatureHeader))
	switch {
	case err == nil:
		s.metrics.ObserveWebhook(provider, "processed")
	case errors.Is(err, webhookdomain.ErrDuplicateEvent):
		s.metrics.ObserveWebhook(provider, "duplicate")
	case errors.Is(err, webhookdomain.ErrInvalidSignature):
		s.metrics.ObserveWebhook(provider, "invalid_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	case errors.Is(err, webhookdomain.ErrSecretUnconfigured):
		s.metrics.ObserveWebhook(provider, "secret_unconfigured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook_secret_unconfigured"})
		return
	default:
		s.metrics.ObserveWebhook(provider, "error")
		s.log.Error("webhook processing failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
