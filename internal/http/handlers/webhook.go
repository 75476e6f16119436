package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/orchestrator/internal/adapters/codehost"
	"github.com/flowforge/orchestrator/internal/http/response"
	"github.com/flowforge/orchestrator/internal/store"
)

// WebhookHandler receives GitHub's inbound status callbacks (pull
// request review, check suite, status events) and uses them only to
// wake the scheduler early; CI_WAIT and the merge gate still re-derive
// truth from codehost.Client.CheckPRStatus rather than trusting the
// webhook body, so even a correctly signed payload can at worst
// accelerate a poll, never forge a PASS. Unsigned or mis-signed
// payloads are rejected with 401 before anything is notified.
type WebhookHandler struct {
	publisher *store.Publisher
	secret    []byte
}

// NewWebhookHandler builds a WebhookHandler. A nil/empty secret makes
// every request a 501, since accepting unsigned webhooks would defeat
// the point of verifying them.
func NewWebhookHandler(publisher *store.Publisher, secret string) *WebhookHandler {
	return &WebhookHandler{publisher: publisher, secret: []byte(secret)}
}

// GitHub verifies the request's X-Hub-Signature-256 header against the
// configured webhook secret and, once verified, nudges the scheduler.
func (h *WebhookHandler) GitHub(c *gin.Context) {
	if len(h.secret) == 0 {
		response.RespondError(c, http.StatusNotImplemented, "webhook_not_configured", nil)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	sig := c.GetHeader("X-Hub-Signature-256")
	if err := codehost.VerifySignature(h.secret, body, sig); err != nil {
		response.RespondError(c, http.StatusUnauthorized, "invalid_signature", err)
		return
	}

	if h.publisher != nil {
		h.publisher.NotifyRunEnqueued(c.Request.Context())
	}
	response.RespondOK(c, gin.H{"status": "accepted"})
}
