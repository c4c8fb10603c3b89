package http

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"codenetic/internal/domain/webhook"
	"codenetic/internal/shared/apperr"
)

// WebhookHandler receives Graph webhook traffic. It is mounted without session auth.
type WebhookHandler struct {
	receiver *webhook.Receiver
	log      *zap.Logger
}

func NewWebhookHandler(receiver *webhook.Receiver, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{receiver: receiver, log: log}
}

// HandleVerify answers the subscription handshake with the challenge as plain text.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := h.receiver.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

// HandleEvent acknowledges every delivery that parses. Only malformed bodies
// fail, so new object types and fields never break delivery.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.MalformedPayload, "Failed to read webhook body", err))
		return
	}

	if h.receiver.SignatureRequired() {
		if err := h.receiver.VerifySignature(body, r.Header.Get(webhook.SignatureHeader)); err != nil {
			h.log.Warn("webhook signature rejected", zap.Error(err))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	event, err := webhook.Parse(body)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.log.Info("webhook event received",
		zap.String("object", event.Object),
		zap.Int("entries", event.Entries),
		zap.Int("changes", len(event.Changes)),
	)
	h.receiver.Dispatch(r.Context(), event)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
