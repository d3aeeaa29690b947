package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/collegetrack/internal/webhook"
)

// WebhookVerifier は署名を検証してイベントを返す。
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) (*webhook.Event, error)
}

// WebhookProcessor は検証済みイベントを処理する。
type WebhookProcessor interface {
	Handle(ctx context.Context, evt *webhook.Event) error
}

// WebhookHandler はClerkのWebhookを受け付ける。
type WebhookHandler struct {
	verifier  WebhookVerifier
	processor WebhookProcessor
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(verifier WebhookVerifier, processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, processor: processor}
}

// Receive は署名検証後にイベントを処理する。
// 署名・形式不正は400、処理失敗は再送させるため500を返す。
// POST /api/webhooks/clerk
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	evt, err := h.verifier.Verify(payload, r.Header)
	if err != nil {
		slog.Warn("webhook verification failed", slog.String("error", err.Error()))
		http.Error(w, "Error verifying webhook", http.StatusBadRequest)
		return
	}

	if err := h.processor.Handle(r.Context(), evt); err != nil {
		slog.Error("webhook processing failed",
			slog.String("type", evt.Type),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Error processing webhook", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Webhook received")
}
