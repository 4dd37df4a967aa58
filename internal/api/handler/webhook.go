package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/payment-bridge/internal/service"
	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

// WebhookHandler receives asynchronous notifications from the gateway partner.
type WebhookHandler struct {
	svc *service.WebhookService
}

func NewWebhookHandler(svc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlePayout handles POST /webhook/payout and its /webhook/payraizen alias.
// Unknown external ids are acknowledged so the partner stops retrying.
func (h *WebhookHandler) HandlePayout(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Reconcile(r.Context(), body)
	if err != nil {
		var merr *service.MalformedNotificationError
		if errors.As(err, &merr) {
			zap.L().Warn("webhook payload rejected", zap.String("reason", merr.Reason))
			RespondJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "Invalid payload"})
			return
		}
		zap.L().Error("webhook reconcile failed", zap.Error(err))
		RespondJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error", Message: "Internal Server Error"})
		return
	}
	if !res.Matched {
		RespondJSON(w, http.StatusOK, webhookResponse{Status: "accepted", Message: "Payout not found but webhook received"})
		return
	}
	RespondJSON(w, http.StatusOK, webhookResponse{Status: "success", Message: "Payout updated"})
}

// HandlePayin handles POST /webhook/payin.
func (h *WebhookHandler) HandlePayin(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readVerified(w, r)
	if !ok {
		return
	}
	h.svc.AcknowledgePayin(r.Context(), body)
	RespondJSON(w, http.StatusOK, webhookResponse{Status: "success", Message: "Payin webhook received"})
}

func (h *WebhookHandler) readVerified(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := readBody(w, r)
	if err != nil {
		zap.L().Warn("read webhook body failed", zap.Error(err))
		RespondJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "Failed to read request body"})
		return nil, false
	}
	if !h.svc.VerifySignature(body, r.Header.Get(signatureHeader)) {
		zap.L().Warn("webhook signature rejected", zap.String("path", r.URL.Path))
		RespondJSON(w, http.StatusUnauthorized, webhookResponse{Status: "error", Message: "Invalid signature"})
		return nil, false
	}
	return body, true
}
