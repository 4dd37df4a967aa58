package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/payment-bridge/internal/domain"
	"github.com/ayo6706/payment-bridge/internal/models"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"github.com/ayo6706/payment-bridge/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TransactionHandler serves the merchant API for payins and payouts.
type TransactionHandler struct {
	svc *service.TransactionService
}

func NewTransactionHandler(svc *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

type createPayoutResponse struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	TransactionID  string `json:"transaction_id"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	Message        string `json:"message"`
}

type createPayinResponse struct {
	Success        bool            `json:"success"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	GatewayData    json.RawMessage `json:"gateway_data,omitempty"`
	Message        string          `json:"message"`
}

// CreatePayout handles POST /api/payout/create.
func (h *TransactionHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var in service.PayoutInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondFailure(w, http.StatusBadRequest, failureResponse{Message: "Invalid request body", Error: err.Error()})
		return
	}

	res, err := h.svc.CreatePayout(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "payout")
		return
	}
	RespondJSON(w, http.StatusOK, createPayoutResponse{
		Success:        res.Status != domain.StatusFailed,
		Status:         string(res.Status),
		TransactionID:  res.TransactionID,
		GatewayOrderID: res.ExternalID,
		Message:        createdMessage(res.Status, "Payout initiated successfully", "Payout"),
	})
}

// CreatePayin handles POST /api/payin/create.
func (h *TransactionHandler) CreatePayin(w http.ResponseWriter, r *http.Request) {
	var in service.PayinInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondFailure(w, http.StatusBadRequest, failureResponse{Message: "Invalid request body", Error: err.Error()})
		return
	}

	res, err := h.svc.CreatePayin(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "payment")
		return
	}
	RespondJSON(w, http.StatusOK, createPayinResponse{
		Success:        res.Status != domain.StatusFailed,
		Status:         string(res.Status),
		TransactionID:  res.TransactionID,
		GatewayOrderID: res.ExternalID,
		GatewayData:    res.GatewayData,
		Message:        createdMessage(res.Status, "Payment intent created successfully", "Payment"),
	})
}

// createdMessage describes an acknowledged transaction. The record can already
// be terminal when a webhook or the stale sweeper got there before the ack.
func createdMessage(status domain.Status, initiated, noun string) string {
	switch status {
	case domain.StatusFailed:
		return noun + " was marked failed before the gateway acknowledged it"
	case domain.StatusCompleted:
		return noun + " already completed"
	default:
		return initiated
	}
}

// ListTransactions handles GET /api/transactions?kind=&status=.
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter service.ListFilter
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, ok := domain.ParseKind(raw)
		if !ok {
			respondFailure(w, http.StatusBadRequest, failureResponse{Message: "kind must be payin or payout"})
			return
		}
		filter.Kind = kind
	}
	h.list(w, r, filter)
}

// ListPayouts handles GET /api/payouts.
func (h *TransactionHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, service.ListFilter{Kind: domain.KindPayout})
}

func (h *TransactionHandler) list(w http.ResponseWriter, r *http.Request, filter service.ListFilter) {
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			respondFailure(w, http.StatusBadRequest, failureResponse{Message: "status must be one of pending, processing, completed, failed"})
			return
		}
		filter.Status = status
	}

	txs, err := h.svc.ListTransactions(r.Context(), filter)
	if err != nil {
		zap.L().Error("list transactions failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, failureResponse{Message: "Failed to fetch transactions"})
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	RespondJSON(w, http.StatusOK, txs)
}

// GetTransaction handles GET /api/transactions/{id}.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondFailure(w, http.StatusNotFound, failureResponse{Message: "Transaction not found"})
			return
		}
		zap.L().Error("get transaction failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, failureResponse{Message: "Failed to fetch transaction"})
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

func writeServiceError(w http.ResponseWriter, err error, noun string) {
	var (
		verr *service.ValidationError
		berr *service.GatewayBusinessError
		terr *service.GatewayTransportError
	)
	switch {
	case errors.As(err, &verr):
		respondFailure(w, http.StatusBadRequest, failureResponse{Message: verr.Error(), Errors: verr.Fields})
	case errors.As(err, &berr):
		respondFailure(w, http.StatusBadRequest, failureResponse{
			Message:       berr.Message,
			TransactionID: berr.TransactionID,
			GatewayError:  berr.Payload,
		})
	case errors.As(err, &terr):
		respondFailure(w, http.StatusBadGateway, failureResponse{
			Message:       "Failed to connect to " + noun + " gateway",
			TransactionID: terr.TransactionID,
			Error:         terr.Message,
		})
	default:
		zap.L().Error("create transaction failed", zap.Error(err))
		respondFailure(w, http.StatusInternalServerError, failureResponse{Message: "Internal server error"})
	}
}
