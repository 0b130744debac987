package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studiobook/api/internal/platform/httpx"
	"github.com/studiobook/api/internal/services"
)

type paymentWebhookRequest struct {
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	PaymentID string `json:"payment_id"`
}

// WebhookHandlers receives callbacks from the external payment processor.
type WebhookHandlers struct {
	orders services.OrderService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentConfirmed)
}

// paymentConfirmed applies a payment confirmation to the order ledger. The
// processor retries deliveries, so downstream state advancement tolerates
// repeated notifications for already-covered amounts.
func (h *WebhookHandlers) paymentConfirmed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req paymentWebhookRequest
	if !decodeOptionalBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RecordPayment(ctx, services.RecordPaymentCommand{
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
