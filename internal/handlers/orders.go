package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/platform/auth"
	"github.com/studiobook/api/internal/platform/httpx"
	"github.com/studiobook/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 4 * 1024
	maxFinalizeFormSize  = 64 * 1024 * 1024
)

var errBodyTooLarge = errors.New("request body too large")

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPendingApproval: {},
	domain.OrderStatusAwaitingPayment: {},
	domain.OrderStatusInProgress:      {},
	domain.OrderStatusComplete:        {},
	domain.OrderStatusCanceled:        {},
	domain.OrderStatusRejected:        {},
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

type cancelOrderRequest struct {
	Reason     string `json:"reason"`
	CanceledBy string `json:"canceled_by"`
}

// OrderHandlers exposes the booking lifecycle endpoints.
type OrderHandlers struct {
	authn        *auth.Authenticator
	orders       services.OrderService
	finalization services.FinalizationService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, finalization services.FinalizationService) *OrderHandlers {
	return &OrderHandlers{
		authn:        authn,
		orders:       orders,
		finalization: finalization,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/breakdown", h.getBreakdown)
	r.Post("/{orderID}:approve", h.approveOrder)
	r.Post("/{orderID}:reject", h.rejectOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:finalize", h.finalizeOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	var statuses []domain.OrderStatus
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			status, ok := parseOrderStatus(value)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}

	var dateRange domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}

	filter := services.OrderListFilter{
		Status:    statuses,
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	// Staff may scope freely; everyone else only sees their own side of the
	// marketplace.
	switch {
	case identity.HasRole(auth.RoleStaff):
		filter.CreativeID = strings.TrimSpace(query.Get("creative_id"))
		filter.ClientID = strings.TrimSpace(query.Get("client_id"))
	case identity.HasRole(auth.RoleCreative):
		filter.CreativeID = identity.UID
	default:
		filter.ClientID = identity.UID
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	httpx.WriteJSON(w, http.StatusOK, buildBreakdownPayload(order))
}

func (h *OrderHandlers) approveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !canManage(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the creative can approve this order", http.StatusForbidden))
		return
	}

	result, err := h.orders.Approve(ctx, services.ApproveOrderCommand{
		OrderID: order.ID,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !result.Eligibility.Eligible {
		httpx.WriteError(ctx, w, httpx.NewError("approval_blocked", "payout account is not ready to receive funds", http.StatusConflict).
			WithDetails(map[string]any{"reason": string(result.Eligibility.Reason)}))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(result.Order)})
}

func (h *OrderHandlers) rejectOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req rejectOrderRequest
	if !decodeOptionalBody(ctx, w, r, &req) {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !canManage(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the creative can reject this order", http.StatusForbidden))
		return
	}

	rejected, err := h.orders.Reject(ctx, services.RejectOrderCommand{
		OrderID: order.ID,
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(rejected)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if !decodeOptionalBody(ctx, w, r, &req) {
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}

	canceledBy := strings.TrimSpace(req.CanceledBy)
	if canceledBy == "" {
		switch {
		case identity.HasRole(auth.RoleStaff):
			canceledBy = "staff"
		case identity.UID == order.CreativeID:
			canceledBy = "creative"
		default:
			canceledBy = "client"
		}
	}

	canceled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    order.ID,
		ActorID:    identity.UID,
		Reason:     strings.TrimSpace(req.Reason),
		CanceledBy: canceledBy,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(canceled)})
}

func (h *OrderHandlers) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.finalization == nil {
		httpx.WriteError(ctx, w, httpx.NewError("finalization_unavailable", "finalization service unavailable", http.StatusServiceUnavailable))
		return
	}

	order, ok := h.loadVisibleOrder(ctx, w, r, identity)
	if !ok {
		return
	}
	if !canManage(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only the creative can finalize this order", http.StatusForbidden))
		return
	}

	files, err := readFinalizeFiles(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	completed, err := h.finalization.Finalize(ctx, services.FinalizeOrderCommand{
		OrderID: order.ID,
		ActorID: identity.UID,
		Files:   files,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(completed)})
}

func (h *OrderHandlers) loadVisibleOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *auth.Identity) (domain.Order, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return domain.Order{}, false
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return domain.Order{}, false
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return domain.Order{}, false
	}

	if !canView(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return domain.Order{}, false
	}

	return order, true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func canView(identity *auth.Identity, order domain.Order) bool {
	if identity.HasRole(auth.RoleStaff) {
		return true
	}
	return identity.UID == order.CreativeID || identity.UID == order.ClientID
}

func canManage(identity *auth.Identity, order domain.Order) bool {
	return identity.HasRole(auth.RoleStaff) || identity.UID == order.CreativeID
}

func decodeOptionalBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOrderBodySize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if int64(len(body)) > maxOrderBodySize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", errBodyTooLarge.Error(), http.StatusRequestEntityTooLarge))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readFinalizeFiles(r *http.Request) ([]domain.LocalFile, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		// Finalization without deliverables arrives as an empty POST.
		return nil, nil
	}

	if err := r.ParseMultipartForm(maxFinalizeFormSize); err != nil {
		return nil, errors.New("invalid multipart body")
	}
	if r.MultipartForm == nil {
		return nil, nil
	}

	var files []domain.LocalFile
	for _, header := range r.MultipartForm.File["files"] {
		part, err := header.Open()
		if err != nil {
			return nil, errors.New("unreadable file part")
		}
		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, errors.New("unreadable file part")
		}
		files = append(files, domain.LocalFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			SizeBytes:   int64(len(content)),
			Content:     content,
		})
	}
	return files, nil
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
	Price         int64  `json:"price"`
	PaymentOption string `json:"payment_option"`
	AmountPaid    int64  `json:"amount_paid"`
	BookingDate   string `json:"booking_date,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string                 `json:"id"`
	OrderNumber   string                 `json:"order_number"`
	CreativeID    string                 `json:"creative_id"`
	ClientID      string                 `json:"client_id"`
	ServiceRef    string                 `json:"service_ref,omitempty"`
	Status        string                 `json:"status"`
	Currency      string                 `json:"currency"`
	Price         int64                  `json:"price"`
	PaymentOption string                 `json:"payment_option"`
	Breakdown     breakdownPayload       `json:"breakdown"`
	BookingDate   string                 `json:"booking_date,omitempty"`
	Deliverables  []deliverablePayload   `json:"deliverables,omitempty"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	CanceledBy    string                 `json:"canceled_by,omitempty"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
	UpdatedAt     string                 `json:"updated_at,omitempty"`
	ApprovedAt    string                 `json:"approved_at,omitempty"`
	RejectedAt    string                 `json:"rejected_at,omitempty"`
	CanceledAt    string                 `json:"canceled_at,omitempty"`
	CompletedAt   string                 `json:"completed_at,omitempty"`
}

type breakdownPayload struct {
	DepositAmount    int64 `json:"deposit_amount"`
	RemainingAmount  int64 `json:"remaining_amount"`
	AmountDueNow     int64 `json:"amount_due_now"`
	AmountPaid       int64 `json:"amount_paid"`
	AmountRemaining  int64 `json:"amount_remaining"`
	DisplayRemaining int64 `json:"display_remaining"`
	DepositSatisfied bool  `json:"deposit_satisfied"`
	IsFree           bool  `json:"is_free"`
}

type deliverablePayload struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Price:         order.Price,
		PaymentOption: string(order.PaymentOption),
		AmountPaid:    order.AmountPaid,
		BookingDate:   formatOptionalTime(order.BookingDate),
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CreativeID:    order.CreativeID,
		ClientID:      order.ClientID,
		ServiceRef:    order.ServiceRef,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Price:         order.Price,
		PaymentOption: string(order.PaymentOption),
		Breakdown:     buildBreakdownPayload(order),
		BookingDate:   formatOptionalTime(order.BookingDate),
		Metadata:      order.Metadata,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     order.UpdatedAt.UTC().Format(time.RFC3339),
		ApprovedAt:    formatOptionalTime(order.ApprovedAt),
		RejectedAt:    formatOptionalTime(order.RejectedAt),
		CanceledAt:    formatOptionalTime(order.CanceledAt),
		CompletedAt:   formatOptionalTime(order.CompletedAt),
	}
	if order.CancelReason != nil {
		payload.CancelReason = *order.CancelReason
	}
	if order.CanceledBy != nil {
		payload.CanceledBy = *order.CanceledBy
	}
	for _, file := range order.Deliverables {
		payload.Deliverables = append(payload.Deliverables, deliverablePayload{
			FileURL:  file.URL,
			FileName: file.Name,
			FileSize: file.SizeBytes,
			FileType: file.ContentType,
		})
	}
	return payload
}

func buildBreakdownPayload(order domain.Order) breakdownPayload {
	breakdown := order.Breakdown()
	return breakdownPayload{
		DepositAmount:    breakdown.DepositAmount,
		RemainingAmount:  breakdown.RemainingAmount,
		AmountDueNow:     breakdown.AmountDueNow,
		AmountPaid:       breakdown.AmountPaid,
		AmountRemaining:  breakdown.AmountRemaining,
		DisplayRemaining: breakdown.DisplayRemaining(),
		DepositSatisfied: breakdown.DepositSatisfied,
		IsFree:           breakdown.IsFree,
	}
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := validOrderStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrFileTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("file_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrUploadFailed):
		httpx.WriteError(ctx, w, httpx.NewError("upload_failed", "deliverable upload failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrFinalizationCommandFailed):
		httpx.WriteError(ctx, w, httpx.NewError("finalization_failed", "finalize command failed", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderCommandFailed):
		httpx.WriteError(ctx, w, httpx.NewError("command_failed", "order command failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
