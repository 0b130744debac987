package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/platform/auth"
	"github.com/studiobook/api/internal/services"
)

type stubOrderService struct {
	listFn     func(context.Context, services.OrderListFilter) (domain.CursorPage[domain.Order], error)
	getFn      func(context.Context, string) (domain.Order, error)
	approveFn  func(context.Context, services.ApproveOrderCommand) (services.ApprovalResult, error)
	rejectFn   func(context.Context, services.RejectOrderCommand) (domain.Order, error)
	cancelFn   func(context.Context, services.CancelOrderCommand) (domain.Order, error)
	paymentFn  func(context.Context, services.RecordPaymentCommand) (domain.Order, error)
	completeFn func(context.Context, services.CompleteOrderCommand) (domain.Order, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Approve(ctx context.Context, cmd services.ApproveOrderCommand) (services.ApprovalResult, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, cmd)
	}
	return services.ApprovalResult{}, errors.New("not implemented")
}

func (s *stubOrderService) Reject(ctx context.Context, cmd services.RejectOrderCommand) (domain.Order, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RecordPayment(ctx context.Context, cmd services.RecordPaymentCommand) (domain.Order, error) {
	if s.paymentFn != nil {
		return s.paymentFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) CompleteOrder(ctx context.Context, cmd services.CompleteOrderCommand) (domain.Order, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubFinalizationService struct {
	finalizeFn func(context.Context, services.FinalizeOrderCommand) (domain.Order, error)
}

func (s *stubFinalizationService) Finalize(ctx context.Context, cmd services.FinalizeOrderCommand) (domain.Order, error) {
	if s.finalizeFn != nil {
		return s.finalizeFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "SB-2026-000042",
		CreativeID:    "usr_creative",
		ClientID:      "usr_client",
		Price:         20000,
		Currency:      "usd",
		PaymentOption: domain.PaymentOptionSplit,
		AmountPaid:    10000,
		Status:        domain.OrderStatusPendingApproval,
	}
}

func newOrderRouter(orders services.OrderService, finalization services.FinalizationService) chi.Router {
	h := NewOrderHandlers(nil, orders, finalization)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func serveAs(t *testing.T, router chi.Router, req *http.Request, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req.WithContext(auth.WithIdentity(req.Context(), identity)))
	return rec
}

func creativeIdentity() *auth.Identity {
	return &auth.Identity{UID: "usr_creative", Roles: []string{auth.RoleCreative}}
}

func clientIdentity() *auth.Identity {
	return &auth.Identity{UID: "usr_client", Roles: []string{auth.RoleClient}}
}

func TestListOrdersScopesCreativeToOwnBookings(t *testing.T) {
	var captured services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{sampleOrder()}}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodGet, "/?status=pending_approval&page_size=5", nil)
	rec := serveAs(t, router, req, creativeIdentity())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.CreativeID != "usr_creative" {
		t.Fatalf("expected list scoped to creative, got %q", captured.CreativeID)
	}
	if captured.ClientID != "" {
		t.Fatalf("expected empty client filter, got %q", captured.ClientID)
	}
	if len(captured.Status) != 1 || captured.Status[0] != domain.OrderStatusPendingApproval {
		t.Fatalf("unexpected status filter %+v", captured.Status)
	}
	if captured.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", captured.Pagination.PageSize)
	}
}

func TestGetOrderIncludesBreakdown(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rec := serveAs(t, router, req, clientIdentity())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Order struct {
			Breakdown breakdownPayload `json:"breakdown"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	breakdown := resp.Order.Breakdown
	if breakdown.DepositAmount != 10000 {
		t.Fatalf("expected deposit 10000, got %d", breakdown.DepositAmount)
	}
	if !breakdown.DepositSatisfied {
		t.Fatal("expected deposit_satisfied true")
	}
	if breakdown.DisplayRemaining != 10000 {
		t.Fatalf("expected display_remaining 10000, got %d", breakdown.DisplayRemaining)
	}
}

func TestGetOrderHiddenFromStrangers(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	rec := serveAs(t, router, req, &auth.Identity{UID: "usr_other", Roles: []string{auth.RoleClient}})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestApproveBlockedReturnsRemediation(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
		approveFn: func(context.Context, services.ApproveOrderCommand) (services.ApprovalResult, error) {
			return services.ApprovalResult{
				Order:       sampleOrder(),
				Eligibility: domain.Blocked(domain.ReasonPayoutNotConfigured),
			}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodPost, "/ord_1:approve", nil)
	rec := serveAs(t, router, req, creativeIdentity())

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "approval_blocked" {
		t.Fatalf("expected approval_blocked, got %q", resp.Error)
	}
	if resp.Reason != string(domain.ReasonPayoutNotConfigured) {
		t.Fatalf("unexpected reason %q", resp.Reason)
	}
}

func TestApproveForbiddenForClient(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodPost, "/ord_1:approve", nil)
	rec := serveAs(t, router, req, clientIdentity())

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestApproveReturnsUpdatedOrder(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
		approveFn: func(_ context.Context, cmd services.ApproveOrderCommand) (services.ApprovalResult, error) {
			if cmd.ActorID != "usr_creative" {
				t.Fatalf("unexpected actor %q", cmd.ActorID)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusAwaitingPayment
			return services.ApprovalResult{Order: order, Eligibility: domain.Eligible()}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := httptest.NewRequest(http.MethodPost, "/ord_1:approve", nil)
	rec := serveAs(t, router, req, creativeIdentity())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.Status != string(domain.OrderStatusAwaitingPayment) {
		t.Fatalf("expected awaiting_payment, got %q", resp.Order.Status)
	}
}

func TestCancelDefaultsCanceledByRole(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			return sampleOrder(), nil
		},
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCanceled
			return order, nil
		},
	}
	router := newOrderRouter(orders, nil)

	body := bytes.NewReader([]byte(`{"reason":"schedule conflict"}`))
	req := httptest.NewRequest(http.MethodPost, "/ord_1:cancel", body)
	rec := serveAs(t, router, req, clientIdentity())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.CanceledBy != "client" {
		t.Fatalf("expected canceledBy client, got %q", captured.CanceledBy)
	}
	if captured.Reason != "schedule conflict" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
}

func TestFinalizePassesMultipartFiles(t *testing.T) {
	var captured services.FinalizeOrderCommand
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusInProgress
			return order, nil
		},
	}
	finalization := &stubFinalizationService{
		finalizeFn: func(_ context.Context, cmd services.FinalizeOrderCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusComplete
			return order, nil
		},
	}
	router := newOrderRouter(orders, finalization)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("files", "final.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("png-bytes"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/ord_1:finalize", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := serveAs(t, router, req, creativeIdentity())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(captured.Files) != 1 {
		t.Fatalf("expected one file, got %d", len(captured.Files))
	}
	if captured.Files[0].Name != "final.png" {
		t.Fatalf("unexpected file name %q", captured.Files[0].Name)
	}
	if captured.Files[0].SizeBytes != int64(len("png-bytes")) {
		t.Fatalf("unexpected size %d", captured.Files[0].SizeBytes)
	}
}

func TestFinalizeFileTooLargeMapsTo413(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (domain.Order, error) {
			order := sampleOrder()
			order.Status = domain.OrderStatusInProgress
			return order, nil
		},
	}
	finalization := &stubFinalizationService{
		finalizeFn: func(context.Context, services.FinalizeOrderCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrFileTooLarge
		},
	}
	router := newOrderRouter(orders, finalization)

	req := httptest.NewRequest(http.MethodPost, "/ord_1:finalize", nil)
	rec := serveAs(t, router, req, creativeIdentity())

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestOrdersRequireIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
