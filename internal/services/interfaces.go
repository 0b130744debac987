package services

import (
	"context"
	"time"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/repositories"
)

// OrderListFilter narrows order listings for dashboard views.
type OrderListFilter = repositories.OrderListFilter

// ApproveOrderCommand requests approval of a pending booking.
type ApproveOrderCommand struct {
	OrderID string
	ActorID string
}

// ApprovalResult carries the approval outcome. When Eligibility is blocked the
// order is returned unchanged and no command has been issued.
type ApprovalResult struct {
	Order       domain.Order
	Eligibility domain.Eligibility
}

// RejectOrderCommand declines a pending booking.
type RejectOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// CancelOrderCommand cancels a non-terminal booking. CanceledBy is advisory
// metadata describing the cancellation source, not a distinct state.
type CancelOrderCommand struct {
	OrderID    string
	ActorID    string
	Reason     string
	CanceledBy string
}

// RecordPaymentCommand applies an external payment confirmation.
type RecordPaymentCommand struct {
	OrderID   string
	Amount    int64
	PaymentID string
}

// CompleteOrderCommand attaches delivered files and closes out the booking.
type CompleteOrderCommand struct {
	OrderID      string
	ActorID      string
	Deliverables []domain.DeliveredFile
}

// FinalizeOrderCommand uploads deliverables and completes an in-progress booking.
type FinalizeOrderCommand struct {
	OrderID string
	ActorID string
	Files   []domain.LocalFile
}

// OrderService governs the booking lifecycle.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	Approve(ctx context.Context, cmd ApproveOrderCommand) (ApprovalResult, error)
	Reject(ctx context.Context, cmd RejectOrderCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Order, error)
	CompleteOrder(ctx context.Context, cmd CompleteOrderCommand) (domain.Order, error)
}

// FinalizationService coordinates deliverable upload and order completion.
type FinalizationService interface {
	Finalize(ctx context.Context, cmd FinalizeOrderCommand) (domain.Order, error)
}

// PayoutEligibilityGate decides whether an approval may proceed.
type PayoutEligibilityGate interface {
	CheckEligibility(ctx context.Context, order domain.Order) (domain.Eligibility, error)
}

// OrderCommandService is the external endpoint that executes lifecycle
// commands. Idempotency of the underlying endpoints is its contract.
type OrderCommandService interface {
	ApproveOrder(ctx context.Context, orderID string) error
	RejectOrder(ctx context.Context, orderID string, reason string) error
	CancelOrder(ctx context.Context, orderID string, reason string, canceledBy string) error
	FinalizeService(ctx context.Context, orderID string, files []domain.DeliveredFile) error
}

// FileStorage stores a finalization batch in a single call.
type FileStorage interface {
	UploadBatch(ctx context.Context, orderID string, files []domain.LocalFile) ([]domain.DeliveredFile, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}
