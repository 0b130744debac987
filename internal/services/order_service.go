package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/platform/cache"
	"github.com/studiobook/api/internal/repositories"
)

const (
	orderEventApproved        = "order.approved"
	orderEventStatusChanged   = "order.status.changed"
	orderEventPaymentRecorded = "order.payment.recorded"
	orderEventCompleted       = "order.completed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderCommandFailed wraps failures from the external command endpoint.
	ErrOrderCommandFailed = errors.New("order: command failed")
)

var orderStateTransitions = map[string][]string{
	string(domain.OrderStatusPendingApproval): {
		string(domain.OrderStatusAwaitingPayment),
		string(domain.OrderStatusInProgress),
		string(domain.OrderStatusRejected),
		string(domain.OrderStatusCanceled),
	},
	string(domain.OrderStatusAwaitingPayment): {
		string(domain.OrderStatusInProgress),
		string(domain.OrderStatusCanceled),
	},
	string(domain.OrderStatusInProgress): {
		string(domain.OrderStatusComplete),
		string(domain.OrderStatusCanceled),
	},
}

var cancellableStatuses = []string{
	string(domain.OrderStatusPendingApproval),
	string(domain.OrderStatusAwaitingPayment),
	string(domain.OrderStatusInProgress),
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Gate       PayoutEligibilityGate
	Commands   OrderCommandService
	UnitOfWork repositories.UnitOfWork
	Cache      *cache.TTLCache[domain.Order]
	Clock      func() time.Time
	Events     OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	gate       PayoutEligibilityGate
	commands   OrderCommandService
	unitOfWork repositories.UnitOfWork
	cache      *cache.TTLCache[domain.Order]
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("order service: payout eligibility gate is required")
	}
	if deps.Commands == nil {
		return nil, errors.New("order service: command service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		gate:       deps.Gate,
		commands:   deps.Commands,
		unitOfWork: unit,
		cache:      deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	if cached, ok := s.cache.Get(orderID); ok {
		return cached, nil
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.cache.Set(orderID, order)
	return order, nil
}

// Approve runs the payout eligibility guard before issuing the approve
// command. A blocked result is returned for caller remediation with zero
// commands issued; it is not an error and is never retried here.
func (s *orderService) Approve(ctx context.Context, cmd ApproveOrderCommand) (ApprovalResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return ApprovalResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ApprovalResult{}, s.mapRepositoryError(err)
	}

	if order.Status != domain.OrderStatusPendingApproval {
		return ApprovalResult{}, fmt.Errorf("%w: cannot approve order in status %q", ErrOrderInvalidState, order.Status)
	}

	eligibility, err := s.gate.CheckEligibility(ctx, order)
	if err != nil {
		return ApprovalResult{}, err
	}
	if !eligibility.Eligible {
		s.logger(ctx, "order.approve.blocked", map[string]any{
			"order":  order.ID,
			"reason": string(eligibility.Reason),
		})
		return ApprovalResult{Order: order, Eligibility: eligibility}, nil
	}

	if err := s.commands.ApproveOrder(ctx, order.ID); err != nil {
		return ApprovalResult{}, fmt.Errorf("%w: approve: %v", ErrOrderCommandFailed, err)
	}

	// The command has been accepted; from here the transition is committed
	// even if the caller goes away.
	now := s.now()
	prevStatus := order.Status

	target := domain.OrderStatusAwaitingPayment
	breakdown := order.Breakdown()
	if breakdown.IsFree || order.AmountPaid >= breakdown.AmountDueNow {
		target = domain.OrderStatusInProgress
	}

	if err := s.applyStatusTransition(&order, target, now); err != nil {
		return ApprovalResult{}, err
	}
	order.ApprovedAt = &now

	if err := s.persist(ctx, order); err != nil {
		return ApprovalResult{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventApproved,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
	})

	return ApprovalResult{Order: order, Eligibility: eligibility}, nil
}

// Reject declines a pending booking. Rejecting an already rejected order is a
// no-op success and issues no second command.
func (s *orderService) Reject(ctx context.Context, cmd RejectOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusRejected {
		return order, nil
	}
	if order.Status != domain.OrderStatusPendingApproval {
		return domain.Order{}, fmt.Errorf("%w: cannot reject order in status %q", ErrOrderInvalidState, order.Status)
	}

	reason := strings.TrimSpace(cmd.Reason)
	if err := s.commands.RejectOrder(ctx, order.ID, reason); err != nil {
		return domain.Order{}, fmt.Errorf("%w: reject: %v", ErrOrderCommandFailed, err)
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, domain.OrderStatusRejected, now); err != nil {
		return domain.Order{}, err
	}
	order.RejectedAt = &now
	order.CancelReason = optionalString(reason)

	if err := s.persist(ctx, order); err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       reasonMetadata(reason),
	})

	return order, nil
}

// Cancel moves any non-terminal booking to canceled. Canceling an already
// canceled order is a no-op success.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusCanceled {
		return order, nil
	}
	if !slices.Contains(cancellableStatuses, string(order.Status)) {
		return domain.Order{}, fmt.Errorf("%w: order status %q cannot be canceled", ErrOrderInvalidState, order.Status)
	}

	reason := strings.TrimSpace(cmd.Reason)
	canceledBy := strings.TrimSpace(cmd.CanceledBy)
	if err := s.commands.CancelOrder(ctx, order.ID, reason, canceledBy); err != nil {
		return domain.Order{}, fmt.Errorf("%w: cancel: %v", ErrOrderCommandFailed, err)
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, domain.OrderStatusCanceled, now); err != nil {
		return domain.Order{}, err
	}
	order.CanceledAt = &now
	order.CancelReason = optionalString(reason)
	order.CanceledBy = optionalString(canceledBy)

	if err := s.persist(ctx, order); err != nil {
		return domain.Order{}, err
	}

	metadata := reasonMetadata(reason)
	if canceledBy != "" {
		metadata = ensureMap(metadata)
		metadata["canceledBy"] = canceledBy
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

// RecordPayment applies an external payment confirmation. The paid ledger is
// monotonically non-decreasing; an awaiting_payment order advances to
// in_progress once the due-now amount is covered.
func (s *orderService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Amount <= 0 {
		return domain.Order{}, fmt.Errorf("%w: payment amount must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status.Terminal() {
		return domain.Order{}, fmt.Errorf("%w: cannot record payment for order in status %q", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	prevStatus := order.Status

	order.AmountPaid += cmd.Amount
	order.UpdatedAt = now

	if order.Status == domain.OrderStatusAwaitingPayment {
		if breakdown := order.Breakdown(); order.AmountPaid >= breakdown.AmountDueNow {
			if err := s.applyStatusTransition(&order, domain.OrderStatusInProgress, now); err != nil {
				return domain.Order{}, err
			}
		}
	}

	if err := s.persist(ctx, order); err != nil {
		return domain.Order{}, err
	}

	metadata := map[string]any{"amount": cmd.Amount}
	if payment := strings.TrimSpace(cmd.PaymentID); payment != "" {
		metadata["paymentId"] = payment
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventPaymentRecorded,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return order, nil
}

// CompleteOrder closes out an in-progress booking after finalization. Calling
// it again on an already complete order is a no-op success so retried
// finalizations stay safe.
func (s *orderService) CompleteOrder(ctx context.Context, cmd CompleteOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusComplete {
		return order, nil
	}
	if order.Status != domain.OrderStatusInProgress {
		return domain.Order{}, fmt.Errorf("%w: cannot complete order in status %q", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	prevStatus := order.Status

	if err := s.applyStatusTransition(&order, domain.OrderStatusComplete, now); err != nil {
		return domain.Order{}, err
	}
	order.CompletedAt = &now
	order.Deliverables = slices.Clone(cmd.Deliverables)

	if err := s.persist(ctx, order); err != nil {
		return domain.Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCompleted,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(prevStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       map[string]any{"deliverables": len(order.Deliverables)},
	})

	return order, nil
}

func (s *orderService) applyStatusTransition(order *domain.Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if current == target {
		order.UpdatedAt = now
		return nil
	}
	if !canTransition(string(current), string(target)) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}
	order.Status = target
	order.UpdatedAt = now
	return nil
}

func (s *orderService) persist(ctx context.Context, order domain.Order) error {
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(order.ID)
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func reasonMetadata(reason string) map[string]any {
	if reason == "" {
		return nil
	}
	return map[string]any{"reason": reason}
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func canTransition(current, target string) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
