package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/studiobook/api/internal/domain"
)

const defaultMaxDeliverableBytes = int64(10 * 1024 * 1024)

var (
	// ErrFileTooLarge indicates a deliverable exceeds the size ceiling. The
	// whole batch is aborted before anything is uploaded.
	ErrFileTooLarge = errors.New("finalization: file too large")
	// ErrUploadFailed wraps storage failures during the batch upload.
	ErrUploadFailed = errors.New("finalization: upload failed")
	// ErrFinalizationCommandFailed wraps failures from the finalize endpoint.
	ErrFinalizationCommandFailed = errors.New("finalization: command failed")
)

// FinalizationServiceDeps bundles collaborators for the finalization coordinator.
type FinalizationServiceDeps struct {
	Orders       OrderService
	Storage      FileStorage
	Commands     OrderCommandService
	MaxFileBytes int64
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type finalizationService struct {
	orders       OrderService
	storage      FileStorage
	commands     OrderCommandService
	maxFileBytes int64
	logger       func(context.Context, string, map[string]any)
}

// NewFinalizationService wires the deliverable upload coordinator.
func NewFinalizationService(deps FinalizationServiceDeps) (FinalizationService, error) {
	if deps.Orders == nil {
		return nil, errors.New("finalization service: order service is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("finalization service: file storage is required")
	}
	if deps.Commands == nil {
		return nil, errors.New("finalization service: command service is required")
	}
	if deps.MaxFileBytes < 0 {
		return nil, errors.New("finalization service: max file bytes must not be negative")
	}

	ceiling := deps.MaxFileBytes
	if ceiling == 0 {
		ceiling = defaultMaxDeliverableBytes
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &finalizationService{
		orders:       deps.Orders,
		storage:      deps.Storage,
		commands:     deps.Commands,
		maxFileBytes: ceiling,
		logger:       logger,
	}, nil
}

// Finalize validates the batch, uploads it in a single storage call, issues
// the finalize command with the returned metadata, and completes the order.
// Any failure leaves the order in_progress; the call is safe to retry with
// the same file set.
func (s *finalizationService) Finalize(ctx context.Context, cmd FinalizeOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.OrderStatusComplete {
		return order, nil
	}
	if order.Status != domain.OrderStatusInProgress {
		return domain.Order{}, fmt.Errorf("%w: cannot finalize order in status %q", ErrOrderInvalidState, order.Status)
	}

	for _, file := range cmd.Files {
		if file.SizeBytes > s.maxFileBytes {
			return domain.Order{}, fmt.Errorf("%w: %s is %d bytes, ceiling is %d", ErrFileTooLarge, file.Name, file.SizeBytes, s.maxFileBytes)
		}
	}

	var delivered []domain.DeliveredFile
	if len(cmd.Files) > 0 {
		delivered, err = s.storage.UploadBatch(ctx, orderID, cmd.Files)
		if err != nil {
			s.logger(ctx, "order.finalize.upload.failed", map[string]any{
				"order": orderID,
				"files": len(cmd.Files),
				"error": err.Error(),
			})
			return domain.Order{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
	}

	if err := s.commands.FinalizeService(ctx, orderID, delivered); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrFinalizationCommandFailed, err)
	}

	return s.orders.CompleteOrder(ctx, CompleteOrderCommand{
		OrderID:      orderID,
		ActorID:      cmd.ActorID,
		Deliverables: delivered,
	})
}
