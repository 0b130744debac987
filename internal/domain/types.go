package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PaymentOption enumerates how a service's price is collected from the client.
type PaymentOption string

const (
	// PaymentOptionUpfront collects the full price before work begins.
	PaymentOptionUpfront PaymentOption = "upfront"
	// PaymentOptionSplit collects a deposit now and the balance later.
	PaymentOptionSplit PaymentOption = "split"
	// PaymentOptionLater collects nothing until the work is delivered.
	PaymentOptionLater PaymentOption = "later"
)

// Valid reports whether the option is one of the known payment options.
func (o PaymentOption) Valid() bool {
	switch o {
	case PaymentOptionUpfront, PaymentOptionSplit, PaymentOptionLater:
		return true
	}
	return false
}

// OrderStatus enumerates valid lifecycle states for bookings.
type OrderStatus string

const (
	// OrderStatusPendingApproval indicates the booking awaits the creative's decision.
	OrderStatusPendingApproval OrderStatus = "pending_approval"
	// OrderStatusAwaitingPayment indicates the booking was approved and payment is still due.
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	// OrderStatusInProgress indicates the due amount is covered and work is underway.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusComplete indicates deliverables were finalized. Terminal.
	OrderStatusComplete OrderStatus = "complete"
	// OrderStatusCanceled indicates the booking was canceled before completion. Terminal.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusRejected indicates the creative declined the booking. Terminal.
	OrderStatusRejected OrderStatus = "rejected"
)

// Terminal reports whether no further transitions are possible from the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusComplete, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// Order is the central booking entity. Monetary amounts are minor units (cents).
// AmountPaid is mutated only by payment confirmations from the processor and
// never decreases; Status is mutated only by the order service.
type Order struct {
	ID              string
	OrderNumber     string
	CreativeID      string
	ClientID        string
	ServiceRef      string
	Price           int64
	Currency        string
	PaymentOption   PaymentOption
	AmountPaid      int64
	Status          OrderStatus
	BookingDate     *time.Time
	SplitDeposit    *int64
	PayoutAccountID string
	Deliverables    []DeliveredFile
	CancelReason    *string
	CanceledBy      *string
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	CanceledAt      *time.Time
	CompletedAt     *time.Time
}

// Breakdown recomputes the payment breakdown from the order's current ledger.
func (o Order) Breakdown() PaymentBreakdown {
	return ComputeBreakdown(o.PaymentOption, o.Price, o.AmountPaid, o.SplitDeposit)
}

// PayoutAccountStatus is a read-only snapshot of the creative's account with
// the payment processor, fetched on demand for a single approval attempt.
type PayoutAccountStatus struct {
	Connected      bool
	PayoutsEnabled bool
}

// LocalFile describes a deliverable selected by the creative before upload.
type LocalFile struct {
	Name        string
	ContentType string
	SizeBytes   int64
	Content     []byte
}

// DeliveredFile records stored deliverable metadata returned by file storage.
type DeliveredFile struct {
	URL         string
	Name        string
	SizeBytes   int64
	ContentType string
}

// EligibilityReason explains why an approval attempt was blocked.
type EligibilityReason string

const (
	// ReasonAccountCheckFailed means the payout-status fetch could not complete.
	ReasonAccountCheckFailed EligibilityReason = "account_check_failed"
	// ReasonPayoutNotConfigured means the account is not ready to receive funds.
	ReasonPayoutNotConfigured EligibilityReason = "payout_not_configured"
)

// Eligibility is the outcome of the payout eligibility gate.
type Eligibility struct {
	Eligible bool
	Reason   EligibilityReason
}

// Eligible is the unconditional positive gate outcome.
func Eligible() Eligibility {
	return Eligibility{Eligible: true}
}

// Blocked builds a negative gate outcome carrying the remediation reason.
func Blocked(reason EligibilityReason) Eligibility {
	return Eligibility{Eligible: false, Reason: reason}
}
