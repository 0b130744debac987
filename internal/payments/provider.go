package payments

import (
	"context"
	"errors"

	domain "github.com/studiobook/api/internal/domain"
)

// ErrAccountNotFound indicates the processor has no record of the payout account.
var ErrAccountNotFound = errors.New("payments: payout account not found")

// AccountStatusProvider fetches the creative's payout account snapshot from
// the payment processor. The snapshot is read on demand for a single approval
// attempt and never cached here.
type AccountStatusProvider interface {
	GetPayoutAccountStatus(ctx context.Context, accountID string) (domain.PayoutAccountStatus, error)
}

// AccountStatusFunc adapts a function to the AccountStatusProvider interface.
type AccountStatusFunc func(ctx context.Context, accountID string) (domain.PayoutAccountStatus, error)

// GetPayoutAccountStatus implements AccountStatusProvider.
func (f AccountStatusFunc) GetPayoutAccountStatus(ctx context.Context, accountID string) (domain.PayoutAccountStatus, error) {
	return f(ctx, accountID)
}
