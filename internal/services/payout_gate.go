package services

import (
	"context"
	"errors"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/payments"
)

// PayoutGateDeps bundles collaborators for the payout eligibility gate.
type PayoutGateDeps struct {
	Accounts payments.AccountStatusProvider
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type payoutGate struct {
	accounts payments.AccountStatusProvider
	logger   func(context.Context, string, map[string]any)
}

// NewPayoutEligibilityGate wires the gate over an account status provider.
func NewPayoutEligibilityGate(deps PayoutGateDeps) (PayoutEligibilityGate, error) {
	if deps.Accounts == nil {
		return nil, errors.New("payout gate: account status provider is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &payoutGate{accounts: deps.Accounts, logger: logger}, nil
}

// CheckEligibility applies only to the approval transition. Free bookings pass
// without touching the provider; a failed status fetch blocks the approval
// rather than assuming eligibility.
func (g *payoutGate) CheckEligibility(ctx context.Context, order domain.Order) (domain.Eligibility, error) {
	if order.Price == 0 {
		return domain.Eligible(), nil
	}

	status, err := g.accounts.GetPayoutAccountStatus(ctx, order.PayoutAccountID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Eligibility{}, err
		}
		// A deleted Connect account is a remediation case, not a transient
		// verification failure.
		if errors.Is(err, payments.ErrAccountNotFound) {
			g.logger(ctx, "order.payout.account.missing", map[string]any{
				"order":   order.ID,
				"account": order.PayoutAccountID,
			})
			return domain.Blocked(domain.ReasonPayoutNotConfigured), nil
		}
		g.logger(ctx, "order.payout.check.failed", map[string]any{
			"order":   order.ID,
			"account": order.PayoutAccountID,
			"error":   err.Error(),
		})
		return domain.Blocked(domain.ReasonAccountCheckFailed), nil
	}

	if !status.Connected || !status.PayoutsEnabled {
		return domain.Blocked(domain.ReasonPayoutNotConfigured), nil
	}

	return domain.Eligible(), nil
}
