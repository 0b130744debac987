package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/studiobook/api/internal/domain"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeAccountAPI interface {
	GetByID(id string, params *stripe.AccountParams) (*stripe.Account, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Accounts stripeAccountAPI
}

// StripeProvider resolves payout account status from Stripe Connect accounts.
type StripeProvider struct {
	accounts stripeAccountAPI
	clock    func() time.Time
	logger   StripeLogger
}

// NewStripeProvider constructs a Stripe AccountStatusProvider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Accounts == nil {
		return nil, errors.New("stripe: api key is required")
	}

	accounts := cfg.Accounts
	if accounts == nil {
		sc := client.New(apiKey, cfg.Backends)
		accounts = sc.Accounts
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		accounts: accounts,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetPayoutAccountStatus fetches the Connect account and normalises its capability flags.
func (p *StripeProvider) GetPayoutAccountStatus(ctx context.Context, accountID string) (domain.PayoutAccountStatus, error) {
	if p == nil || p.accounts == nil {
		return domain.PayoutAccountStatus{}, errors.New("stripe: provider is nil")
	}

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		// No connected account on file: report disconnected rather than erroring,
		// so the gate blocks with a remediation reason instead of failing.
		return domain.PayoutAccountStatus{}, nil
	}

	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := p.accounts.GetByID(accountID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return domain.PayoutAccountStatus{}, ErrAccountNotFound
		}
		p.logger(ctx, "stripe.account.fetch.failed", map[string]any{
			"account": accountID,
			"error":   err.Error(),
		})
		return domain.PayoutAccountStatus{}, err
	}

	status := domain.PayoutAccountStatus{
		Connected:      account.DetailsSubmitted,
		PayoutsEnabled: account.PayoutsEnabled,
	}

	p.logger(ctx, "stripe.account.fetched", map[string]any{
		"account":        accountID,
		"connected":      status.Connected,
		"payoutsEnabled": status.PayoutsEnabled,
		"at":             p.clock(),
	})

	return status, nil
}
