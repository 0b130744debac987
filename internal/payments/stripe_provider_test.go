package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubAccountAPI struct {
	getFn func(id string, params *stripe.AccountParams) (*stripe.Account, error)
}

func (s *stubAccountAPI) GetByID(id string, params *stripe.AccountParams) (*stripe.Account, error) {
	if s.getFn != nil {
		return s.getFn(id, params)
	}
	return nil, errors.New("not implemented")
}

func TestStripeProviderNormalisesCapabilities(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Accounts: &stubAccountAPI{
			getFn: func(id string, _ *stripe.AccountParams) (*stripe.Account, error) {
				if id != "acct_1" {
					t.Fatalf("unexpected account id %s", id)
				}
				return &stripe.Account{DetailsSubmitted: true, PayoutsEnabled: true}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	status, err := provider.GetPayoutAccountStatus(context.Background(), "acct_1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if !status.Connected || !status.PayoutsEnabled {
		t.Fatalf("expected fully enabled account, got %+v", status)
	}
}

func TestStripeProviderMissingAccountIDIsDisconnected(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Accounts: &stubAccountAPI{
			getFn: func(string, *stripe.AccountParams) (*stripe.Account, error) {
				t.Fatalf("fetch must not run without an account id")
				return nil, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	status, err := provider.GetPayoutAccountStatus(context.Background(), "  ")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Connected || status.PayoutsEnabled {
		t.Fatalf("expected disconnected snapshot, got %+v", status)
	}
}

func TestStripeProviderMapsMissingAccount(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Accounts: &stubAccountAPI{
			getFn: func(string, *stripe.AccountParams) (*stripe.Account, error) {
				return nil, &stripe.Error{HTTPStatusCode: 404}
			},
		},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.GetPayoutAccountStatus(context.Background(), "acct_gone")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestNewStripeProviderRequiresKeyOrClients(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected configuration error")
	}
}
