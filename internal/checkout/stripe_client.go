package checkout

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgstripe "github.com/angelmondragon/pawpass-backend/pkg/stripe"
)

// SessionAPI exposes the Stripe Checkout operations used by the service.
type SessionAPI interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

type stripeSessions struct {
	timeout time.Duration
}

// NewStripeSessions wraps Stripe's checkout session endpoints with the client's
// request timeout.
func NewStripeSessions(client *pkgstripe.Client) SessionAPI {
	if client == nil {
		return nil
	}
	return &stripeSessions{timeout: client.RequestTimeout()}
}

func (s *stripeSessions) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (s *stripeSessions) Get(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(id, params)
}
