package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/ssr0016/next-rental-eq-marketplace/pkg/stripe"
)

// IntentClient exposes the subset of Stripe operations the payment service needs.
type IntentClient interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeIntentClient struct{}

// NewStripeIntentClient wraps the configured Stripe client so the payment
// service can be tested against a fake.
func NewStripeIntentClient(api *pkgstripe.Client) IntentClient {
	if api == nil {
		return nil
	}
	return &stripeIntentClient{}
}

func (c *stripeIntentClient) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}
