package service

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/util"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"go.uber.org/zap"
)

// PaymentDetails is the authoritative view of a payment, as reported by the
// provider.
type PaymentDetails struct {
	Amount   float64
	Currency string
	Email    string
	Name     string
}

// PaymentVerifier retrieves a payment intent by id. The order ledger treats
// it as the source of truth for amount and payer identity, but tolerates it
// being unreachable.
type PaymentVerifier interface {
	VerifyIntent(ctx context.Context, paymentIntentID string) (*PaymentDetails, error)
}

// StripeClient verifies payment intents against the Stripe API.
type StripeClient struct {
	logger *zap.Logger
}

// NewStripeClient configures the global Stripe key and returns a verifier.
// Returns nil when no key is configured, which callers treat as "verification
// unavailable, trust the client".
func NewStripeClient(secretKey string) *StripeClient {
	if secretKey == "" {
		return nil
	}
	stripe.Key = secretKey
	return &StripeClient{logger: util.GetLogger()}
}

// VerifyIntent fetches the payment intent and its latest charge to obtain
// the charged amount and the payer's billing email and name.
func (c *StripeClient) VerifyIntent(ctx context.Context, paymentIntentID string) (*PaymentDetails, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve payment intent: %v", ErrUpstreamRejected, err)
	}

	details := &PaymentDetails{
		Amount:   float64(pi.Amount) / 100,
		Currency: strings.ToUpper(string(pi.Currency)),
	}

	if pi.LatestCharge != nil && pi.LatestCharge.BillingDetails != nil {
		details.Email = pi.LatestCharge.BillingDetails.Email
		details.Name = pi.LatestCharge.BillingDetails.Name
	}

	c.logger.Info("Payment intent verified",
		zap.String("payment_intent", paymentIntentID),
		zap.Float64("amount", details.Amount))

	return details, nil
}
