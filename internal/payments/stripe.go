package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Gateway is the slice of the payment provider the quote lifecycle needs:
// hold funds when a fare is accepted, capture after the webhook confirms,
// release on rejection.
type Gateway interface {
	Hold(ctx context.Context, amountMinor int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// StripeGateway implements Gateway on stripe-go PaymentIntents with manual
// capture.
type StripeGateway struct {
	Currency string
}

// NewStripeGateway initializes the stripe client from STRIPE_API_KEY.
func NewStripeGateway(currency string) *StripeGateway {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	if currency == "" {
		currency = "inr"
	}
	return &StripeGateway{Currency: currency}
}

func (s *StripeGateway) Hold(ctx context.Context, amountMinor int64, currency, customerID string) (string, error) {
	if currency == "" {
		currency = s.Currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeGateway) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

func (s *StripeGateway) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
