package escrow

import (
	"context"
	"fmt"
	"math"
	"strconv"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/box3-delivery/internal/models"
)

// Stripe mirrors the on-chain escrow with a manual-capture PaymentIntent:
// the fee is held when the order is created and captured when the box opens.
type Stripe struct {
	Currency string
	// MinorUnitsPerFee converts DeliveryFees into the currency's minor unit.
	MinorUnitsPerFee float64
}

// NewStripe initializes the stripe client with the given API key.
func NewStripe(apiKey, currency string, minorUnitsPerFee float64) *Stripe {
	stripe.Key = apiKey
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if minorUnitsPerFee <= 0 {
		minorUnitsPerFee = 100
	}
	return &Stripe{Currency: currency, MinorUnitsPerFee: minorUnitsPerFee}
}

func (s *Stripe) amount(fees float64) int64 {
	return int64(math.Round(fees * s.MinorUnitsPerFee))
}

// Hold creates a PaymentIntent with capture_method=manual to hold the fee.
// It returns the PaymentIntent ID on success.
func (s *Stripe) Hold(_ context.Context, in models.NewOrder) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(s.amount(in.DeliveryFees)),
		Currency: stripe.String(s.Currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.AddMetadata("customer_wallet", in.CustomerWallet)
	params.AddMetadata("delivery_agent_wallet", in.DeliveryAgentWallet)
	params.AddMetadata("delivery_fees", strconv.FormatFloat(in.DeliveryFees, 'f', -1, 64))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe hold: %w", err)
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent.
func (s *Stripe) Capture(_ context.Context, ref string) error {
	if _, err := paymentintent.Capture(ref, nil); err != nil {
		return fmt.Errorf("stripe capture %s: %w", ref, err)
	}
	return nil
}

// Cancel releases the hold on a PaymentIntent.
func (s *Stripe) Cancel(_ context.Context, ref string) error {
	if _, err := paymentintent.Cancel(ref, nil); err != nil {
		return fmt.Errorf("stripe cancel %s: %w", ref, err)
	}
	return nil
}
