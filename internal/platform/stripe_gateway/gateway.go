package stripe_gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/fx"

	"github.com/numina/billing/internal/app/service/payment_errors"
	cfgpkg "github.com/numina/billing/pkg/config"
)

// ConfirmResult is a successful confirmation.
type ConfirmResult struct {
	PaymentIntentID string
	Status          string
}

// ConfirmFailure is a provider-reported or transport-level failure of a
// confirm call. It is data for the orchestrator to classify, not a Go error
// to propagate.
type ConfirmFailure struct {
	// Err is the raw provider error payload; synthesized for transport
	// failures so classification stays total.
	Err *payment_errors.ProviderError
	// Timeout is set when the confirm was abandoned at the context deadline.
	Timeout bool
	// RequiresAction/ClientSecret surface the 3DS challenge when the bank
	// demanded authentication.
	RequiresAction bool
	ClientSecret   string
	// PaymentIntentID is set when the provider returned an intent alongside
	// the failure.
	PaymentIntentID string
}

// Gateway is the provider surface the retry orchestrator depends on. The
// real implementation talks to Stripe; tests substitute stubs.
type Gateway interface {
	ConfirmPaymentIntent(ctx context.Context, paymentIntentID, paymentMethodID string) (*ConfirmResult, *ConfirmFailure)
}

type stripeGateway struct {
	client *client.API
}

func NewGateway(cfg *cfgpkg.Config) Gateway {
	sc := &client.API{}
	sc.Init(cfg.Stripe.SecretKey, nil)
	return &stripeGateway{client: sc}
}

func (g *stripeGateway) ConfirmPaymentIntent(ctx context.Context, paymentIntentID, paymentMethodID string) (*ConfirmResult, *ConfirmFailure) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.Confirm(paymentIntentID, params)
	if err != nil {
		return nil, translateError(ctx, err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &ConfirmResult{PaymentIntentID: pi.ID, Status: string(pi.Status)}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		// The bank demanded a 3DS challenge; surfaced as a classifiable
		// failure carrying the client secret.
		return nil, &ConfirmFailure{
			Err: &payment_errors.ProviderError{
				Type:    "card_error",
				Code:    "authentication_required",
				Message: "additional authentication is required to complete this payment",
			},
			RequiresAction:  true,
			ClientSecret:    pi.ClientSecret,
			PaymentIntentID: pi.ID,
		}
	}

	failure := &ConfirmFailure{PaymentIntentID: pi.ID}
	if pi.LastPaymentError != nil {
		failure.Err = FromStripeError(pi.LastPaymentError)
	} else {
		failure.Err = &payment_errors.ProviderError{
			Type:    "api_error",
			Message: fmt.Sprintf("payment intent in unexpected status %s", pi.Status),
		}
	}
	return nil, failure
}

func translateError(ctx context.Context, err error) *ConfirmFailure {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return &ConfirmFailure{
			Timeout: true,
			Err: &payment_errors.ProviderError{
				Type:    "api_connection_error",
				Message: "payment provider did not respond in time",
			},
		}
	}

	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		f := &ConfirmFailure{Err: FromStripeError(sErr)}
		if sErr.PaymentIntent != nil {
			f.PaymentIntentID = sErr.PaymentIntent.ID
			f.ClientSecret = sErr.PaymentIntent.ClientSecret
			f.RequiresAction = sErr.PaymentIntent.Status == stripe.PaymentIntentStatusRequiresAction
		}
		if sErr.Code == "authentication_required" {
			f.RequiresAction = true
		}
		return f
	}

	// transport-level failure, classified as a network error
	return &ConfirmFailure{
		Err: &payment_errors.ProviderError{
			Type:    "api_connection_error",
			Message: err.Error(),
		},
	}
}

// FromStripeError converts the SDK error payload into the loosely typed
// provider error the categorization service consumes.
func FromStripeError(sErr *stripe.Error) *payment_errors.ProviderError {
	return &payment_errors.ProviderError{
		Type:        string(sErr.Type),
		Code:        string(sErr.Code),
		DeclineCode: string(sErr.DeclineCode),
		Message:     sErr.Msg,
		RequestID:   sErr.RequestID,
	}
}

var Module = fx.Options(
	fx.Provide(NewGateway),
)
