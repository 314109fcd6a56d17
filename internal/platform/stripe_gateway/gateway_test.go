package stripe_gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/numina/billing/internal/app/service/payment_errors"
)

func TestTranslateError_DeadlineExceeded(t *testing.T) {
	f := translateError(context.Background(), fmt.Errorf("confirm: %w", context.DeadlineExceeded))
	require.True(t, f.Timeout)
	require.Equal(t, "api_connection_error", f.Err.Type)
}

func TestTranslateError_ExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	f := translateError(ctx, errors.New("connection reset"))
	require.True(t, f.Timeout)
}

func TestTranslateError_StripeCardError(t *testing.T) {
	sErr := &stripe.Error{
		Type:        stripe.ErrorTypeCard,
		Code:        stripe.ErrorCodeCardDeclined,
		DeclineCode: "insufficient_funds",
		Msg:         "Your card has insufficient funds.",
		RequestID:   "req_123",
	}

	f := translateError(context.Background(), sErr)
	require.False(t, f.Timeout)
	require.False(t, f.RequiresAction)
	require.Equal(t, "card_error", f.Err.Type)
	require.Equal(t, "card_declined", f.Err.Code)
	require.Equal(t, "insufficient_funds", f.Err.DeclineCode)
	require.Equal(t, "req_123", f.Err.RequestID)

	cat := payment_errors.Categorize(f.Err)
	require.Equal(t, payment_errors.ErrorTypeInsufficientFunds, cat.ErrorType)
}

func TestTranslateError_AuthenticationRequired(t *testing.T) {
	sErr := &stripe.Error{
		Type: stripe.ErrorTypeCard,
		Code: "authentication_required",
		PaymentIntent: &stripe.PaymentIntent{
			ID:           "pi_3ds",
			ClientSecret: "pi_3ds_secret_x",
			Status:       stripe.PaymentIntentStatusRequiresAction,
		},
	}

	f := translateError(context.Background(), sErr)
	require.True(t, f.RequiresAction)
	require.Equal(t, "pi_3ds", f.PaymentIntentID)
	require.Equal(t, "pi_3ds_secret_x", f.ClientSecret)
	require.Equal(t, payment_errors.ErrorTypeRequires3DS, payment_errors.Categorize(f.Err).ErrorType)
}

func TestTranslateError_TransportFailure(t *testing.T) {
	f := translateError(context.Background(), errors.New("dial tcp: connection refused"))
	require.False(t, f.Timeout)
	require.Equal(t, "api_connection_error", f.Err.Type)
	require.Equal(t, payment_errors.ErrorTypeNetworkError, payment_errors.Categorize(f.Err).ErrorType)
}

func TestFromStripeError_PreservesFields(t *testing.T) {
	sErr := &stripe.Error{
		Type:        stripe.ErrorTypeInvalidRequest,
		Code:        "payment_intent_unexpected_state",
		Msg:         "intent already succeeded",
		RequestID:   "req_456",
		DeclineCode: "",
	}

	p := FromStripeError(sErr)
	require.Equal(t, "invalid_request_error", p.Type)
	require.Equal(t, "payment_intent_unexpected_state", p.Code)
	require.Equal(t, "intent already succeeded", p.Message)
	require.Equal(t, "req_456", p.RequestID)
	require.Empty(t, p.DeclineCode)
}
