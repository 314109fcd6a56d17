package stripe_gateway

import (
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// VerifyEvent checks the HMAC signature over the exact raw request body and
// returns the parsed event. The body must not be re-serialized before
// verification; any re-encoding invalidates the signature.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, secret)
}
