package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaymentAttempt_TableName(t *testing.T) {
	var m PaymentAttempt
	require.Equal(t, "payment_attempt", m.TableName())
}

func TestStripeEventLog_TableName(t *testing.T) {
	var m StripeEventLog
	require.Equal(t, "stripe_event_log", m.TableName())
}
