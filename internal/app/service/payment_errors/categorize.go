package payment_errors

import "strings"

// ErrorType is the stable taxonomy used throughout the retry subsystem.
// The first seven values are produced by Categorize; the remaining three are
// orchestration-level conditions set by the retry service, never by
// classification.
type ErrorType string

const (
	ErrorTypeInsufficientFunds  ErrorType = "insufficient_funds"
	ErrorTypeCardDeclined       ErrorType = "card_declined"
	ErrorTypeInvalidCardDetails ErrorType = "invalid_card_details"
	ErrorTypeExpiredCard        ErrorType = "expired_card"
	ErrorTypeRequires3DS        ErrorType = "requires_3ds"
	ErrorTypeNetworkError       ErrorType = "network_error"
	ErrorTypeUnknown            ErrorType = "unknown_error"

	ErrorTypeDuplicateRetry ErrorType = "duplicate_retry"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeMaxAttempts    ErrorType = "max_attempts_reached"

	// ErrorTypeNone marks attempt records written for successful retry
	// confirmations; such rows never count toward the failure ceiling.
	ErrorTypeNone ErrorType = "none"
)

// Provider error type strings as they appear on the wire.
const (
	providerTypeCardError     = "card_error"
	providerTypeAPIConnection = "api_connection_error"
)

// ProviderError is the loosely typed payload the payment provider attaches
// to a failed confirmation. Code and DeclineCode are optional on the wire.
type ProviderError struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// CategorizedError is the classification result. It is data, not an error:
// downstream code branches on it without try/catch-style handling, and
// Retryable is the single source of truth for whether a bare retry may be
// offered.
type CategorizedError struct {
	ErrorType       ErrorType      `json:"error_type"`
	UserMessage     string         `json:"user_message"`
	SuggestedAction string         `json:"suggested_action"`
	Retryable       bool           `json:"retryable"`
	ErrorCode       string         `json:"error_code,omitempty"`
	DeclineCode     string         `json:"decline_code,omitempty"`
	Raw             *ProviderError `json:"raw_error,omitempty"`
}

type rule struct {
	match           func(e *ProviderError) bool
	errorType       ErrorType
	retryable       bool
	userMessage     string
	suggestedAction string
}

func isInvalidDetailsCode(code string) bool {
	switch code {
	case "incorrect_number", "incorrect_cvc", "invalid_number", "invalid_cvc":
		return true
	}
	return strings.HasPrefix(code, "invalid_expiry")
}

// rules is the full classification table, evaluated in order with first
// match winning. The final catch-all makes Categorize total.
var rules = []rule{
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeCardError && e.DeclineCode == "insufficient_funds"
		},
		errorType:       ErrorTypeInsufficientFunds,
		retryable:       true,
		userMessage:     "Your card has insufficient funds.",
		suggestedAction: "Add funds to your card or try a different card.",
	},
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeCardError && e.Code == "card_declined"
		},
		errorType:       ErrorTypeCardDeclined,
		retryable:       true,
		userMessage:     "Your card was declined.",
		suggestedAction: "Contact your bank or try a different card.",
	},
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeCardError && isInvalidDetailsCode(e.Code)
		},
		errorType:       ErrorTypeInvalidCardDetails,
		retryable:       true,
		userMessage:     "Some of your card details are incorrect.",
		suggestedAction: "Check the card number, expiry date and CVC, then try again.",
	},
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeCardError && e.Code == "expired_card"
		},
		errorType:       ErrorTypeExpiredCard,
		retryable:       true,
		userMessage:     "Your card has expired.",
		suggestedAction: "Use a different card.",
	},
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeCardError && e.Code == "authentication_required"
		},
		errorType:       ErrorTypeRequires3DS,
		retryable:       true,
		userMessage:     "Your bank requires additional authentication.",
		suggestedAction: "Complete the verification step to finish the payment.",
	},
	{
		match: func(e *ProviderError) bool {
			return e.Type == providerTypeAPIConnection
		},
		errorType:       ErrorTypeNetworkError,
		retryable:       true,
		userMessage:     "We could not reach the payment provider.",
		suggestedAction: "Check your connection and try again.",
	},
	{
		match:           func(e *ProviderError) bool { return true },
		errorType:       ErrorTypeUnknown,
		retryable:       false,
		userMessage:     "The payment could not be completed.",
		suggestedAction: "Contact support if the problem persists.",
	},
}

// Categorize maps a raw provider error to the stable taxonomy. It is pure
// and total: same input always yields the same output, a nil input is
// treated as an empty error and classifies as unknown_error.
func Categorize(raw *ProviderError) *CategorizedError {
	if raw == nil {
		raw = &ProviderError{}
	}
	for _, r := range rules {
		if !r.match(raw) {
			continue
		}
		return &CategorizedError{
			ErrorType:       r.errorType,
			UserMessage:     r.userMessage,
			SuggestedAction: r.suggestedAction,
			Retryable:       r.retryable,
			ErrorCode:       raw.Code,
			DeclineCode:     raw.DeclineCode,
			Raw:             raw,
		}
	}
	// unreachable: the last rule matches everything
	return nil
}
