package core

import "errors"

// Error codes sent to clients in error frames.
const (
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeDeliveryFailed = "delivery_failed"
	ErrCodeRateLimited    = "rate_limited"
)

var (
	ErrHubClosed     = errors.New("hub closed")
	ErrNotRegistered = errors.New("client not registered")
	ErrAlreadyBound  = errors.New("client already bound to an identity")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// NewError builds a CoreError for transports that reject frames before they reach the hub.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}
