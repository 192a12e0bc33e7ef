package spotapi

import (
	"errors"
	"fmt"
)

// baseError carries a human message plus the raw upstream error string, the
// shape every component error in this package shares.
type baseError struct {
	Message string
	Raw     string
}

func (e *baseError) Error() string {
	if e.Raw == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Raw)
}

// RequestError is a transport-level failure: the HTTP exchange either never
// completed or completed with a status the caller treats as failure. It is
// never retried at this layer.
type RequestError struct {
	baseError
	Status int
	Body   string
}

func newRequestError(message string, status int, body string) *RequestError {
	return &RequestError{
		baseError: baseError{Message: message, Raw: fmt.Sprintf("status %d: %s", status, truncate(body, 256))},
		Status:    status,
		Body:      body,
	}
}

// ProtocolError means the upstream response did not have the expected shape.
// Always terminal; it indicates contract drift, not a transient fault.
type ProtocolError struct{ baseError }

func newProtocolError(message, raw string) *ProtocolError {
	return &ProtocolError{baseError{Message: message, Raw: raw}}
}

// AuthError is a user-actionable authentication failure (invalid
// credentials, unresolved challenge). Retryable marks the one server error
// class that is worth re-running the login flow for.
type AuthError struct {
	baseError
	Retryable bool
}

func newAuthError(message, raw string) *AuthError {
	return &AuthError{baseError: baseError{Message: message, Raw: raw}}
}

func newRetryableAuthError(message, raw string) *AuthError {
	return &AuthError{baseError: baseError{Message: message, Raw: raw}, Retryable: true}
}

// ClientError is a credential-broker failure: one of the dependent secrets
// could not be fetched or parsed.
type ClientError struct{ baseError }

func newClientError(message, raw string) *ClientError {
	return &ClientError{baseError{Message: message, Raw: raw}}
}

// CaptchaError is a vendor-reported solve failure (bad task, bad key, zero
// balance). Distinct from SolverError.
type CaptchaError struct{ baseError }

func newCaptchaError(message, raw string) *CaptchaError {
	return &CaptchaError{baseError{Message: message, Raw: raw}}
}

// SolverError means the solver itself gave up: the poll retry budget was
// exhausted or the returned token was empty.
type SolverError struct{ baseError }

func newSolverError(message, raw string) *SolverError {
	return &SolverError{baseError{Message: message, Raw: raw}}
}

// GeneratorError is an account-creation failure.
type GeneratorError struct{ baseError }

func newGeneratorError(message, raw string) *GeneratorError {
	return &GeneratorError{baseError{Message: message, Raw: raw}}
}

// WebSocketError is a realtime-session failure on the dealer channel or its
// companion HTTP calls.
type WebSocketError struct{ baseError }

func newWebSocketError(message, raw string) *WebSocketError {
	return &WebSocketError{baseError{Message: message, Raw: raw}}
}

// FatalError marks an error the library cannot recover from, typically a
// configuration problem (no solver wired, dead vendor key). The library
// never terminates the process itself; the top-level caller checks IsFatal
// and decides.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// IsFatal reports whether err is, or wraps, a FatalError.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// fatalCaptchaCodes are vendor error codes where retrying can never help.
var fatalCaptchaCodes = []string{
	"ERROR_ZERO_BALANCE",
	"ERROR_KEY_DOES_NOT_EXIST",
	"ERROR_WRONG_USER_KEY",
	"ERROR_WRONG_GOOGLEKEY",
	"ERROR_IP_NOT_ALLOWED",
	"ERROR_IP_BANNED",
}

func isFatalCaptchaCode(code string) bool {
	for _, c := range fatalCaptchaCodes {
		if c == code {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
