package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a request that might have been
	// executed. For example, if a client times out while waiting for a response, then the client
	// cannot tell if the server acted on the request.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition. Cloud-side
	// 5xx responses and network-level failures commonly clear up on their own.
	Temporary() bool
}

// ErrRetryAfterRefresh indicates the access token was replaced after the server rejected it. The
// request was not resent; the caller should issue it again with the new token.
var ErrRetryAfterRefresh = errors.New("access token refreshed, retry request")

// AuthError indicates the identity provider rejected the supplied credentials. Retrying without
// new credentials will not help.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) MayHaveSucceeded() bool {
	return false
}

func (e *AuthError) Temporary() bool {
	return false
}

// AuthExpiredError indicates the session expired and could not be refreshed. The caller must
// re-authenticate with email and password.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string {
	if e.Err != nil {
		return "session expired: " + e.Err.Error()
	}
	return "session expired and no refresh token available"
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Err
}

func (e *AuthExpiredError) MayHaveSucceeded() bool {
	return false
}

func (e *AuthExpiredError) Temporary() bool {
	return false
}

// ProtocolError indicates the server returned an unexpected status, a malformed envelope, an
// application-level error code, or that the request failed at the transport layer (including
// timeouts). Status is zero for transport-layer failures.
type ProtocolError struct {
	Status int
	Body   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %s", e.Err)
	}
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
	}
	return "api error: " + e.Body
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) MayHaveSucceeded() bool {
	if e.Err != nil {
		// The request may have reached the server before the connection failed.
		return true
	}
	if e.Status >= 400 && e.Status < 500 {
		return false
	}
	return e.Status != http.StatusServiceUnavailable
}

func (e *ProtocolError) Temporary() bool {
	if e.Err != nil {
		return true
	}
	return e.Status == http.StatusServiceUnavailable ||
		e.Status == http.StatusGatewayTimeout ||
		e.Status == http.StatusRequestTimeout
}

// NewProtocolError wraps a transport-layer failure.
func NewProtocolError(err error) *ProtocolError {
	return &ProtocolError{Err: err}
}

// NewHTTPError records a non-200 response.
func NewHTTPError(status int, body string) *ProtocolError {
	return &ProtocolError{Status: status, Body: body}
}

// PairingError indicates a step of the enrollment handshake failed. The pairing session must be
// discarded and the user must restart from the QR scan.
type PairingError struct {
	Err error
}

func (e *PairingError) Error() string {
	return "pairing failed: " + e.Err.Error()
}

func (e *PairingError) Unwrap() error {
	return e.Err
}

func (e *PairingError) MayHaveSucceeded() bool {
	return false
}

func (e *PairingError) Temporary() bool {
	return false
}

// NewPairingError builds a PairingError from a format string.
func NewPairingError(format string, a ...interface{}) *PairingError {
	return &PairingError{Err: fmt.Errorf(format, a...)}
}

// MayHaveSucceeded returns true if err indicates the request may have been executed but the client
// did not receive a confirmation from the server.
func MayHaveSucceeded(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err indicates the request failed due to possibly transient conditions
// that do not require user action to resolve.
func Temporary(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should retry the request that triggered an error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryAfterRefresh) {
		return true
	}
	if e, ok := err.(Error); ok {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
