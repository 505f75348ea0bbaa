package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrGateway        = errors.New("gateway error")
	ErrRejected       = errors.New("order rejected")
	ErrHalted         = errors.New("engine halted")
	ErrMalformedEvent = errors.New("malformed event")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrQueueFull      = errors.New("queue is full")
	ErrQueueClosed    = errors.New("queue is closed")
	ErrLockHeld       = errors.New("lock already held")
)

// GatewayError describes a failed call to the order gateway. Status is zero
// when the request never produced an HTTP response. NotSent marks failures
// that happened before any byte of the request reached the network.
type GatewayError struct {
	Op      string
	Status  int
	Body    string
	Err     error
	NotSent bool
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

// Unwrap lets callers match both ErrGateway and the transport error.
func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGateway, e.Err}
	}
	return []error{ErrGateway}
}

// Transient reports whether the failure is worth retrying: transport
// failures, throttling and server-side errors.
func (e *GatewayError) Transient() bool {
	if e.Status == 0 {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Retryable reports whether the call may be sent again. A request that is
// not idempotent is only repeated when the venue cannot have acted on it.
func (e *GatewayError) Retryable(idempotent bool) bool {
	if e.NotSent || e.Status == http.StatusTooManyRequests {
		return true
	}
	return idempotent && e.Transient()
}

// Ambiguous reports whether the venue may have acted on the request even
// though the call failed: timeouts, dropped connections and 5xx answers.
func (e *GatewayError) Ambiguous() bool {
	return !e.NotSent && (e.Status == 0 || e.Status >= 500)
}

// Rejection reports whether the exchange explicitly refused the request.
func (e *GatewayError) Rejection() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

// HaltError is returned by the engine once the reject threshold is crossed.
type HaltError struct {
	Symbol  string
	Rejects int
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("%s: too many rejects (%d)", e.Symbol, e.Rejects)
}

func (e *HaltError) Unwrap() error { return ErrHalted }
