// Package errors defines the failure taxonomy shared by the client,
// the transport retry loop and the response decoders.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
)

// Kind tags a ClientError with its failure class.
type Kind int

const (
	// KindConfig is a bad or unconvertible configuration value. Never retried.
	KindConfig Kind = iota
	// KindTimeout is a network timeout or an expired call deadline.
	KindTimeout
	// KindTransport is a connection-level failure below HTTP.
	KindTransport
	// KindServerStatus is a non-2xx HTTP response.
	KindServerStatus
	// KindMalformedResponse is a 2xx body that fails structural validation.
	KindMalformedResponse
	// KindStreamDecode is a transport-level read failure mid-stream. Never
	// retried: a partially consumed stream cannot be replayed.
	KindStreamDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindServerStatus:
		return "server_status"
	case KindMalformedResponse:
		return "malformed_response"
	case KindStreamDecode:
		return "stream_decode"
	default:
		return "unknown"
	}
}

// ClientError is the single error type surfaced by the client. Attempt is the
// 1-based attempt on which the failure was observed (0 if outside the retry
// loop). Status and Body are set for KindServerStatus.
type ClientError struct {
	Kind    Kind
	Attempt int
	Status  int
	Body    string
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Kind == KindServerStatus && e.Attempt > 0:
		return fmt.Sprintf("%s: http %d: %s (attempt %d)", e.Kind, e.Status, e.Body, e.Attempt)
	case e.Kind == KindServerStatus:
		return fmt.Sprintf("%s: http %d: %s", e.Kind, e.Status, e.Body)
	case e.Attempt > 0:
		return fmt.Sprintf("%s: %s (attempt %d)", e.Kind, msg, e.Attempt)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *ClientError) Unwrap() error { return e.Err }

// Config reports a bad override value. Surfaces immediately, never retried.
func Config(format string, args ...any) *ClientError {
	return &ClientError{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Timeout wraps an expired call.
func Timeout(err error) *ClientError {
	return &ClientError{Kind: KindTimeout, Message: "request timed out", Err: err}
}

// Transport wraps a connection-level failure.
func Transport(err error) *ClientError {
	return &ClientError{Kind: KindTransport, Message: "request failed", Err: err}
}

// ServerStatus reports a non-2xx response.
func ServerStatus(status int, body string) *ClientError {
	return &ClientError{Kind: KindServerStatus, Status: status, Body: body}
}

// Malformed reports a 2xx body that violates the expected response shape.
func Malformed(format string, args ...any) *ClientError {
	return &ClientError{Kind: KindMalformedResponse, Message: fmt.Sprintf(format, args...)}
}

// StreamDecode reports a read failure while consuming an event stream.
func StreamDecode(err error) *ClientError {
	return &ClientError{Kind: KindStreamDecode, Message: "stream read failed", Err: err}
}

// Classify maps a raw transport error onto the taxonomy: timeouts and expired
// deadlines become KindTimeout, everything else KindTransport. ClientErrors
// pass through unchanged.
func Classify(err error) *ClientError {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Timeout(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout(err)
	}
	return Transport(err)
}

// KindOf extracts the Kind from err, if it wraps a ClientError.
func KindOf(err error) (Kind, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// Retryable reports whether the transport may re-issue the request after err.
// Config errors will not fix themselves and a partially consumed stream cannot
// be replayed; everything else is retried, including every non-2xx status.
// The upstream service treats 4xx exactly like 5xx; that is preserved as
// observed behavior even though retrying an auth failure cannot succeed.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		// Raw transport errors have not been classified yet; retry them.
		return true
	}
	switch kind {
	case KindConfig, KindStreamDecode:
		return false
	default:
		return true
	}
}

// WithAttempt annotates err with the attempt number it was observed on,
// classifying raw errors in the process.
func WithAttempt(err error, attempt int) *ClientError {
	ce := Classify(err)
	ce.Attempt = attempt
	return ce
}
