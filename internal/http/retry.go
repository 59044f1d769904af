package http

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

// ErrorType classifies a connection failure for the reconnect loop.
type ErrorType int

const (
	// ErrorTypeSuccess indicates the operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork indicates network/connection issues (timeouts, refused, reset, EOF)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, 504)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates errors a reconnect cannot fix (bad handshake, 400, 404)
	ErrorTypeFatal
)

// ErrFatal can be wrapped by callers to force ErrorTypeFatal.
var ErrFatal = errors.New("fatal")

// ClassifyError determines the error type for the reconnect strategy.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, ErrFatal) {
		return ErrorTypeFatal
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "close 1006") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeRetryable
	}

	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "bad handshake") ||
		strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "invalid") {
		return ErrorTypeFatal
	}

	// A long-lived session is worth another attempt on anything unrecognised
	return ErrorTypeNetwork
}

// IsReconnectable reports whether a dropped session should be re-established.
func IsReconnectable(err error) bool {
	switch ClassifyError(err) {
	case ErrorTypeNetwork, ErrorTypeRetryable:
		return true
	default:
		return false
	}
}

// CalculateBackoff returns the delay before reconnect attempt number attempt
// (starting at 1): initialDelay doubled per attempt, capped at maxDelay, with
// up to 20% jitter subtracted so clients restarted together spread out.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := initialDelay
	for i := 1; i < attempt && base < maxDelay; i++ {
		base *= 2
	}
	if base > maxDelay {
		base = maxDelay
	}

	jitter := int64(base) / 5
	if jitter <= 0 {
		return base
	}
	return base - time.Duration(rand.Int63n(jitter))
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
