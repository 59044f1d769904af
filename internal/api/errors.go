// Package api provides error types for share server responses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sharedrop/sharedrop/internal/models"
)

// ErrPreviewUnavailable indicates the file type has no preview rendering.
var ErrPreviewUnavailable = errors.New("preview not available for this file type")

// ErrDeleteFailed wraps every delete failure so callers can report it uniformly.
var ErrDeleteFailed = errors.New("delete failed")

// TransportError is a request that never produced an HTTP response
// (connection refused, reset, cancelled context).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a response with a non-200 status. Message is the server's
// "error" field when the body is JSON, otherwise the trimmed body.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: server returned status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.Code, e.Message)
}

// AppError is a 200 response whose JSON body reports success=false.
type AppError struct {
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Op + ": server reported failure"
	}
	return e.Op + ": " + e.Message
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsStatusError reports whether err is, or wraps, a *StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return StatusCode(err) == 404
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte) string {
	var resp models.ErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512] + "..."
	}
	return msg
}
