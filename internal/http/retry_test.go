package http

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{fmt.Errorf("dial tcp 127.0.0.1:5000: connect: connection refused"), ErrorTypeNetwork},
		{fmt.Errorf("read: unexpected EOF"), ErrorTypeNetwork},
		{fmt.Errorf("websocket: close 1006 (abnormal closure)"), ErrorTypeNetwork},
		{fmt.Errorf("handshake status 503"), ErrorTypeRetryable},
		{fmt.Errorf("websocket: bad handshake"), ErrorTypeFatal},
		{fmt.Errorf("handshake status 404"), ErrorTypeFatal},
		{fmt.Errorf("open packet: %w", ErrFatal), ErrorTypeFatal},
		{errors.New("something odd"), ErrorTypeNetwork},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, ErrorTypeName(got), ErrorTypeName(tt.want))
		}
	}
}

func TestIsReconnectable(t *testing.T) {
	if !IsReconnectable(fmt.Errorf("i/o timeout")) {
		t.Error("timeouts should be reconnectable")
	}
	if IsReconnectable(fmt.Errorf("websocket: bad handshake")) {
		t.Error("bad handshake should not be reconnectable")
	}
	if IsReconnectable(nil) {
		t.Error("nil error is not a reconnect condition")
	}
}

func TestCalculateBackoff(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 1 * time.Second

	if d := CalculateBackoff(0, initial, max); d != 0 {
		t.Errorf("attempt 0 should not wait, got %v", d)
	}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{50, 1 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := CalculateBackoff(tt.attempt, initial, max)
			if d > tt.base || d < tt.base-tt.base/5 {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", tt.attempt, d, tt.base-tt.base/5, tt.base)
			}
		}
	}
}
