package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message string", `{"statusCode":400,"message":"Motion not found"}`, "Motion not found"},
		{"message list", `{"message":["title is required","proposedBy is required"]}`, "title is required; proposedBy is required"},
		{"error only", `{"error":"Bad Request"}`, "Bad Request"},
		{"plain text", "upstream timeout\n", "upstream timeout"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newAPIError(400, []byte(tt.body), "req-1")
			if err.Message != tt.want {
				t.Errorf("Expected message %q, got %q", tt.want, err.Message)
			}
			if err.RequestID != "req-1" {
				t.Errorf("Expected request id to be kept, got %q", err.RequestID)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	wrapped := fmt.Errorf("POST /voting/cast-vote: %w", &APIError{StatusCode: 400, Message: "Voice mismatch"})
	if got := ErrorMessage(wrapped, "Failed to process vote"); got != "Voice mismatch" {
		t.Errorf("Expected backend message, got %q", got)
	}
	if got := ErrorMessage(errors.New("dial tcp: refused"), "Failed to process vote"); got != "Failed to process vote" {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{StatusCode: 503}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"client error", &APIError{StatusCode: 400}, false},
		{"not found", fmt.Errorf("wrapped: %w", &APIError{StatusCode: 404}), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"decode", errors.New("decode response: unexpected end of JSON input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, expected %v", tt.err, got, tt.want)
			}
		})
	}
}
