package errors

import (
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{Type: ErrorTypeServerError, Message: "server error", Code: 503}
	msg := err.Error()
	if !strings.Contains(msg, "server_error") || !strings.Contains(msg, "503") {
		t.Errorf("Expected type and code in message, got %q", msg)
	}

	if New(ErrorTypeConfig, "bad config").Type != ErrorTypeConfig {
		t.Error("New() did not preserve the error type")
	}
	if got := Newf(ErrorTypeData, "row %d", 3).Message; got != "row 3" {
		t.Errorf("Newf() message = %q, want %q", got, "row 3")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError}
	for _, typ := range retryable {
		if !IsRetryable(typ) {
			t.Errorf("Expected %s to be retryable", typ)
		}
	}

	permanent := []ErrorType{
		ErrorTypeConfig, ErrorTypeValidation, ErrorTypeAuth,
		ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeData, ErrorTypeUnknown,
	}
	for _, typ := range permanent {
		if IsRetryable(typ) {
			t.Errorf("Expected %s not to be retryable", typ)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{507, true},
		{401, false},
		{403, false},
		{404, false},
		{400, false},
		{418, false},
	}

	for _, tt := range tests {
		if got := IsRetryableStatusCode(tt.code); got != tt.retryable {
			t.Errorf("IsRetryableStatusCode(%d) = %v, want %v", tt.code, got, tt.retryable)
		}
	}
}
