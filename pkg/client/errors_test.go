package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				StatusCode: 500,
				Class:      ErrorClassServer,
				Message:    "Internal Server Error",
			},
			want: "api server error (status 500): Internal Server Error",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				StatusCode: 401,
				Class:      ErrorClassAuth,
				Message:    "unauthenticated",
				Err:        ErrSessionExpired,
			},
			want: "api auth error (status 401): unauthenticated: session expired, please sign in again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	apiErr := &APIError{
		StatusCode: 401,
		Class:      ErrorClassAuth,
		Message:    "unauthenticated",
		Err:        ErrSessionExpired,
	}

	if !errors.Is(apiErr, ErrSessionExpired) {
		t.Error("errors.Is should match the wrapped sentinel")
	}

	var target *APIError
	if !errors.As(error(apiErr), &target) {
		t.Error("errors.As should extract *APIError")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusUnauthorized, ErrorClassAuth},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusForbidden, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	if !isNetworkError(&APIError{Class: ErrorClassNetwork}) {
		t.Error("Network APIError should be retriable")
	}
	if isNetworkError(&APIError{Class: ErrorClassServer, StatusCode: 502}) {
		t.Error("Server errors are not retriable")
	}
	if isNetworkError(errors.New("plain error")) {
		t.Error("Unclassified errors are not retriable")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"message field", `{"message":"cart item not found"}`, 404, "cart item not found"},
		{"error field", `{"error":"invalid quantity"}`, 400, "invalid quantity"},
		{"empty body falls back", ``, 503, "Service Unavailable"},
		{"non-json falls back", `<html>`, 500, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage([]byte(tt.body), tt.status); got != tt.want {
				t.Errorf("errorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
