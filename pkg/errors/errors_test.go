package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code        Code
		status      int
		publicMsg   string
		retryable   bool
		userVisible bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "request was rejected", userVisible: true},
		{code: CodeStockChanged, status: http.StatusBadRequest, publicMsg: "stock changed, please review your cart", userVisible: true},
		{code: CodeInFlight, status: http.StatusConflict, publicMsg: "a previous request is still in progress", retryable: true, userVisible: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "please log in again"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeTransport, status: 0, publicMsg: "network unavailable", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "service unavailable", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "something went wrong"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.UserVisible != tt.userVisible {
			t.Fatalf("code %s expected user visible %v got %v", tt.code, tt.userVisible, meta.UserVisible)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := map[int]Code{
		http.StatusBadRequest:          CodeValidation,
		http.StatusUnauthorized:        CodeUnauthorized,
		http.StatusForbidden:           CodeForbidden,
		http.StatusNotFound:            CodeNotFound,
		http.StatusConflict:            CodeConflict,
		http.StatusTooManyRequests:     CodeRateLimit,
		http.StatusBadGateway:          CodeDependency,
		http.StatusInternalServerError: CodeDependency,
		http.StatusTeapot:              CodeInternal,
	}
	for status, want := range cases {
		if got := FromHTTPStatus(status); got != want {
			t.Fatalf("status %d expected %s got %s", status, want, got)
		}
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestIsCodeAndUserMessage(t *testing.T) {
	err := fmt.Errorf("add to cart: %w", New(CodeValidation, "only 3 left"))
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation code through wrapping")
	}
	if IsCode(err, CodeInternal) {
		t.Fatalf("unexpected internal match")
	}
	if got := UserMessage(err); got != "only 3 left" {
		t.Fatalf("expected verbatim message, got %q", got)
	}
	if got := UserMessage(New(CodeDependency, "upstream 502 from /api/orders/cart/")); got != "service unavailable" {
		t.Fatalf("expected public message for hidden code, got %q", got)
	}
	if got := UserMessage(stdErrors.New("raw")); got != "something went wrong" {
		t.Fatalf("untyped errors should map to internal, got %q", got)
	}
}

func TestDumpIncludesHTTPDetails(t *testing.T) {
	err := New(CodeStockChanged, "Insufficient stock").WithDetails(HTTPDetails{Status: 400, Detail: "Insufficient stock"})
	d := Dump(fmt.Errorf("checkout: %w", err))
	if d.Code != CodeStockChanged {
		t.Fatalf("expected stock code, got %s", d.Code)
	}
	if d.HTTPStatus != 400 || d.Detail != "Insufficient stock" {
		t.Fatalf("unexpected http details %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %d", len(d.Chain))
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
