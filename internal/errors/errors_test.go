package errors

import (
	"fmt"
	"testing"
)

func TestErrorToCode(t *testing.T) {
	tests := []struct {
		err  error
		want int32
	}{
		{nil, CodeUnknown},
		{ErrPermissionDenied, CodePermissionDenied},
		{Wrapf(ErrFeedNotFound, "get %s", "spot[0,1]"), CodeNotFound},
		{NewNotFound("principal", "alice"), CodeNotFound},
		{Wrap(ErrCalculatorNotFound, "resolve"), CodeNoCalculator},
		{ErrFeedAlreadyExists, CodeAlreadyExists},
		{ErrArityMismatch, CodeArityMismatch},
		{ErrCyclicDependency, CodeCyclicDependency},
		{ErrDepthExceeded, CodeCyclicDependency},
		{NewInvalidInput("vol must be > 0"), CodeInvalidInput},
		{NewValidation("router.max_depth", "must be positive"), CodeInvalidRequest},
		{ErrTimeout, CodeTimeout},
		{ErrUpstream, CodeUpstream},
		{fmt.Errorf("boom"), CodeInternal},
	}

	for _, tt := range tests {
		if got := ErrorToCode(tt.err); got != tt.want {
			t.Errorf("ErrorToCode(%v) = %s, want %s", tt.err, CodeName(got), CodeName(tt.want))
		}
	}
}

func TestCodeToError_RoundTrip(t *testing.T) {
	for _, code := range []int32{
		CodeNotFound, CodeAlreadyExists, CodeNoCalculator, CodeArityMismatch,
		CodeInvalidInput, CodePermissionDenied, CodeCyclicDependency,
		CodeUpstream, CodeTimeout,
	} {
		if got := ErrorToCode(CodeToError(code)); got != code {
			t.Errorf("code %s round-trips to %s", CodeName(code), CodeName(got))
		}
	}
}

func TestNotFoundExcludesCalculator(t *testing.T) {
	if IsNotFound(ErrCalculatorNotFound) {
		t.Error("missing calculator must not count as missing data")
	}
	if !IsNoCalculator(Wrap(ErrCalculatorNotFound, "x")) {
		t.Error("IsNoCalculator should see through wrapping")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "%d", 1) != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collection should be nil")
	}

	v.AddMissing("source.base_url")
	v.AddField("router.max_depth", "must be positive")
	v.Add(nil)

	if len(v.Errors) != 2 {
		t.Fatalf("len = %d, want 2", len(v.Errors))
	}
	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !Is(err, ErrMissingField) {
		t.Error("Unwrap should expose the first error")
	}
	if !IsValidation(err) {
		t.Error("expected validation error")
	}
}

func TestCategories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		fn   func(error) bool
		want bool
	}{
		{"exists", NewAlreadyExists("feed", "spot[0,1]"), IsAlreadyExists, true},
		{"feed exists", Wrap(ErrFeedAlreadyExists, "add"), IsAlreadyExists, true},
		{"missing field", NewMissingField("source.api_key"), IsValidation, true},
		{"arity", Wrap(ErrArityMismatch, "iv"), IsConfigurationError, true},
		{"depth", ErrDepthExceeded, IsConfigurationError, true},
		{"not found is data", ErrFeedNotFound, IsConfigurationError, false},
		{"timeout", Wrap(ErrTimeout, "fetch"), IsRetriable, true},
		{"upstream", ErrUpstream, IsRetriable, true},
		{"bad input", NewInvalidInput("vol"), IsRetriable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.err); got != tt.want {
				t.Errorf("%v: got %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
