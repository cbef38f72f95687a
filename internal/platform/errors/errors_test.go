package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCodeMapping(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeInvalidArgument, http.StatusUnprocessableEntity},
		{ErrorCodeConflict, http.StatusConflict},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeJSON, http.StatusBadRequest},
		{ErrorCodeUnauthorized, http.StatusUnauthorized},
		{ErrorCodeForbidden, http.StatusForbidden},
		{ErrorCodeTooManyRequests, http.StatusTooManyRequests},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{ErrorCodeConfig, http.StatusInternalServerError},
		{ErrorCodeDB, http.StatusInternalServerError},
		{9999, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatusCode(c.code); got != c.want {
			t.Fatalf("HTTPStatusCode(%v) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestErrorCodeString(t *testing.T) {
	if ErrorCodeTooManyRequests.String() != "rate_limited" {
		t.Fatalf("String = %q", ErrorCodeTooManyRequests.String())
	}
	if ErrorCode(900).String() != "code_900" {
		t.Fatalf("unknown code String = %q", ErrorCode(900).String())
	}
}

func TestWrapAndInspect(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Fatalf("nil render = %q", nilErr.Error())
	}

	src := stderrs.New("connection reset")
	e := Wrapf(src, ErrorCodeUnavailable, "everflow page %d", 2)
	if e.Error() != "everflow page 2: connection reset" {
		t.Fatalf("Error() = %q", e.Error())
	}
	if stderrs.Unwrap(e) != src {
		t.Fatalf("Unwrap lost cause")
	}
	if !IsCode(e, ErrorCodeUnavailable) {
		t.Fatalf("code = %v", CodeOf(e))
	}

	outer := fmt.Errorf("sync: %w", e)
	if CodeOf(outer) != ErrorCodeUnavailable {
		t.Fatalf("CodeOf through fmt wrap = %v", CodeOf(outer))
	}
	if Root(outer) != src {
		t.Fatalf("Root = %v", Root(outer))
	}

	f := WithOp(WithField(e, "api_key"), "fetch")
	fe, _ := As(f)
	if fe.Field() != "api_key" || fe.Op() != "fetch" {
		t.Fatalf("field/op = %q/%q", fe.Field(), fe.Op())
	}
	if orig, _ := As(e); orig.Field() != "" {
		t.Fatalf("WithField mutated original")
	}
	if WithField(src, "x") != src {
		t.Fatalf("WithField on foreign error should pass through")
	}

	if WrapIf(nil, ErrorCodeDB, "x") != nil || WrapIf(src, ErrorCodeDB, "x") == nil {
		t.Fatalf("WrapIf mismatch")
	}
}

func TestWire(t *testing.T) {
	if WireFrom(nil) != (Wire{}) {
		t.Fatalf("WireFrom(nil) not zero")
	}
	w := WireFrom(Configf("missing EVERFLOW_API_KEY"))
	if w.Code != ErrorCodeConfig || w.Kind != "config" || w.Message != "missing EVERFLOW_API_KEY" {
		t.Fatalf("wire = %+v", w)
	}
	if w := WireFrom(stderrs.New("boom")); w.Code != ErrorCodeUnknown || w.Message != "boom" {
		t.Fatalf("foreign wire = %+v", w)
	}
	st, w := HTTP(NotFoundf("source %q", "nope"))
	if st != http.StatusNotFound || w.Kind != "not_found" {
		t.Fatalf("HTTP = %d %+v", st, w)
	}
	if st, _ := HTTP(nil); st != http.StatusOK {
		t.Fatalf("HTTP(nil) = %d", st)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"config", Configf("no key"), false},
		{"validation", New(ErrorCodeValidation, "bad row"), false},
		{"unauthorized", New(ErrorCodeUnauthorized, "401"), false},
		{"not found", NotFoundf("nope"), false},
		{"panic", PanicErrf("boom"), false},
		{"unavailable", Unavailablef("503"), true},
		{"rate limited", New(ErrorCodeTooManyRequests, "429"), true},
		{"db", DBf("insert failed"), true},
		{"json", JSONErrf("truncated body"), true},
		{"foreign", stderrs.New("dial tcp: i/o timeout"), true},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Fatalf("%s: Retryable = %v, want %v", c.name, got, c.want)
		}
	}
}
