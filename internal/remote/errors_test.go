package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", &Error{Kind: KindAuth, Err: errors.New("x")}, KindAuth},
		{"wrapped classified", fmt.Errorf("outer: %w", &Error{Kind: KindProcessing, Err: errors.New("x")}), KindProcessing},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid"}, KindTransient},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransient},
		{"refused text", errors.New("dial tcp: connection refused"), KindTransient},
		{"dns text", errors.New("DNS resolution failed"), KindTransient},
		{"timeout text", errors.New("i/o timeout"), KindTimeout},
		{"unknown", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]Kind{
		http.StatusBadRequest:          KindInvalid,
		http.StatusUnauthorized:        KindAuth,
		http.StatusForbidden:           KindAuth,
		http.StatusNotFound:            KindInvalid,
		http.StatusRequestTimeout:      KindTimeout,
		http.StatusTooManyRequests:     KindTransient,
		http.StatusInternalServerError: KindTransient,
		http.StatusServiceUnavailable:  KindTransient,
		http.StatusGatewayTimeout:      KindTimeout,
		http.StatusOK:                  KindUnknown,
	}
	for code, want := range tests {
		if got := KindForStatus(code); got != want {
			t.Errorf("KindForStatus(%d) = %s, want %s", code, got, want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(&Error{Kind: KindTransient}) || !Retryable(&Error{Kind: KindTimeout}) {
		t.Fatal("transient and timeout errors must be retryable")
	}
	for _, k := range []Kind{KindAuth, KindInvalid, KindProcessing, KindCanceled, KindUnknown} {
		if Retryable(&Error{Kind: k}) {
			t.Errorf("%s must not be retryable", k)
		}
	}
}

func TestWrapKeepsExistingKindAndAddsOp(t *testing.T) {
	err := Wrap("upload", &Error{Kind: KindAuth, Err: errors.New("denied")})
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if re.Kind != KindAuth || re.Op != "upload" {
		t.Fatalf("unexpected wrapped error: %+v", re)
	}
	if Wrap("upload", nil) != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
}
