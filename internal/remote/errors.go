package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind classifies remote failures.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindTimeout    Kind = "timeout"
	KindAuth       Kind = "auth"
	KindInvalid    Kind = "invalid"
	KindProcessing Kind = "processing"
	KindCanceled   Kind = "canceled"
	KindUnknown    Kind = "unknown"
)

// Error is a classified failure of one remote operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err and attaches the operation name. Errors that already
// carry a Kind keep it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		if re.Op == "" {
			return &Error{Kind: re.Kind, Op: op, Err: re.Err}
		}
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are inspected for
// context, network and DNS failures before falling back to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dns") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "service unavailable"):
		return KindTransient
	}
	return KindUnknown
}

// KindForStatus maps an HTTP status code returned by a provider to a Kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusTooManyRequests:
		return KindTransient
	case code >= 500:
		return KindTransient
	case code >= 400:
		return KindInvalid
	}
	return KindUnknown
}

// Retryable reports whether err is worth another attempt: transient service
// and network failures and per-attempt timeouts. Authorization, invalid
// input, remote processing failures and unknown errors are not retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}
