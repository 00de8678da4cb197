package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Failure kinds of a provider call.
var (
	ErrAuth      = errors.New("llm auth error")
	ErrRateLimit = errors.New("llm rate limited")
	ErrNetwork   = errors.New("llm network error")
	ErrTimeout   = errors.New("llm request timeout")
	ErrProvider  = errors.New("llm provider error")
)

// ErrNoProviderAvailable means no configured provider passed its check.
var ErrNoProviderAvailable = errors.New("all configured models failed to connect")

// ProviderError tags a provider failure with its kind.
type ProviderError struct {
	Provider string
	Kind     error
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StatusError is returned by PostChat for non-2xx answers.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// KindOf maps an error to one of the failure kinds.
func KindOf(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, kind := range []error{ErrAuth, ErrRateLimit, ErrTimeout, ErrNetwork, ErrProvider} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	var se *StatusError
	if errors.As(err, &se) {
		return kindForStatus(se.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrNetwork
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "no such host") {
		return ErrNetwork
	}
	return ErrProvider
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrProvider
	}
}

func wrapProviderError(provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider != "" {
			return err
		}
		// The caller may share pe; tag a copy.
		tagged := *pe
		tagged.Provider = provider
		return &tagged
	}
	status := 0
	var se *StatusError
	if errors.As(err, &se) {
		status = se.Status
	}
	return &ProviderError{Provider: provider, Kind: KindOf(err), Status: status, Err: err}
}
