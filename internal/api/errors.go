package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"adconsole/internal/sse"
)

type Kind string

const (
	KindTransient       Kind = "transient"
	KindAuthExpired     Kind = "auth_expired"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation"
	KindRateLimited     Kind = "rate_limited"
	KindStreamTruncated Kind = "stream_truncated"
	KindCancelled       Kind = "cancelled"
)

// Error is the normalized form of every failure the facade returns.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies any error the facade or its callers handle.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, sse.ErrTruncated) {
		return KindStreamTruncated
	}
	return KindTransient
}

func (c *Client) statusError(status int, message string) *Error {
	kind := KindTransient
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthExpired
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = KindValidation
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	if kind == KindTransient && c.isRateLimitHint(message) {
		kind = KindRateLimited
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// messageError classifies an error frame from a stream by its text alone.
func (c *Client) messageError(message string) *Error {
	if c.isRateLimitHint(message) {
		return &Error{Kind: KindRateLimited, Message: message}
	}
	return &Error{Kind: KindTransient, Message: message}
}

func (c *Client) transportError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	if errors.Is(err, sse.ErrTruncated) {
		return &Error{Kind: KindStreamTruncated, Err: err}
	}
	return &Error{Kind: KindTransient, Err: err}
}

func (c *Client) isRateLimitHint(message string) bool {
	m := strings.ToLower(message)
	for _, hint := range c.cfg.RateLimitHints {
		if hint != "" && strings.Contains(m, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}
