// Package upstream holds the shared error taxonomy for the proxy clients.
// Classification inspects status codes and message text rather than error
// types: the boundary to the serverless proxies is a generic HTTP error
// channel.
package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ErrorKind buckets an upstream failure for user-facing messaging.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindNetwork
	KindAuth
	KindRateLimited
	KindMalformed
	KindServer
)

// APIError is a classified upstream failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	return e.Message
}

// UserMessage returns the message shown to dashboard users for this kind of
// failure.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindTimeout:
		return "The data service took too long to respond. Please try again later."
	case KindNetwork:
		return "Could not reach the data service. Please check your connection."
	case KindAuth:
		return "The data service rejected the request credentials."
	case KindRateLimited:
		return "Too many requests. Please wait a moment and retry."
	case KindMalformed:
		return "The data service returned an unexpected response."
	case KindServer:
		return "The data service is having trouble. Please try again later."
	default:
		return "Something went wrong fetching data."
	}
}

// ClassifyErr classifies a transport-level error (no HTTP response).
func ClassifyErr(err error) *APIError {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Message: "request timed out", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return &APIError{Kind: KindUnknown, Message: "request canceled", Retryable: false}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return &APIError{Kind: KindTimeout, Message: err.Error(), Retryable: true}
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "connection reset"):
		return &APIError{Kind: KindNetwork, Message: err.Error(), Retryable: true}
	default:
		return &APIError{Kind: KindNetwork, Message: err.Error(), Retryable: true}
	}
}

// ClassifyResponse classifies a non-2xx HTTP response, consuming up to a few
// KB of the body for message context. The body is drained; callers must not
// read it again.
func ClassifyResponse(resp *http.Response) *APIError {
	if resp == nil {
		return &APIError{Kind: KindUnknown, Message: "nil response"}
	}

	var bodyText string
	if resp.Body != nil {
		b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err == nil {
			bodyText = strings.ToLower(string(b))
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       KindUnknown,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.Message = "rate limited by upstream (429)"
		apiErr.Retryable = true

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = KindAuth
		apiErr.Message = "upstream rejected credentials"
		apiErr.Retryable = false

	case resp.StatusCode == http.StatusGatewayTimeout:
		apiErr.Kind = KindTimeout
		apiErr.Message = "upstream gateway timeout (504)"
		apiErr.Retryable = true

	case resp.StatusCode >= 500:
		apiErr.Kind = KindServer
		apiErr.Message = "upstream server error"
		apiErr.Retryable = true

	case resp.StatusCode >= 400:
		apiErr.Kind = KindUnknown
		apiErr.Message = "upstream client error"
		apiErr.Retryable = false
	}

	// Body text can refine the status-based bucket: key problems show up as
	// 400s from the FRED proxy, throttling messages sometimes ride on 403s.
	if strings.Contains(bodyText, "api key") || strings.Contains(bodyText, "api_key") {
		apiErr.Kind = KindAuth
		apiErr.Message = "upstream reports missing or invalid API key"
		apiErr.Retryable = false
	} else if strings.Contains(bodyText, "rate limit") || strings.Contains(bodyText, "too many requests") {
		apiErr.Kind = KindRateLimited
		apiErr.Message = "upstream reports throttling"
		apiErr.Retryable = true
	}

	return apiErr
}

// Malformed wraps a decode failure as a classified error. Malformed payloads
// count as fetch failures for caching purposes: no entry is written and any
// stale entry may substitute.
func Malformed(err error) *APIError {
	return &APIError{Kind: KindMalformed, Message: "malformed upstream response: " + err.Error()}
}

// IsRetryable reports whether the failure is worth an automatic retry.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// KindOf extracts the classified kind, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}
