// Package apierr defines the structured error surface of the HTTP API.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/market-pulse/backend/internal/logger"
	"github.com/onnwee/market-pulse/backend/internal/upstream"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// AUTH_ - Authentication and authorization errors
	ErrAuthMissing   ErrorCode = "AUTH_MISSING"
	ErrAuthInvalid   ErrorCode = "AUTH_INVALID"
	ErrAuthForbidden ErrorCode = "AUTH_FORBIDDEN"

	// INDICATOR_ - Economic indicator fetch errors
	ErrIndicatorTimeout       ErrorCode = "INDICATOR_TIMEOUT"
	ErrIndicatorUnavailable   ErrorCode = "INDICATOR_UNAVAILABLE"
	ErrIndicatorInvalidParams ErrorCode = "INDICATOR_INVALID_PARAMS"

	// QUOTE_ - Market quote errors
	ErrQuoteUnavailable ErrorCode = "QUOTE_UNAVAILABLE"
	ErrQuoteNotFound    ErrorCode = "QUOTE_NOT_FOUND"

	// ANALYSIS_ - AI analysis errors
	ErrAnalysisUnavailable ErrorCode = "ANALYSIS_UNAVAILABLE"
	ErrAnalysisRateLimited ErrorCode = "ANALYSIS_RATE_LIMITED"

	// WATCHLIST_ - Watchlist store errors
	ErrWatchlistNotFound ErrorCode = "WATCHLIST_NOT_FOUND"
	ErrWatchlistStore    ErrorCode = "WATCHLIST_STORE_FAILED"

	// CACHE_ - Cache administration errors
	ErrCacheClearFailed ErrorCode = "CACHE_CLEAR_FAILED"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemDatabase    ErrorCode = "SYSTEM_DATABASE"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"
	ErrSystemTimeout     ErrorCode = "SYSTEM_TIMEOUT"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON   ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// Helper constructors for common errors

// AuthMissing creates an authentication missing error
func AuthMissing(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(ErrAuthMissing, message, http.StatusUnauthorized)
}

// AuthInvalid creates an invalid authentication error
func AuthInvalid(message string) *Error {
	if message == "" {
		message = "Invalid authentication credentials"
	}
	return New(ErrAuthInvalid, message, http.StatusUnauthorized)
}

// IndicatorInvalidParams creates an indicator invalid parameters error
func IndicatorInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid indicator query parameters"
	}
	return New(ErrIndicatorInvalidParams, message, http.StatusBadRequest)
}

// QuoteNotFound creates a quote not found error
func QuoteNotFound(symbol string) *Error {
	return New(ErrQuoteNotFound, "No quote available for "+symbol, http.StatusNotFound)
}

// WatchlistNotFound creates a watchlist not found error
func WatchlistNotFound() *Error {
	return New(ErrWatchlistNotFound, "Watchlist not found", http.StatusNotFound)
}

// WatchlistStoreFailed creates a watchlist store error
func WatchlistStoreFailed(message string) *Error {
	if message == "" {
		message = "Watchlist operation failed"
	}
	return New(ErrWatchlistStore, message, http.StatusInternalServerError)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Request body is not valid JSON", http.StatusBadRequest)
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemDatabase creates a database error
func SystemDatabase(message string) *Error {
	if message == "" {
		message = "Database error"
	}
	return New(ErrSystemDatabase, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationMissingField creates a missing field error
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ValidationInvalidValue creates an invalid field value error
func ValidationInvalidValue(field, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}

// FromUpstream maps a classified upstream failure to the API error surface,
// preserving the user-facing message selected by the taxonomy.
func FromUpstream(err error, unavailable ErrorCode) *Error {
	kind := upstream.KindOf(err)
	msg := ""
	var upErr *upstream.APIError
	if errors.As(err, &upErr) {
		msg = upErr.UserMessage()
	}

	switch kind {
	case upstream.KindTimeout:
		return New(ErrSystemTimeout, msg, http.StatusGatewayTimeout)
	case upstream.KindRateLimited:
		return New(ErrAnalysisRateLimited, msg, http.StatusTooManyRequests)
	case upstream.KindAuth:
		return New(ErrAuthInvalid, msg, http.StatusBadGateway)
	default:
		if msg == "" {
			msg = "Upstream data service unavailable"
		}
		return New(unavailable, msg, http.StatusBadGateway)
	}
}
