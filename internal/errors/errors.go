package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory classifies failures so callers can decide between retrying,
// blocking, degrading, or giving up.
type ErrorCategory string

const (
	// CategoryNotFound marks a missing user or repository. Terminal — never retried.
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryTransient marks 429/5xx-style upstream hiccups. Retried with backoff.
	CategoryTransient ErrorCategory = "transient"
	// CategoryRateLimit marks credential exhaustion. The token pool blocks until reset.
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryTimeout marks deadline or poll-window expiry.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryValidation marks bad caller input.
	CategoryValidation ErrorCategory = "validation"
	// CategoryExternalAPI marks structured error payloads from an upstream service.
	CategoryExternalAPI ErrorCategory = "external_api"
	// CategoryInternal is everything else.
	CategoryInternal ErrorCategory = "internal"
)

// AppError wraps an errbuilder error with the category and HTTP status the
// service surface needs.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(e.Category)), e.ErrBuilder.Msg)
}

func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from an errbuilder with category context.
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewNotFoundError marks a missing user or repository. Callers treat this as
// terminal and move on to the next target.
func NewNotFoundError(what string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s not found", what))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewTransientError wraps a retryable upstream failure (429/502/503 family).
func NewTransientError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTransient, http.StatusBadGateway)
}

// NewRateLimitError records a credential reaching zero remaining quota.
func NewRateLimitError(resetAt time.Time) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("reset_at", errors.New(resetAt.UTC().Format(time.RFC3339)))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("rate limit exhausted").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewTimeoutError wraps deadline expiry, including the poll-loop wall clock.
func NewTimeoutError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeDeadlineExceeded).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryTimeout, http.StatusGatewayTimeout)
}

// NewValidationError marks bad caller input on the HTTP surface.
func NewValidationError(message string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewExternalAPIError wraps a structured error payload from an upstream
// service (GraphQL errors array, review-bot error body).
func NewExternalAPIError(apiName string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("api_name", errors.New(apiName))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("%s API error", apiName)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryExternalAPI, http.StatusBadGateway)
}

// NewInternalError is the catch-all.
func NewInternalError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryInternal, http.StatusInternalServerError)
}

// ToAppError converts any error to an AppError, sniffing common network and
// context failures so the retry predicate classifies them correctly.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeoutError("request deadline exceeded", err)
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no such host") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "network is unreachable") {
		return NewTransientError("network connection failed", err)
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
		return NewTimeoutError("request timeout", err)
	}

	return NewInternalError("unexpected error", err)
}

// IsNotFound reports whether err is the terminal not-found case.
func IsNotFound(err error) bool {
	return ToAppError(err).Category == CategoryNotFound
}

// IsRetryableError drives the resilience layer: transient upstream failures,
// timeouts, and rate limits retry; not-found and validation never do.
func IsRetryableError(err error) bool {
	switch ToAppError(err).Category {
	case CategoryTransient, CategoryTimeout, CategoryExternalAPI, CategoryRateLimit:
		return true
	default:
		return false
	}
}

// ErrorHandler is a gin middleware that renders the last accumulated error as
// a structured response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			appErr := ToAppError(c.Errors.Last().Err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, gin.H{
				"category": appErr.Category,
				"error":    appErr.ErrBuilder.Msg,
			})
		}
	}
}

// LogError logs with a level matching the category: per-user scrape/judge
// failures are expected and warn-level, internal failures are error-level.
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"http_status", err.HTTPStatus,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	)

	switch err.Category {
	case CategoryNotFound, CategoryValidation, CategoryRateLimit:
		logEntry.Warn(err.ErrBuilder.Msg)
	case CategoryTransient, CategoryTimeout, CategoryExternalAPI:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Info(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Info(err.ErrBuilder.Msg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(err.ErrBuilder.Msg, "cause", cause)
		} else {
			logEntry.Error(err.ErrBuilder.Msg)
		}
	}
}
