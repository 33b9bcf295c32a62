package usecase

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/openmake/ensemble/internal/domain"
)

// ErrorCategory indicates whether an error is retryable or permanent.
type ErrorCategory int

const (
	ErrorCategoryUnknown   ErrorCategory = iota
	ErrorCategoryRetryable               // 429, 5xx, connection errors, context overflow
	ErrorCategoryPermanent               // 401, 403, 400 (non-overflow), malformed
)

// ClassifiedError holds the result of error classification.
type ClassifiedError struct {
	Original   error
	Category   ErrorCategory
	Sentinel   error // mapped domain sentinel, or nil
	StatusCode int   // extracted HTTP status, or 0 if unknown
}

// ErrorClassifier analyzes backend errors and categorizes them so the
// agent loop can decide between retrying and failing over.
type ErrorClassifier struct{}

// NewErrorClassifier creates a new classifier.
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// apiErrorPattern matches "API error <status_code>:" from provider adapters.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// contextOverflowKeywords indicate a context-length issue inside a 400 body.
var contextOverflowKeywords = []string{
	"context", "token", "length", "too long", "maximum",
}

// Classify inspects a backend error and returns its category and sentinel.
func (c *ErrorClassifier) Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}

	if sentinel := c.classifyBySentinel(err); sentinel.Category != ErrorCategoryUnknown {
		return sentinel
	}

	errStr := err.Error()

	if matches := apiErrorPattern.FindStringSubmatch(errStr); len(matches) == 2 {
		code, _ := strconv.Atoi(matches[1])
		return c.classifyByStatus(err, code, errStr)
	}

	return c.classifyByString(err, errStr)
}

func (c *ErrorClassifier) classifyBySentinel(err error) ClassifiedError {
	switch {
	case errors.Is(err, domain.ErrRateLimit):
		return ClassifiedError{
			Original: err, Category: ErrorCategoryRetryable,
			Sentinel: domain.ErrRateLimit,
		}
	case errors.Is(err, domain.ErrContextOverflow):
		return ClassifiedError{
			Original: err, Category: ErrorCategoryRetryable,
			Sentinel: domain.ErrContextOverflow,
		}
	case errors.Is(err, domain.ErrAuthInvalid):
		return ClassifiedError{
			Original: err, Category: ErrorCategoryPermanent,
			Sentinel: domain.ErrAuthInvalid,
		}
	default:
		return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
	}
}

func (c *ErrorClassifier) classifyByStatus(err error, code int, body string) ClassifiedError {
	switch {
	case code == 429:
		return ClassifiedError{
			Original: err, Category: ErrorCategoryRetryable,
			Sentinel: domain.ErrRateLimit, StatusCode: code,
		}
	case code == 401 || code == 403:
		return ClassifiedError{
			Original: err, Category: ErrorCategoryPermanent,
			Sentinel: domain.ErrAuthInvalid, StatusCode: code,
		}
	case code == 413:
		return ClassifiedError{
			Original: err, Category: ErrorCategoryRetryable,
			Sentinel: domain.ErrContextOverflow, StatusCode: code,
		}
	case code == 400:
		lower := strings.ToLower(body)
		for _, kw := range contextOverflowKeywords {
			if strings.Contains(lower, kw) {
				return ClassifiedError{
					Original: err, Category: ErrorCategoryRetryable,
					Sentinel: domain.ErrContextOverflow, StatusCode: code,
				}
			}
		}
		return ClassifiedError{
			Original: err, Category: ErrorCategoryPermanent, StatusCode: code,
		}
	case code >= 500 && code < 600:
		return ClassifiedError{
			Original: err, Category: ErrorCategoryRetryable, StatusCode: code,
		}
	default:
		return ClassifiedError{
			Original: err, Category: ErrorCategoryPermanent, StatusCode: code,
		}
	}
}

func (c *ErrorClassifier) classifyByString(err error, errStr string) ClassifiedError {
	lower := strings.ToLower(errStr)

	for _, p := range []string{"rate limit", "too many requests", "throttl"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{
				Original: err, Category: ErrorCategoryRetryable,
				Sentinel: domain.ErrRateLimit,
			}
		}
	}

	for _, p := range []string{"context length", "token limit", "maximum context"} {
		if strings.Contains(lower, p) {
			return ClassifiedError{
				Original: err, Category: ErrorCategoryRetryable,
				Sentinel: domain.ErrContextOverflow,
			}
		}
	}

	for _, p := range []string{
		"connection refused", "no such host", "timeout",
		"deadline exceeded", "connection reset",
	} {
		if strings.Contains(lower, p) {
			return ClassifiedError{
				Original: err, Category: ErrorCategoryRetryable,
			}
		}
	}

	return ClassifiedError{Original: err, Category: ErrorCategoryUnknown}
}
