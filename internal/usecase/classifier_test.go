package usecase

import (
	"errors"
	"fmt"
	"testing"

	"github.com/openmake/ensemble/internal/domain"
)

func TestClassifyNil(t *testing.T) {
	c := NewErrorClassifier()
	got := c.Classify(nil)
	if got.Category != ErrorCategoryUnknown || got.Original != nil {
		t.Errorf("Classify(nil) = %+v, want zero value", got)
	}
}

func TestClassifySentinels(t *testing.T) {
	c := NewErrorClassifier()

	tests := []struct {
		err          error
		wantCategory ErrorCategory
		wantSentinel error
	}{
		{fmt.Errorf("call: %w", domain.ErrRateLimit), ErrorCategoryRetryable, domain.ErrRateLimit},
		{fmt.Errorf("call: %w", domain.ErrContextOverflow), ErrorCategoryRetryable, domain.ErrContextOverflow},
		{fmt.Errorf("call: %w", domain.ErrAuthInvalid), ErrorCategoryPermanent, domain.ErrAuthInvalid},
	}

	for _, tt := range tests {
		got := c.Classify(tt.err)
		if got.Category != tt.wantCategory {
			t.Errorf("Classify(%v).Category = %v, want %v", tt.err, got.Category, tt.wantCategory)
		}
		if !errors.Is(got.Sentinel, tt.wantSentinel) {
			t.Errorf("Classify(%v).Sentinel = %v, want %v", tt.err, got.Sentinel, tt.wantSentinel)
		}
	}
}

func TestClassifyByStatusCode(t *testing.T) {
	c := NewErrorClassifier()

	tests := []struct {
		body         string
		wantCategory ErrorCategory
		wantSentinel error
		wantStatus   int
	}{
		{"API error 429: slow down", ErrorCategoryRetryable, domain.ErrRateLimit, 429},
		{"API error 401: bad key", ErrorCategoryPermanent, domain.ErrAuthInvalid, 401},
		{"API error 403: forbidden", ErrorCategoryPermanent, domain.ErrAuthInvalid, 403},
		{"API error 413: payload", ErrorCategoryRetryable, domain.ErrContextOverflow, 413},
		{"API error 400: prompt exceeds maximum context length", ErrorCategoryRetryable, domain.ErrContextOverflow, 400},
		{"API error 400: invalid field foo", ErrorCategoryPermanent, nil, 400},
		{"API error 500: internal", ErrorCategoryRetryable, nil, 500},
		{"API error 503: overloaded", ErrorCategoryRetryable, nil, 503},
		{"API error 404: no such model", ErrorCategoryPermanent, nil, 404},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got := c.Classify(errors.New(tt.body))
			if got.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", got.Category, tt.wantCategory)
			}
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if tt.wantSentinel != nil && !errors.Is(got.Sentinel, tt.wantSentinel) {
				t.Errorf("Sentinel = %v, want %v", got.Sentinel, tt.wantSentinel)
			}
			if tt.wantSentinel == nil && got.Sentinel != nil {
				t.Errorf("Sentinel = %v, want nil", got.Sentinel)
			}
		})
	}
}

func TestClassifyByString(t *testing.T) {
	c := NewErrorClassifier()

	tests := []struct {
		body         string
		wantCategory ErrorCategory
		wantSentinel error
	}{
		{"Rate limit exceeded, retry later", ErrorCategoryRetryable, domain.ErrRateLimit},
		{"request was throttled", ErrorCategoryRetryable, domain.ErrRateLimit},
		{"input exceeds maximum context window: context length 200001", ErrorCategoryRetryable, domain.ErrContextOverflow},
		{"dial tcp: connection refused", ErrorCategoryRetryable, nil},
		{"context deadline exceeded", ErrorCategoryRetryable, nil},
		{"something else entirely", ErrorCategoryUnknown, nil},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got := c.Classify(errors.New(tt.body))
			if got.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", got.Category, tt.wantCategory)
			}
			if tt.wantSentinel != nil && !errors.Is(got.Sentinel, tt.wantSentinel) {
				t.Errorf("Sentinel = %v, want %v", got.Sentinel, tt.wantSentinel)
			}
		})
	}
}
