package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related fetch errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML/XML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeSitemap represents sitemap discovery errors
	ErrorTypeSitemap ErrorType = "sitemap"
	// ErrorTypeStore represents progress store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a scrape-pipeline error
type ScrapeError struct {
	Type     ErrorType
	Supplier string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Supplier, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Supplier, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if another fetch attempt may succeed
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeRateLimit:
		return false
	case ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable ScrapeError. Untyped errors
// are treated as retryable network failures.
func IsRetryable(err error) bool {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	return true
}

// New creates a new ScrapeError
func New(errType ErrorType, supplier, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:     errType,
		Supplier: supplier,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(supplier, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, supplier, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(supplier, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, supplier, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(supplier string, duration time.Duration) *ScrapeError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, supplier, message, nil)
}

// NewSitemap creates a new sitemap discovery error
func NewSitemap(supplier, message string, err error) *ScrapeError {
	return New(ErrorTypeSitemap, supplier, message, err)
}

// NewStore creates a new progress store error
func NewStore(message string, err error) *ScrapeError {
	return New(ErrorTypeStore, "", message, err)
}

// NewValidation creates a new validation error
func NewValidation(supplier, message string) *ScrapeError {
	return New(ErrorTypeValidation, supplier, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}
