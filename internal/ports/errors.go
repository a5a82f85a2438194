package ports

import (
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrDimensionMismatch indicates that a vector's length differs from
	// the length the store or embedder expects.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMissingEmbedding indicates that a chunk reached a store without
	// an embedding.
	ErrMissingEmbedding = errors.New("chunk has no embedding")

	// ErrCacheCorrupted indicates that cached data has an unexpected type.
	ErrCacheCorrupted = errors.New("cache corrupted")
)

// LLMError represents an error from an LLM provider.
type LLMError struct {
	Model     string
	Operation string
	Err       error

	// TokensUsed is the number of tokens consumed before the error occurred.
	TokensUsed int

	// RetryAfter indicates how long to wait before retrying, if applicable.
	RetryAfter *time.Duration
}

// Error implements the error interface for LLMError.
func (e *LLMError) Error() string {
	msg := fmt.Sprintf("LLM error: model=%s, operation=%s, err=%v", e.Model, e.Operation, e.Err)
	if e.TokensUsed > 0 {
		msg += fmt.Sprintf(", tokens_used=%d", e.TokensUsed)
	}
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func (e *LLMError) IsRetryable() bool { return isTransient(e.Err) }

// NewLLMError creates a new LLMError with the given details.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// EmbeddingError represents a failure to embed text.
type EmbeddingError struct {
	Provider string
	Model    string
	// Inputs is the number of texts in the failed request.
	Inputs int
	Err    error
}

// Error implements the error interface for EmbeddingError.
func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error: provider=%s, model=%s, inputs=%d, err=%v",
		e.Provider, e.Model, e.Inputs, e.Err)
}

// Unwrap returns the underlying error.
func (e *EmbeddingError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary.
func (e *EmbeddingError) IsRetryable() bool { return isTransient(e.Err) }

// NewEmbeddingError creates a new EmbeddingError with the given details.
func NewEmbeddingError(provider, model string, inputs int, err error) *EmbeddingError {
	return &EmbeddingError{Provider: provider, Model: model, Inputs: inputs, Err: err}
}

// StoreError represents a failed vector store operation.
type StoreError struct {
	Driver    string
	Operation string
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: driver=%s, operation=%s, err=%v", e.Driver, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(driver, operation string, err error) *StoreError {
	return &StoreError{Driver: driver, Operation: operation, Err: err}
}

// CacheError represents an error from cache operations.
type CacheError struct {
	Key       string
	Operation string
	Err       error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{Key: key, Operation: operation, Err: err}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	ConfigKey string
	Err       error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{ConfigKey: key, Err: err}
}

// Only network and service-level errors are retryable; logic errors are not.
func isTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
