package errors

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// ErrorTypeDocker represents errors from Docker operations
	ErrorTypeDocker ErrorType = "docker"
	// ErrorTypeNginx represents errors from Nginx operations
	ErrorTypeNginx ErrorType = "nginx"
	// ErrorTypeConfig represents errors from configuration operations
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNetwork represents errors from network operations
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeContainer represents errors from container operations
	ErrorTypeContainer ErrorType = "container"
	// ErrorTypeSSL represents errors from SSL operations
	ErrorTypeSSL ErrorType = "ssl"
	// ErrorTypeSystem represents system-level errors
	ErrorTypeSystem ErrorType = "system"
	// ErrorTypeNoHostConfiguration represents a container with no usable
	// virtual-host annotation
	ErrorTypeNoHostConfiguration ErrorType = "no_host_configuration"
	// ErrorTypeUnreachableNetwork represents a container on a network the
	// proxy has no leg on
	ErrorTypeUnreachableNetwork ErrorType = "unreachable_network"
	// ErrorTypeProxyConfigTest represents an nginx -t validation failure
	ErrorTypeProxyConfigTest ErrorType = "proxy_config_test"
	// ErrorTypeProxyStart represents an nginx start/reload failure
	ErrorTypeProxyStart ErrorType = "proxy_start"
	// ErrorTypeACME represents an ACME protocol failure
	ErrorTypeACME ErrorType = "acme"
	// ErrorTypeDomainNotOwned represents a domain ownership check failure
	ErrorTypeDomainNotOwned ErrorType = "domain_not_owned"
	// ErrorTypeOrchestratorUnavailable represents the orchestrator API
	// being unreachable
	ErrorTypeOrchestratorUnavailable ErrorType = "orchestrator_unavailable"
	// ErrorTypePerContainerIntrospection represents a failure introspecting
	// a single container that should not abort processing of the others
	ErrorTypePerContainerIntrospection ErrorType = "per_container_introspection"
)

// Error represents a custom error with additional context
type Error struct {
	Type    ErrorType
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error
func New(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// RetryConfig represents the configuration for retrying operations
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Backoff     float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		Delay:       time.Second,
		MaxDelay:    time.Second * 30,
		Backoff:     2.0,
	}
}

// Retry executes the given operation with exponential backoff, built on
// backoff.ExponentialBackOff so jitter and max-interval clamping follow the
// library's behavior rather than a hand-rolled loop.
func Retry(ctx context.Context, config *RetryConfig, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.Delay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = config.Backoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by MaxAttempts below, not elapsed time

	attempt := 0
	var lastErr error
	bounded := backoff.WithMaxRetries(b, uint64(config.MaxAttempts-1))

	err := backoff.RetryNotify(func() error {
		attempt++
		lastErr = operation()
		return lastErr
	}, backoff.WithContext(bounded, ctx), func(err error, delay time.Duration) {
		log.Printf("Attempt %d failed: %v. Retrying in %v...", attempt, err, delay)
	})

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return New(ErrorTypeSystem, "operation cancelled", ctx.Err())
	}
	return New(ErrorTypeSystem, fmt.Sprintf("operation failed after %d attempts", attempt), lastErr)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Check if it's our custom error type
	if e, ok := err.(*Error); ok {
		switch e.Type {
		case ErrorTypeDocker, ErrorTypeNetwork:
			return true
		case ErrorTypeNginx, ErrorTypeConfig, ErrorTypeContainer, ErrorTypeSSL, ErrorTypeSystem:
			return false
		}
	}

	// Add more retryable error checks here
	return false
}

// Wrap wraps an error with additional context
func Wrap(err error, errType ErrorType, message string) error {
	if err == nil {
		return nil
	}
	return New(errType, message, err)
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == errType
	}
	return false
}

// GetErrorContext returns the context of an error
func GetErrorContext(err error) map[string]interface{} {
	if e, ok := err.(*Error); ok {
		return e.Context
	}
	return nil
}
