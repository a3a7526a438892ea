package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	// ErrorTypeConfiguration: a provider cannot be called as configured (missing API key, missing config)
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeTransport: the request never produced an HTTP response
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeProtocol: non-2xx status, or a 2xx body without usable content
	ErrorTypeProtocol        ErrorType = "protocol"
	ErrorTypeUnknownProvider ErrorType = "unknown_provider"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeInternal        ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error. Do not call it on the package-level sentinels.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	ErrPairNotFound          = NewDomainError(ErrorTypeNotFound, "pair not found in result set", nil)
	ErrRunNotFound           = NewDomainError(ErrorTypeNotFound, "comparison run not found", nil)
	ErrProviderNotConfigured = NewDomainError(ErrorTypeConfiguration, "Provider configuration not found", nil)

	ErrEmptyPrompt   = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)
	ErrNoPairs       = NewDomainError(ErrorTypeValidation, "at least one provider/model pair is required", nil)
	ErrNoSubmission  = NewDomainError(ErrorTypeValidation, "nothing has been submitted yet", nil)
	ErrInvalidParams = NewDomainError(ErrorTypeValidation, "invalid advanced parameters", nil)

	ErrUnknownProvider = NewDomainError(ErrorTypeUnknownProvider, "unknown provider", nil)

	ErrOrchestratorClosed = NewDomainError(ErrorTypeInternal, "orchestrator is closed", nil)
	ErrDatabaseError      = NewDomainError(ErrorTypeInternal, "database error", nil)
)

// ErrorTypeOf returns the type of the first DomainError in err's chain, or
// ErrorTypeInternal when there is none
func ErrorTypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return hasType(err, ErrorTypeConfiguration)
}

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// WrapError wraps err in a DomainError of the given type
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}
