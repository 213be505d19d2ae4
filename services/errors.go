package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated       ErrorType = "unauthenticated"
	ErrorTypeInsufficientPrivilege ErrorType = "insufficient_privilege"
	ErrorTypeInvalidSignature      ErrorType = "invalid_signature"
	ErrorTypeExpired               ErrorType = "expired"
	ErrorTypeBadCredentials        ErrorType = "bad_credentials"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeProviderMismatch      ErrorType = "provider_mismatch"
	ErrorTypeUnknownSession        ErrorType = "unknown_session"
	ErrorTypeTooManyRequests       ErrorType = "too_many_requests"
	ErrorTypePayloadTooLarge       ErrorType = "payload_too_large"
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeConflict              ErrorType = "conflict"
	ErrorTypeInternal              ErrorType = "internal"
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

// Is implements errors.Is. Two domain errors match when their types match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error.
// Call it on errors built with NewDomainError, never on the shared sentinels below.
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
	// Access errors
	ErrUnauthenticated       = NewDomainError(ErrorTypeUnauthenticated, "authentication required", nil)
	ErrInsufficientPrivilege = NewDomainError(ErrorTypeInsufficientPrivilege, "insufficient privileges", nil)

	// Token errors
	ErrInvalidSignature = NewDomainError(ErrorTypeInvalidSignature, "token signature is invalid", nil)
	ErrTokenExpired     = NewDomainError(ErrorTypeExpired, "token has expired", nil)

	// Credential errors
	ErrBadCredentials   = NewDomainError(ErrorTypeBadCredentials, "credentials do not match", nil)
	ErrUserNotFound     = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrProviderMismatch = NewDomainError(ErrorTypeProviderMismatch, "provider identity is linked to another account", nil)

	// Session bridge errors
	ErrUnknownSession = NewDomainError(ErrorTypeUnknownSession, "sign-in session is unknown or expired", nil)

	// Pipeline errors
	ErrTooManyRequests = NewDomainError(ErrorTypeTooManyRequests, "rate limit exceeded", nil)
	ErrPayloadTooLarge = NewDomainError(ErrorTypePayloadTooLarge, "payload too large", nil)

	// Validation errors
	ErrInvalidInput    = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrUnknownProvider = NewDomainError(ErrorTypeValidation, "unknown sign-in provider", nil)

	// Conflict errors
	ErrDuplicateUsername = NewDomainError(ErrorTypeConflict, "username already exists", nil)
	ErrDuplicateEmail    = NewDomainError(ErrorTypeConflict, "email already exists", nil)
	ErrDuplicateIdentity = NewDomainError(ErrorTypeConflict, "provider identity already linked", nil)

	// Internal errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
)

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsTokenError checks if an error came from token verification (bad signature or expiry)
func IsTokenError(err error) bool {
	return isType(err, ErrorTypeInvalidSignature) || isType(err, ErrorTypeExpired)
}

// IsCredentialError checks if an error is a password-path failure.
// Unknown users and wrong passwords are deliberately reported alike.
func IsCredentialError(err error) bool {
	return isType(err, ErrorTypeBadCredentials) || isType(err, ErrorTypeNotFound)
}

// IsUnauthenticatedError checks if an error is an unauthenticated error
func IsUnauthenticatedError(err error) bool {
	return isType(err, ErrorTypeUnauthenticated)
}

// IsInsufficientPrivilegeError checks if an error is an insufficient privilege error
func IsInsufficientPrivilegeError(err error) bool {
	return isType(err, ErrorTypeInsufficientPrivilege)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsProviderMismatchError checks if an error is a provider mismatch error
func IsProviderMismatchError(err error) bool {
	return isType(err, ErrorTypeProviderMismatch)
}

// IsDuplicateIdentityError reports whether err is the provider-link race
// sentinel itself. Other conflicts such as a taken email do not match.
func IsDuplicateIdentityError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr == ErrDuplicateIdentity
}

// IsUnknownSessionError checks if an error is an unknown session error
func IsUnknownSessionError(err error) bool {
	return isType(err, ErrorTypeUnknownSession)
}

// IsTooManyRequestsError checks if an error is a rate limit error
func IsTooManyRequestsError(err error) bool {
	return isType(err, ErrorTypeTooManyRequests)
}

// IsPayloadTooLargeError checks if an error is a payload size error
func IsPayloadTooLargeError(err error) bool {
	return isType(err, ErrorTypePayloadTooLarge)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
