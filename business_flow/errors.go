// Package businessflow contains the tariff snapshot use cases and their error types
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	ErrPayloadRequired = errors.New("tariff payload is required")
	ErrInvalidSortKey  = errors.New("invalid sort key")
)

// Error codes carried by BusinessError and StoreError
const (
	CodeStoreFailed    = "STORE_FAILED"
	CodeInvalidSort    = "INVALID_SORT"
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeFetchFailed    = "FETCH_FAILED"
	CodePublishFailed  = "PUBLISH_FAILED"
)

// BusinessError tags a failed tick stage with a stable code
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// StoreError reports a failed snapshot read or write. Writes are rolled back before it is returned.
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %v", e.Message, e.Err)
	}
	return "store: " + e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(code, message string, err error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError describes an upstream value that was coerced instead of stored
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsInvalidSortKey(err error) bool {
	return errors.Is(err, ErrInvalidSortKey)
}

// ErrorCode returns the code of the first coded error in the chain, or "" if none
func ErrorCode(err error) string {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return businessErr.Code
	}
	return ""
}
