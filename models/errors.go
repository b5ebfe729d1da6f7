package models

import (
	"errors"
	"fmt"
)

// ValidationError reports missing or malformed input. It is raised before any
// storage or provider call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports that the target record does not exist for the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// RemoteError wraps a failure of the data store or the auth provider.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ConflictError reports that the record changed between read and write.
// The caller may reload and retry.
type ConflictError struct {
	Resource string
	ID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

// ErrPaymentAmountRequired is returned when a debt is moved to the partial
// status without a payment amount.
var ErrPaymentAmountRequired = &ValidationError{Field: "amount", Message: "partial status requires a payment amount"}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}
