package deploy

import (
	"errors"
	"fmt"
)

// Builder errors. They are always returned wrapped in a *FieldError that
// names the offending input.
var (
	ErrInvalidKeyEncoding = errors.New("invalid public key encoding")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrMissingField       = errors.New("missing required field")
	ErrUnknownEntryPoint  = errors.New("unknown entry point")
)

// Envelope errors.
var (
	ErrBodyHashMismatch   = errors.New("body hash does not match payment and session")
	ErrDeployHashMismatch = errors.New("deploy hash does not match header")
	ErrInvalidApproval    = errors.New("approval signature does not verify")
)

// FieldError reports which builder input was rejected.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(field string, sentinel error, cause error) error {
	if cause == nil {
		return &FieldError{Field: field, Err: sentinel}
	}
	return &FieldError{Field: field, Err: fmt.Errorf("%w: %v", sentinel, cause)}
}
