package models

import (
	"errors"
	"fmt"
)

var (
	ErrConflictData         = errors.New("data conflicts with existing data")
	ErrDataNotFound         = errors.New("data not found")
	ErrInvalidCredentials   = errors.New("invalid login or password")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be at least %d", ErrInvalidInput, MinOrderAmount)
	ErrAlreadyTerminal      = errors.New("order is already in a terminal status")
	ErrUnreconciledCallback = errors.New("payment callback could not be matched to an order")
	ErrQueueFull            = errors.New("payment queue is full")
)

// ExternalServiceError reports a failure talking to a third-party provider.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

// NewExternalServiceError creates new ExternalServiceError
func NewExternalServiceError(service, op string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service: service,
		Op:      op,
		Err:     err,
	}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
