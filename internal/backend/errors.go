package backend

import (
	"errors"
	"fmt"
)

type ErrRegistryUnavailable struct {
	error
}

func NewErrRegistryUnavailable(preferredErr, hardwareErr error) *ErrRegistryUnavailable {
	return &ErrRegistryUnavailable{fmt.Errorf("backend registry is unreachable: preferred lookup: %v, hardware lookup: %w", preferredErr, hardwareErr)}
}

func (e *ErrRegistryUnavailable) Unwrap() error {
	return errors.Unwrap(e.error)
}
