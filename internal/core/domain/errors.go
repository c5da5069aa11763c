package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrNotConfigured      = errors.New("provider not configured")
	ErrProviderTimeout    = errors.New("provider timeout")
	ErrProviderError      = errors.New("provider error")
	ErrNoInformationFound = errors.New("no information found")
	ErrKnowledgeNotFound  = errors.New("knowledge item not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrAlreadyExists      = errors.New("already exists")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
