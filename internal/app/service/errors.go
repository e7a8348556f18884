package service

import (
	"errors"

	"github.com/sifan077/PowerLink/internal/app/repository"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals an unknown short code or link id.
	ErrNotFound = repository.ErrLinkNotFound
	// ErrDuplicateCode signals a custom alias that is already taken.
	ErrDuplicateCode = repository.ErrDuplicateCode
	// ErrAlreadyOwned signals a claim on a link that already has an owner.
	ErrAlreadyOwned = repository.ErrAlreadyOwned
	// ErrForbidden signals that the caller does not own the link.
	ErrForbidden = errors.New("not the owner of this link")
	// ErrExpired signals a link that is inactive, past its TTL or out of clicks.
	ErrExpired = errors.New("link has expired")
	// ErrCodeGeneration signals that no free short code could be assigned.
	ErrCodeGeneration = errors.New("short code generation failed")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
