package models

import "errors"

// Error taxonomy shared by the registration flow, the coordinator and the stores.
// Callers match with errors.Is; stores wrap driver errors underneath these.
var (
	ErrValidation          = errors.New("validation failed")
	ErrPrerequisiteNotMet  = errors.New("prerequisite not met")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlotsFull           = errors.New("tournament slots full")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrUploadFailed        = errors.New("upload failed")
	ErrRemoteUnavailable   = errors.New("remote unavailable")
	ErrUnknown             = errors.New("unknown error")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrAlreadyReviewed     = errors.New("deposit already reviewed")
)

// ValidationError is a step-local, user-correctable failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
