package app

import "errors"

var (
	// ErrUnauthorized indicates no resolvable identity. Presence
	// operations swallow it; everything else propagates it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller that is not a
	// member of the target conversation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidSync indicates a sync request whose subject does not
	// match the verified identity.
	ErrInvalidSync = errors.New("invalid user sync request")

	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ValidationError carries a user-facing message for rejected input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validation(msg string) error { return &ValidationError{Message: msg} }

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is one of the not-found variants.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrMessageNotFound)
}
