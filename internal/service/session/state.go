package session

import (
	"errors"

	"github.com/janisto/chatmate/internal/service/profile"
)

// Status is the phase of a sign-in or sign-up attempt.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// SignInState is the sign-in machine. The zero value is Idle.
type SignInState struct {
	Loading   bool    `json:"loading"`
	Succeeded bool    `json:"succeeded"`
	Error     *string `json:"error,omitempty"`
}

func (s SignInState) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Succeeded:
		return StatusSucceeded
	case s.Error != nil && *s.Error != "":
		return StatusFailed
	default:
		return StatusIdle
	}
}

func signInFailed(msg string) SignInState {
	return SignInState{Error: &msg}
}

// SignUpState is the sign-up machine. The zero value is Idle.
type SignUpState struct {
	Loading   bool   `json:"loading"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

func (s SignUpState) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Succeeded:
		return StatusSucceeded
	case s.Error != "":
		return StatusFailed
	default:
		return StatusIdle
	}
}

// Snapshot is the three published values read together.
type Snapshot struct {
	SignIn  SignInState
	SignUp  SignUpState
	Profile *profile.Profile
}

// Kind classifies a coordinator failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindUnknown     Kind = "unknown"
)

// Error is returned for input rejected before any backend call.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}
