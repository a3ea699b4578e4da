// Package identity authenticates principals against an external identity provider.
//
// A Service is session scoped, like a client SDK instance: it remembers the
// principal that last signed in until SignOut. A Factory vends one Service per
// device session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Every *Error unwraps to exactly one of them.
var (
	ErrUnavailable        = errors.New("identity service unavailable")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserDisabled       = errors.New("user disabled")
	ErrWeakPassword       = errors.New("weak password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrRejected           = errors.New("request rejected")
)

// Error carries the provider's user-facing message alongside its kind.
type Error struct {
	Kind    error
	Code    string // provider error code, e.g. EMAIL_EXISTS
	Message string // user-facing text; may be empty
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("identity: %s: %v", msg, e.cause)
	}
	return "identity: " + msg
}

// Unwrap exposes both the kind and the transport cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.cause}
}

// Principal is an authenticated account.
type Principal struct {
	ID           string
	Email        string
	PhotoURL     string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

func (p *Principal) clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Service is one device session's view of the identity provider.
type Service interface {
	CreatePrincipal(ctx context.Context, email, password string) (*Principal, error)
	// Authenticate returns (nil, nil) when the provider reports success without a principal.
	Authenticate(ctx context.Context, email, password string) (*Principal, error)
	AuthenticateWithFederatedToken(ctx context.Context, token string) (*Principal, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
	// CurrentPrincipal returns nil when no principal is signed in.
	CurrentPrincipal(ctx context.Context) (*Principal, error)
}

// Factory vends Services.
type Factory interface {
	New() Service
	// Restore resumes a session from a refresh token.
	Restore(ctx context.Context, refreshToken string) (Service, error)
}

// Message returns the user-facing message carried by err, if any.
func Message(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Message
	}
	return ""
}

// categorizeError converts errors to audit-safe categories.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailExists):
		return "email_exists"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUserDisabled):
		return "user_disabled"
	case errors.Is(err, ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	default:
		return "rejected"
	}
}
