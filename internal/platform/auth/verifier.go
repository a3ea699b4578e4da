// Package auth verifies bearer ID tokens issued to signed-in principals.
package auth

import (
	"context"
	"errors"
	"strings"
)

// Caller is the principal a bearer token was issued to.
type Caller struct {
	UID           string
	Email         string
	EmailVerified bool
}

var (
	ErrNoToken      = errors.New("missing authorization header")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	ErrUserDisabled = errors.New("user disabled")

	// ErrCertificateFetch maps to 503: the key set could not be fetched.
	ErrCertificateFetch = errors.New("failed to fetch certificates")
)

// Verifier validates an ID token and returns its caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Caller, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (*Caller, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Caller, error) {
	return f(ctx, token)
}

// ExtractBearerToken returns the token from an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoToken
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}

// StaticVerifier returns a fixed caller or error. Tests use it in place of Firebase.
type StaticVerifier struct {
	Caller *Caller
	Err    error
}

// Verify returns the configured error, else the configured caller.
func (s *StaticVerifier) Verify(context.Context, string) (*Caller, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Caller, nil
}

var (
	_ Verifier = VerifierFunc(nil)
	_ Verifier = (*StaticVerifier)(nil)
)
