// Package auth is the identity side of the portal: who a client claims to be
// and how that claim is verified, issued and revoked. Roles and grants live
// with the profile, not here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Identity is an authenticated principal issued by a Provider.
type Identity struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider is the external authentication service seen from one client
// runtime.
type Provider interface {
	SignInWithCredentials(ctx context.Context, identifier, secret string) (*Identity, error)
	// SignOut clears provider-side credentials. It is safe to call when no
	// one is signed in.
	SignOut(ctx context.Context) error
	// Subscribe registers fn for identity changes and calls it once with the
	// current identity (nil when signed out). Calls are synchronous and made
	// in subscription order.
	Subscribe(fn func(*Identity)) (unsubscribe func())
	Current() *Identity
}

// Account is a credential record held by a Directory.
type Account struct {
	UID   string
	Email string
}

// Directory stores credentials. Authenticate returns ErrInvalidCredentials
// for both unknown emails and wrong secrets.
type Directory interface {
	Authenticate(ctx context.Context, email, secret string) (*Account, error)
	CreateAccount(ctx context.Context, email, secret string) (string, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

type Code string

const (
	CodeInvalidCredentials Code = "invalid-credentials"
	CodeAccountNotFound    Code = "account-not-found"
	CodeAccountDisabled    Code = "account-disabled"
	CodeSignInInProgress   Code = "sign-in-in-progress"
	CodeSessionSuperseded  Code = "session-superseded"
	CodeTooManyAttempts    Code = "too-many-attempts"
	CodeInvalidSession     Code = "invalid-session"
)

// AuthError is a sign-in failure the caller can show to the user.
type AuthError struct {
	Code  Code
	Cause error
}

func NewAuthError(code Code, cause error) *AuthError {
	return &AuthError{Code: code, Cause: cause}
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth/%s: %v", e.Code, e.Cause)
	}
	return "auth/" + string(e.Code)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Message is the text a sign-in form displays.
func (e *AuthError) Message() string {
	switch e.Code {
	case CodeInvalidCredentials:
		return "Invalid email or password"
	case CodeAccountNotFound:
		return "No portal account exists for this user"
	case CodeAccountDisabled:
		return "This account has been disabled. Please contact an administrator"
	case CodeSignInInProgress:
		return "A sign-in is already in progress"
	case CodeSessionSuperseded:
		return "The session changed while signing in. Please try again"
	case CodeTooManyAttempts:
		return "Too many sign-in attempts. Please wait and try again"
	case CodeInvalidSession:
		return "Your session is no longer valid. Please sign in again"
	}
	return "Sign-in failed"
}

// IsCode reports whether err is an AuthError with the given code.
func IsCode(err error, code Code) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == code
}

// ProfileResolutionError means the profile of a verified identity could not
// be loaded or created.
type ProfileResolutionError struct {
	UID   string
	Cause error
}

func (e *ProfileResolutionError) Error() string {
	return fmt.Sprintf("resolve profile for %s: %v", e.UID, e.Cause)
}

func (e *ProfileResolutionError) Unwrap() error {
	return e.Cause
}
