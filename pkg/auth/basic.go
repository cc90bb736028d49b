package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
)

// ErrBadCredentials is returned for any credential failure. It is
// deliberately indistinct: callers cannot tell an unknown email from a
// wrong verifier.
var ErrBadCredentials = errors.New("invalid credentials")

// UserLookup resolves an email to a stored user record.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// BasicAuthenticator authenticates requests carrying HTTP Basic
// credentials. The "password" it compares is the client-derived auth
// verifier, not the user's actual password: the client derives it from the
// password and salt locally, so the password itself never crosses the
// wire. Real deployments put a session layer in front; this is the
// fallback that works with nothing but the user table.
type BasicAuthenticator struct {
	users UserLookup
}

// NewBasicAuthenticator creates an authenticator backed by the user store.
func NewBasicAuthenticator(users UserLookup) *BasicAuthenticator {
	return &BasicAuthenticator{users: users}
}

// Authenticate implements Authenticator.
func (a *BasicAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	email, verifier, ok := r.BasicAuth()
	if !ok {
		return nil, ErrBadCredentials
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, ErrBadCredentials
	}

	if subtle.ConstantTimeCompare([]byte(user.PasswordHash), []byte(verifier)) != 1 {
		return nil, ErrBadCredentials
	}
	return user, nil
}
