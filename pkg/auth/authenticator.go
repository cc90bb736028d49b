package auth

import (
	"context"
	"net/http"
)

// Authenticator maps a request credential to a user identity. Password
// hashing and token issuance happen behind this interface; the core never
// inspects credentials itself.
type Authenticator interface {
	// Authenticate resolves the request's credential to a user, or returns an
	// error if the credential is missing or invalid.
	Authenticate(ctx context.Context, r *http.Request) (*User, error)
}

type userContextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext retrieves the authenticated user, or nil if none is set.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}
