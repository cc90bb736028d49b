// Package middleware provides HTTP middleware for authentication, request
// provenance, and panic recovery.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
)

// AuthMiddleware resolves request credentials to an authenticated user and
// places the user on the request context.
type AuthMiddleware struct {
	authenticator auth.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler wraps an HTTP handler with authentication. Requests whose
// credential does not resolve to a user are rejected with 401.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authenticator.Authenticate(r.Context(), r)
		if err != nil || user == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		ctx := auth.WithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromRequest extracts the authenticated user placed by Handler, or nil.
func UserFromRequest(r *http.Request) *auth.User {
	return auth.UserFromContext(r.Context())
}

// RequestContext captures provenance from the inbound request for audit
// records: client IP, user agent, and the request ID if one is present.
func RequestContext(r *http.Request) auth.RequestContext {
	return auth.RequestContext{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: r.Header.Get("X-Request-ID"),
	}
}

// clientIP prefers the first hop in X-Forwarded-For, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
