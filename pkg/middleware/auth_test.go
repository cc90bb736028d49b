package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

type staticAuthenticator struct {
	user *auth.User
	err  error
}

func (a *staticAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.User, error) {
	return a.user, a.err
}

func TestAuthMiddleware(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "alice@example.com"}

	t.Run("authenticated user reaches handler", func(t *testing.T) {
		m := NewAuthMiddleware(&staticAuthenticator{user: user})
		var seen *auth.User
		h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = UserFromRequest(r)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, user.ID, seen.ID)
	})

	t.Run("rejected credential yields 401", func(t *testing.T) {
		m := NewAuthMiddleware(&staticAuthenticator{err: errors.New("bad token")})
		h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be reached")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "authentication required")
	})
}

func TestRequestContext(t *testing.T) {
	t.Run("prefers forwarded header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.1:9999"
		r.Header.Set("X-Forwarded-For", "203.0.113.4, 10.0.0.1")
		r.Header.Set("User-Agent", "ledgerlock-cli/1.0")
		r.Header.Set("X-Request-ID", "req-123")

		rc := RequestContext(r)
		assert.Equal(t, "203.0.113.4", rc.IPAddress)
		assert.Equal(t, "ledgerlock-cli/1.0", rc.UserAgent)
		assert.Equal(t, "req-123", rc.RequestID)
	})

	t.Run("falls back to remote addr", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "192.0.2.7:52000"
		rc := RequestContext(r)
		assert.Equal(t, "192.0.2.7", rc.IPAddress)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves client value", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Request-ID", "client-id")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, "client-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
