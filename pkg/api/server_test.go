package api

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ledgerlock/pkg/accounts"
	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/notify"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
	"github.com/platinummonkey/ledgerlock/pkg/users"
)

// fixedAuthenticator resolves every request to one user, or fails.
type fixedAuthenticator struct {
	user *auth.User
	err  error
}

func (a *fixedAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*auth.User, error) {
	return a.user, a.err
}

func newTestServer(t *testing.T, user *auth.User) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	recorder := audit.NewPostgresRecorder(db, logger)
	orgSvc := orgs.NewPostgresService(db, recorder, notify.NopNotifier{}, logger)
	accountSvc := accounts.NewPostgresService(db, orgSvc, recorder)
	userSvc := users.NewPostgresService(db)

	authn := &fixedAuthenticator{user: user}
	if user == nil {
		authn.err = errors.New("no credential")
	}
	return NewServer(userSvc, orgSvc, accountSvc, audit.NewStore(db), authn, logger), mock
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestAuthenticationGate(t *testing.T) {
	server, _ := newTestServer(t, nil)

	t.Run("private routes reject anonymous requests", func(t *testing.T) {
		rec := doRequest(server, "GET", "/api/v1/organizations", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("registration stays public", func(t *testing.T) {
		rec := doRequest(server, "POST", "/api/v1/users", `{broken`)
		// Reaches the handler and fails on the body, not on auth.
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegisterUser(t *testing.T) {
	server, mock := newTestServer(t, nil)

	t.Run("created", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		rec := doRequest(server, "POST", "/api/v1/users",
			`{"email":"alice@example.com","password_hash":"h","salt":"s","public_key":"pk","encrypted_private_key":"epk"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice@example.com")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to conflict", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO users`).WillReturnError(sql.ErrNoRows)

		rec := doRequest(server, "POST", "/api/v1/users",
			`{"email":"alice@example.com","password_hash":"h","salt":"s","public_key":"pk","encrypted_private_key":"epk"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields map to bad request", func(t *testing.T) {
		rec := doRequest(server, "POST", "/api/v1/users", `{"email":"alice@example.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSalt(t *testing.T) {
	server, mock := newTestServer(t, nil)

	t.Run("returns salt pre-auth", func(t *testing.T) {
		mock.ExpectQuery(`SELECT salt FROM users`).
			WithArgs("alice@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"salt"}).AddRow("abc123"))

		rec := doRequest(server, "GET", "/api/v1/auth/salt?email=alice@example.com", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "abc123")
	})

	t.Run("missing email", func(t *testing.T) {
		rec := doRequest(server, "GET", "/api/v1/auth/salt", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		mock.ExpectQuery(`SELECT salt FROM users`).WillReturnError(sql.ErrNoRows)

		rec := doRequest(server, "GET", "/api/v1/auth/salt?email=ghost@example.com", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func expectOrgFetch(mock sqlmock.Sqlmock, orgID uuid.UUID) {
	mock.ExpectQuery(`SELECT id, name, description, settings, created_by, created_at, updated_at FROM organizations`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "settings", "created_by", "created_at", "updated_at"}).
			AddRow(orgID, "Acme", "", []byte(`{}`), nil, time.Now(), time.Now()))
}

func expectMembership(mock sqlmock.Sqlmock, orgID, userID uuid.UUID, role auth.Role) {
	mock.ExpectQuery(`SELECT id, organization_id, user_id, role, wrapped_org_key, invited_by, joined_at FROM organization_members`).
		WithArgs(orgID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "user_id", "role", "wrapped_org_key", "invited_by", "joined_at"}).
			AddRow(uuid.New(), orgID, userID, role, "wrapped", nil, time.Now()))
}

func TestGetOrganization(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "alice@example.com"}

	t.Run("member sees the organization", func(t *testing.T) {
		server, mock := newTestServer(t, user)
		orgID := uuid.New()
		expectOrgFetch(mock, orgID)
		expectMembership(mock, orgID, user.ID, auth.RoleViewer)
		expectOrgFetch(mock, orgID)

		rec := doRequest(server, "GET", "/api/v1/organizations/"+orgID.String(), "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Acme")
	})

	t.Run("non-member gets an opaque 403", func(t *testing.T) {
		server, mock := newTestServer(t, user)
		orgID := uuid.New()
		expectOrgFetch(mock, orgID)
		mock.ExpectQuery(`SELECT id, organization_id, user_id, role, wrapped_org_key, invited_by, joined_at FROM organization_members`).
			WillReturnError(sql.ErrNoRows)

		rec := doRequest(server, "GET", "/api/v1/organizations/"+orgID.String(), "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "forbidden")
		assert.NotContains(t, rec.Body.String(), "member")
	})

	t.Run("missing organization is a 404", func(t *testing.T) {
		server, mock := newTestServer(t, user)
		orgID := uuid.New()
		mock.ExpectQuery(`SELECT id, name, description, settings, created_by, created_at, updated_at FROM organizations`).
			WillReturnError(sql.ErrNoRows)

		rec := doRequest(server, "GET", "/api/v1/organizations/"+orgID.String(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is a 400", func(t *testing.T) {
		server, _ := newTestServer(t, user)
		rec := doRequest(server, "GET", "/api/v1/organizations/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerifyInvitationStatuses(t *testing.T) {
	const columns = "id, organization_id, email, role, wrapped_org_key, invited_by, token, message, expires_at, created_at, accepted_at, rejected_at"

	invitationRow := func(expiresAt time.Time, acceptedAt, rejectedAt *time.Time) *sqlmock.Rows {
		return sqlmock.NewRows(strings.Split(columns, ", ")).
			AddRow(uuid.New(), uuid.New(), "bob@example.com", "member", "wrapped", uuid.New(),
				"tok123", "", expiresAt, time.Now().Add(-time.Hour), acceptedAt, rejectedAt)
	}

	t.Run("unknown token is 404", func(t *testing.T) {
		server, mock := newTestServer(t, nil)
		mock.ExpectQuery(`FROM organization_invitations WHERE token`).WillReturnError(sql.ErrNoRows)

		rec := doRequest(server, "GET", "/api/v1/invitations/token/tok123", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("pending token is 200", func(t *testing.T) {
		server, mock := newTestServer(t, nil)
		mock.ExpectQuery(`FROM organization_invitations WHERE token`).
			WillReturnRows(invitationRow(time.Now().Add(time.Hour), nil, nil))

		rec := doRequest(server, "GET", "/api/v1/invitations/token/tok123", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bob@example.com")
		// The raw token never appears in a response body.
		assert.NotContains(t, rec.Body.String(), "tok123")
	})

	t.Run("accepted token is 409", func(t *testing.T) {
		server, mock := newTestServer(t, nil)
		accepted := time.Now().Add(-time.Minute)
		mock.ExpectQuery(`FROM organization_invitations WHERE token`).
			WillReturnRows(invitationRow(time.Now().Add(time.Hour), &accepted, nil))

		rec := doRequest(server, "GET", "/api/v1/invitations/token/tok123", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("expired token is 410", func(t *testing.T) {
		server, mock := newTestServer(t, nil)
		mock.ExpectQuery(`FROM organization_invitations WHERE token`).
			WillReturnRows(invitationRow(time.Now().Add(-time.Hour), nil, nil))

		rec := doRequest(server, "GET", "/api/v1/invitations/token/tok123", "")
		assert.Equal(t, http.StatusGone, rec.Code)
	})
}

func TestStorageFailuresStayOpaque(t *testing.T) {
	user := &auth.User{ID: uuid.New(), Email: "alice@example.com"}
	server, mock := newTestServer(t, user)

	mock.ExpectQuery(`SELECT id, name, description, settings, created_by, created_at, updated_at FROM organizations`).
		WillReturnError(errors.New("connection refused"))

	rec := doRequest(server, "GET", "/api/v1/organizations/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
