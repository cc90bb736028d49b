package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/httputil"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
	"github.com/platinummonkey/ledgerlock/pkg/users"
)

type registerUserRequest struct {
	Email               string `json:"email"`
	PasswordHash        string `json:"password_hash"`
	Salt                string `json:"salt"`
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

// registerUser handles POST /api/v1/users. The client registers with a
// password verifier and its key material; the plaintext password and master
// key never cross the wire.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.Create(r.Context(), users.CreateParams{
		Email:               req.Email,
		PasswordHash:        req.PasswordHash,
		Salt:                req.Salt,
		PublicKey:           req.PublicKey,
		EncryptedPrivateKey: req.EncryptedPrivateKey,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// getSalt handles GET /api/v1/auth/salt?email=. The salt must be readable
// pre-authentication so the client can derive its master key before login.
func (s *Server) getSalt(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	salt, err := s.users.GetSalt(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"salt": salt})
}

// login handles POST /api/v1/auth/login. Authentication already happened
// in the middleware; this endpoint records the login and hands back the
// user's encrypted key material so the client can finish key derivation.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	if err := s.users.RecordLogin(r.Context(), user.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	full, err := s.users.GetByID(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":                  full,
		"encrypted_private_key": full.EncryptedPrivateKey,
	})
}

// currentUser handles GET /api/v1/users/me
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	full, err := s.users.GetByID(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, full)
}

type updateKeysRequest struct {
	Salt                string `json:"salt"`
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

// updateKeyMaterial handles PUT /api/v1/users/me/keys. All three blobs
// change together during a client-side password change.
func (s *Server) updateKeyMaterial(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	var req updateKeysRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.users.UpdateKeyMaterial(r.Context(), user.ID, req.Salt, req.PublicKey, req.EncryptedPrivateKey); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type publicKeysRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

// getPublicKeys handles POST /api/v1/users/public-keys. Clients fetch peer
// public keys to wrap organization keys for other members.
func (s *Server) getPublicKeys(w http.ResponseWriter, r *http.Request) {
	var req publicKeysRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	keys, err := s.users.GetPublicKeys(r.Context(), req.UserIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"public_keys": keys})
}
