package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
)

// writeServiceError maps service-layer sentinel errors to HTTP statuses.
// Access-denied kinds collapse to one opaque 403 so a caller cannot probe
// whether a resource exists behind a membership they lack. Invitation token
// failures stay distinct because the token holder is entitled to know why
// the token no longer works. Storage failures are logged, never surfaced.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, errs.ErrInvitationNotFound):
		httputil.WriteNotFound(w, "invitation not found")
	case errors.Is(err, errs.ErrInvitationAccepted), errors.Is(err, errs.ErrInvitationRejected):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, errs.ErrInvitationExpired):
		httputil.WriteGone(w, "invitation has expired")
	case errs.IsAccessDenied(err):
		httputil.WriteForbidden(w, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		httputil.WriteNotFound(w, "not found")
	case errors.Is(err, errs.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
