package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/ledgerlock/pkg/accounts"
	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
	"github.com/platinummonkey/ledgerlock/pkg/users"
)

// Server routes HTTP requests to the service layer. Everything it ships or
// receives is ciphertext except membership metadata and audit entries.
type Server struct {
	router     *mux.Router
	users      *users.PostgresService
	orgs       *orgs.PostgresService
	accounts   *accounts.PostgresService
	auditStore *audit.Store
	logger     *observability.Logger
}

// NewServer creates an API server wired to the given services. The
// authenticator guards every route except registration, salt lookup, and
// invitation token verification.
func NewServer(
	userSvc *users.PostgresService,
	orgSvc *orgs.PostgresService,
	accountSvc *accounts.PostgresService,
	auditStore *audit.Store,
	authenticator auth.Authenticator,
	logger *observability.Logger,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		users:      userSvc,
		orgs:       orgSvc,
		accounts:   accountSvc,
		auditStore: auditStore,
		logger:     logger,
	}
	s.setupRoutes(authenticator)
	return s
}

// routeTemplate returns the mux route template for metrics labels, keeping
// metric cardinality bounded by the route table rather than raw URLs.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(authenticator auth.Authenticator) {
	s.router.Use(
		middleware.RequestIDMiddleware,
		middleware.RecoveryMiddleware(s.logger),
		observability.HTTPMetricsMiddleware(routeTemplate),
	)

	// Public routes: registration, pre-auth salt lookup, and invitation
	// token verification. The salt must be readable before login because
	// the client derives its master key from it.
	s.router.HandleFunc("/api/v1/users", s.registerUser).Methods("POST")
	s.router.HandleFunc("/api/v1/auth/salt", s.getSalt).Methods("GET")
	s.router.HandleFunc("/api/v1/invitations/token/{token}", s.verifyInvitation).Methods("GET")

	// Everything else requires an authenticated user.
	authn := middleware.NewAuthMiddleware(authenticator)
	private := s.router.PathPrefix("/api/v1").Subrouter()
	private.Use(authn.Handler)

	// User routes
	private.HandleFunc("/auth/login", s.login).Methods("POST")
	private.HandleFunc("/users/me", s.currentUser).Methods("GET")
	private.HandleFunc("/users/me/keys", s.updateKeyMaterial).Methods("PUT")
	private.HandleFunc("/users/public-keys", s.getPublicKeys).Methods("POST")

	// Organization routes
	private.HandleFunc("/organizations", s.createOrganization).Methods("POST")
	private.HandleFunc("/organizations", s.listOrganizations).Methods("GET")
	private.HandleFunc("/organizations/{id}", s.getOrganization).Methods("GET")
	private.HandleFunc("/organizations/{id}", s.updateOrganization).Methods("PUT")
	private.HandleFunc("/organizations/{id}", s.deleteOrganization).Methods("DELETE")
	private.HandleFunc("/organizations/{id}/members", s.listMembers).Methods("GET")
	private.HandleFunc("/organizations/{id}/members/{userId}", s.updateMemberRole).Methods("PUT")
	private.HandleFunc("/organizations/{id}/members/{userId}", s.removeMember).Methods("DELETE")
	private.HandleFunc("/organizations/{id}/transfer", s.transferOwnership).Methods("POST")
	private.HandleFunc("/organizations/{id}/rotate-keys", s.rotateKeys).Methods("POST")
	private.HandleFunc("/organizations/{id}/audit", s.listAuditLog).Methods("GET")

	// Invitation routes
	private.HandleFunc("/organizations/{id}/invitations", s.createInvitation).Methods("POST")
	private.HandleFunc("/organizations/{id}/invitations", s.listOrgInvitations).Methods("GET")
	private.HandleFunc("/organizations/{id}/invitations/{invitationId}", s.cancelInvitation).Methods("DELETE")
	private.HandleFunc("/invitations", s.listMyInvitations).Methods("GET")
	private.HandleFunc("/invitations/token/{token}/accept", s.acceptInvitation).Methods("POST")
	private.HandleFunc("/invitations/token/{token}/reject", s.rejectInvitation).Methods("POST")

	// Account routes
	private.HandleFunc("/accounts", s.createAccount).Methods("POST")
	private.HandleFunc("/accounts", s.listAccounts).Methods("GET")
	private.HandleFunc("/accounts/{id}", s.getAccount).Methods("GET")
	private.HandleFunc("/accounts/{id}", s.updateAccount).Methods("PUT")
	private.HandleFunc("/accounts/{id}", s.deleteAccount).Methods("DELETE")
	private.HandleFunc("/accounts/{id}/permissions", s.listAccountPermissions).Methods("GET")
	private.HandleFunc("/accounts/{id}/permissions/{userId}", s.setAccountPermission).Methods("PUT")
	private.HandleFunc("/accounts/{id}/permissions/{userId}", s.removeAccountPermission).Methods("DELETE")

	// Transaction routes
	private.HandleFunc("/accounts/{id}/transactions", s.createTransaction).Methods("POST")
	private.HandleFunc("/accounts/{id}/transactions", s.listTransactions).Methods("GET")
	private.HandleFunc("/transactions/{id}", s.getTransaction).Methods("GET")
	private.HandleFunc("/transactions/{id}", s.updateTransaction).Methods("PUT")
	private.HandleFunc("/transactions/{id}", s.deleteTransaction).Methods("DELETE")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
