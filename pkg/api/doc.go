// Package api exposes the HTTP surface of the service.
//
// Handlers are thin: they parse and validate the request shape, pull the
// authenticated user off the context, and delegate to the service layer.
// Authorization lives entirely in the services; the API's only policy
// decision is the mapping from sentinel errors to HTTP statuses.
package api
