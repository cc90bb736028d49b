// Package orgs implements organizations, memberships, invitations, and
// organization key rotation.
//
// The server treats all key material as opaque. Each member holds the
// organization key wrapped under their own public key; invitations stage
// a wrapped copy for the invitee, and rotation replaces every wrapped
// copy in one transaction. Nothing in this package can decrypt any of
// it.
package orgs
