// Package auth defines the identity and access-control primitives shared
// across the service: the User record with its end-to-end encryption
// material, the closed Role and Permission enums with their hierarchy
// comparisons, and the rules governing role transitions and member
// management.
//
// Two independent total orders drive every authorization decision:
//
//	organization roles:   viewer(1) < member(2) < admin(3) < owner(4)
//	account permissions:  view(1) < edit(2) < full(3)
//
// Unknown values compare at level 0 and are never sufficient.
//
// The package deliberately knows nothing about credentials. Password and
// session verification live behind the Authenticator interface; the core only
// consumes the resulting identity.
package auth
