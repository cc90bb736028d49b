// Package users manages user accounts and per-user key custody: the
// key-derivation salt, the public key, and the passphrase-encrypted
// private key. The server stores these blobs verbatim and can never
// decrypt the private key.
package users
