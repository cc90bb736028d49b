// Package accounts implements expense accounts, per-account permission
// grants, encrypted transactions, and the access resolver that gates
// every read and write.
//
// Account payloads, data encryption keys, and transaction bodies are
// ciphertext produced client side. The server's job is custody and
// authorization, never decryption.
package accounts
