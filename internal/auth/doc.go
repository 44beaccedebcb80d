// Package auth verifies the credentials clients present on authenticate:
// API keys looked up in the key store, and HS256 JWTs signed with the
// gateway's shared secret.
package auth
