// Package postgres holds the optional relational side of the gateway: the
// API key store used for authentication and the event archiver, plus the
// embedded tern migrations they depend on.
package postgres
