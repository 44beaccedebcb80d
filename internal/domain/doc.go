// Package domain defines the core gateway types and interfaces.
//
// Concept-oriented files (message.go, filter.go, identity.go, rate_limit.go,
// channel.go, errors.go) hold shared types and the interfaces implemented by
// adapters. No infrastructure code lives here, which keeps the adapter
// packages free of import cycles.
package domain
