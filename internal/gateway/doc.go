// Package gateway implements the connection registry, channel router,
// reaper and per-connection session state machine of the broadcast gateway.
//
// The package is transport-agnostic: a connection reaches its client
// through an Outbox, which adapters (see adapter/websocket) implement with a
// bounded queue drained by a writer goroutine.
//
// Structural mutation goes through Hub: Connect, Subscribe, Unsubscribe and
// Disconnect keep the registry and the router consistent, so a closed
// connection is never left in any channel's subscriber set.
package gateway
