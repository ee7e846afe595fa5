// Package server provides the HTTP API for inboxd.
//
// This package is internal to inboxd and handles all HTTP concerns: the
// /send-reminder form contract, reminder listing and acknowledgement, a
// Server-Sent Events stream of reminder updates, the liveness probe, and
// the Prometheus metrics endpoint.
//
// Mutating routes can be protected with a shared secret carried in the
// X-Ingest-Secret header. The server supports graceful shutdown via
// context cancellation, with a 5-second timeout for in-flight requests.
//
// Users of the inboxd library should not need to interact with this
// package directly. The server is started by [inboxd.Inbox.Start].
package server
