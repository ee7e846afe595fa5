// Package store provides persistence for assignments and reminders.
//
// This package is internal to inboxd and holds the pipeline's state:
// assignments pulled from Canvas and the reminders derived from them (plus
// one-off reminders created through the API). It implements a
// publish-subscribe pattern for real-time reminder updates consumed by the
// API's event stream.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation for development and tests
//   - [PostgresStore]: pgx-backed implementation for persistent deployments
//   - [Reminder], [Assignment], [Status]: Stored records and lifecycle
//
// Both implementations are safe for concurrent access. Subscribers receive
// updates via channels with non-blocking sends (slow subscribers miss
// updates rather than block the pipeline).
package store
