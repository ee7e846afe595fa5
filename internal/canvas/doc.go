// Package canvas provides the HTTP client for the Canvas LMS REST API.
//
// This package is internal to inboxd and handles fetching courses and
// assignments from a Canvas instance:
//
//   - [Client]: HTTP client with per-request timeouts and size limits
//   - [Course], [Assignment]: Canvas API resources
//   - [APIError], [ErrUnauthorized]: API failure modes
//
// Paginated list endpoints are followed via the Link header until
// exhausted. Users of the inboxd library should not need to interact with
// this package directly; polling is managed by the poller package.
package canvas
