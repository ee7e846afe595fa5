// Package poller provides the CanvasPollerAgent for inboxd.
//
// This package is internal to inboxd and handles the periodic pull of
// assignment data from the Canvas API. Each cycle fetches assignments for
// the configured (or discovered) courses with a bounded worker pool,
// upserts them into the store, and announces completion on the canvas.poll
// topic for the scheduler to react to.
//
// The main component is [Agent], created with [New] and driven by
// Start/Stop. Users of the inboxd library should not need to interact with
// this package directly.
package poller
