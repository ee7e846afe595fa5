// Package inboxd provides an escalating assignment-reminder pipeline: it
// polls Canvas for upcoming assignments, schedules a ladder of reminders
// per deadline, and delivers them over SMS with increasing urgency.
//
// Inboxd is designed as an SDK-first library. An [Inbox] wires three
// agents over an in-process message bus and serves an HTTP API alongside
// them. Acknowledging a reminder marks the underlying assignment done and
// halts every remaining rung of its escalation ladder.
//
// # Quick Start
//
// Create an inbox and run it with graceful shutdown:
//
//	inbox, _ := inboxd.New(
//	    inboxd.WithSMSProvider("https://sms.example.com", token, "+15550001111"),
//	    inboxd.WithCanvas("https://canvas.example.edu", canvasToken),
//	    inboxd.WithDefaultPhone("+15557654321"),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	inbox.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// Inboxd uses the functional options pattern for configuration:
//
//	inbox, err := inboxd.New(
//	    inboxd.WithSMSProvider(smsURL, smsToken, from),
//	    inboxd.WithCanvas(canvasURL, canvasToken),
//	    inboxd.WithCourseIDs(101, 202),
//	    inboxd.WithPollInterval(10 * time.Minute),
//	    inboxd.WithEscalationOffsets(48*time.Hour, 12*time.Hour, time.Hour),
//	    inboxd.WithPort(9090),
//	)
//
// # Architecture
//
// Inboxd consists of several internal packages (under internal/):
//
//   - internal/canvas: Canvas REST client with pagination
//   - internal/poller: Periodic assignment polling with worker pool
//   - internal/scheduler: Escalation ladder derivation and priority dispatch
//   - internal/delivery: SMS delivery with exponential-backoff retries
//   - internal/bus: In-process pub/sub connecting the agents
//   - internal/store: Assignment and reminder persistence (memory or Postgres)
//   - internal/server: HTTP API with one-off reminder ingestion and
//     Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package inboxd
