package inboxd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ttinbox/inboxd/internal/store"
)

// inboxConfig holds mutable state during Inbox construction.
type inboxConfig struct {
	canvasURL      string
	canvasToken    string
	courseIDs      []int64
	pollInterval   time.Duration
	tickInterval   time.Duration
	offsets        []time.Duration
	port           int
	maxConcurrency int
	smsURL         string
	smsToken       string
	smsFrom        string
	maxAttempts    int
	defaultPhone   string
	ingestSecret   string
	store          store.Store
	logger         *slog.Logger
	callbacks      []func(ReminderUpdate)
}

// Option is a function that configures an [Inbox] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*inboxConfig) error

// WithCanvas configures the Canvas instance to poll for assignments.
//
// baseURL is the Canvas API root (e.g. "https://canvas.example.edu") and
// token is a Canvas API access token. If Canvas is not configured the
// poller is disabled and only one-off reminders created through the API
// are delivered.
//
// Returns an error if baseURL is set without a token, or vice versa.
func WithCanvas(baseURL, token string) Option {
	return func(cfg *inboxConfig) error {
		if (baseURL == "") != (token == "") {
			return errors.New("canvas base URL and token must both be set")
		}
		cfg.canvasURL = baseURL
		cfg.canvasToken = token
		return nil
	}
}

// WithCourseIDs restricts polling to the given Canvas course IDs.
//
// When no course IDs are configured, the poller discovers the user's
// active courses on every cycle instead.
func WithCourseIDs(ids ...int64) Option {
	return func(cfg *inboxConfig) error {
		for _, id := range ids {
			if id <= 0 {
				return fmt.Errorf("course ID must be positive, got %d", id)
			}
		}
		cfg.courseIDs = append(cfg.courseIDs, ids...)
		return nil
	}
}

// WithPollInterval sets how often Canvas is polled for assignments.
//
// Defaults to 15 minutes if not specified.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *inboxConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithTickInterval sets how often the scheduler runs a pass, deriving
// escalation reminders and dispatching those that are due.
//
// Defaults to 1 minute if not specified.
//
// Returns an error if the duration is zero or negative.
func WithTickInterval(d time.Duration) Option {
	return func(cfg *inboxConfig) error {
		if d <= 0 {
			return errors.New("tick interval must be positive")
		}
		cfg.tickInterval = d
		return nil
	}
}

// WithEscalationOffsets sets the escalation ladder: one reminder is
// scheduled per offset, at deadline minus offset.
//
// Offsets must be positive and strictly decreasing so rung 0 is the
// earliest nudge and the last rung is the most urgent. Defaults to
// 72h, 24h, 6h, 1h if not specified.
func WithEscalationOffsets(offsets ...time.Duration) Option {
	return func(cfg *inboxConfig) error {
		if len(offsets) == 0 {
			return errors.New("at least one escalation offset is required")
		}
		for i, off := range offsets {
			if off <= 0 {
				return fmt.Errorf("escalation offset must be positive, got %s", off)
			}
			if i > 0 && off >= offsets[i-1] {
				return errors.New("escalation offsets must be strictly decreasing")
			}
		}
		cfg.offsets = append([]time.Duration(nil), offsets...)
		return nil
	}
}

// WithPort sets the HTTP port for the API server.
//
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *inboxConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many courses are polled and how many SMS
// deliveries run simultaneously.
//
// Defaults to 5 if not specified.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *inboxConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithSMSProvider configures the outbound SMS provider.
//
// url is the provider API root, token authenticates requests, and from
// is the sender number. An SMS provider is required: [New] fails
// without one.
func WithSMSProvider(url, token, from string) Option {
	return func(cfg *inboxConfig) error {
		if url == "" {
			return errors.New("SMS provider URL cannot be empty")
		}
		if from == "" {
			return errors.New("SMS sender number cannot be empty")
		}
		cfg.smsURL = url
		cfg.smsToken = token
		cfg.smsFrom = from
		return nil
	}
}

// WithMaxDeliveryAttempts sets how many times a delivery is tried before
// the reminder is marked failed.
//
// Defaults to 3 if not specified.
//
// Returns an error if the value is zero or negative.
func WithMaxDeliveryAttempts(n int) Option {
	return func(cfg *inboxConfig) error {
		if n <= 0 {
			return errors.New("max delivery attempts must be positive")
		}
		cfg.maxAttempts = n
		return nil
	}
}

// WithDefaultPhone sets the destination number for reminders derived from
// Canvas assignments.
//
// Without a default phone, assignment escalation is skipped and only
// one-off reminders (which carry their own number) are delivered.
func WithDefaultPhone(phone string) Option {
	return func(cfg *inboxConfig) error {
		cfg.defaultPhone = phone
		return nil
	}
}

// WithIngestSecret protects mutating API routes with a shared secret.
//
// Requests must carry the secret in the X-Ingest-Secret header. When no
// secret is configured, mutating routes are open.
func WithIngestSecret(secret string) Option {
	return func(cfg *inboxConfig) error {
		cfg.ingestSecret = secret
		return nil
	}
}

// WithStore supplies a persistence backend for assignments and reminders.
//
// If not specified, an in-memory store is used and all state is lost on
// restart.
func WithStore(st store.Store) Option {
	return func(cfg *inboxConfig) error {
		if st == nil {
			return errors.New("store cannot be nil")
		}
		cfg.store = st
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Inbox instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *inboxConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithReminderCallback registers a function to be called on every reminder
// mutation: creation, scheduling, each delivery attempt, and
// acknowledgement.
//
// Multiple callbacks may be registered by calling WithReminderCallback
// multiple times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. Long-running operations should
// dispatch work to a separate goroutine. Blocking callbacks will delay
// subsequent update processing.
//
// Callbacks are invoked synchronously from a single goroutine. Panics
// within callbacks are recovered and logged; they do not crash the
// pipeline.
//
// Nil callbacks are silently ignored.
func WithReminderCallback(cb func(ReminderUpdate)) Option {
	return func(cfg *inboxConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
