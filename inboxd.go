package inboxd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ttinbox/inboxd/internal/bus"
	"github.com/ttinbox/inboxd/internal/canvas"
	"github.com/ttinbox/inboxd/internal/delivery"
	"github.com/ttinbox/inboxd/internal/poller"
	"github.com/ttinbox/inboxd/internal/scheduler"
	"github.com/ttinbox/inboxd/internal/server"
	"github.com/ttinbox/inboxd/internal/store"
)

const (
	defaultPollInterval   = 15 * time.Minute
	defaultTickInterval   = time.Minute
	defaultPort           = 8080
	defaultMaxConcurrency = 5
	defaultMaxAttempts    = 3
	defaultCanvasTimeout  = 30 * time.Second
	defaultSMSTimeout     = 10 * time.Second
)

// Inbox is the main orchestrator for assignment polling, escalation
// scheduling, and SMS delivery.
//
// Inbox wires the Canvas poller, the scheduler, and the delivery agent
// together over an in-process message bus, backed by a shared store, and
// serves the HTTP API. It is created using [New] with functional options
// and started with [Inbox.Start].
//
// The typical lifecycle is:
//
//	inbox, err := inboxd.New(
//	    inboxd.WithSMSProvider(smsURL, smsToken, "+15550001111"),
//	    inboxd.WithCanvas(canvasURL, canvasToken),
//	    inboxd.WithDefaultPhone("+15557654321"),
//	)
//	if err != nil {
//	    slog.Error("failed to create inbox", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	inbox.Start(ctx) // blocks until context cancelled
//
// The caller controls the lifecycle via the context. Cancel the context to
// trigger graceful shutdown.
type Inbox struct {
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

// New creates a new [Inbox] instance with the given options.
//
// An SMS provider must be configured via [WithSMSProvider]. Other options
// have sensible defaults:
//   - Poll interval: 15 minutes
//   - Tick interval: 1 minute
//   - Escalation offsets: 72h, 24h, 6h, 1h before the deadline
//   - Port: 8080
//   - Max concurrency: 5
//   - Max delivery attempts: 3
//   - Store: in-memory
//
// Returns an error if no SMS provider is configured or if any option is
// invalid.
func New(opts ...Option) (*Inbox, error) {
	cfg := &inboxConfig{
		pollInterval:   defaultPollInterval,
		tickInterval:   defaultTickInterval,
		port:           defaultPort,
		maxConcurrency: defaultMaxConcurrency,
		maxAttempts:    defaultMaxAttempts,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.smsURL == "" {
		return nil, errors.New("an SMS provider is required")
	}

	if cfg.canvasURL != "" && cfg.defaultPhone == "" {
		return nil, errors.New("a default phone is required when Canvas polling is configured")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Inbox{
		canvasURL:      cfg.canvasURL,
		canvasToken:    cfg.canvasToken,
		courseIDs:      cfg.courseIDs,
		pollInterval:   cfg.pollInterval,
		tickInterval:   cfg.tickInterval,
		offsets:        cfg.offsets,
		port:           cfg.port,
		maxConcurrency: cfg.maxConcurrency,
		smsURL:         cfg.smsURL,
		smsToken:       cfg.smsToken,
		smsFrom:        cfg.smsFrom,
		maxAttempts:    cfg.maxAttempts,
		defaultPhone:   cfg.defaultPhone,
		ingestSecret:   cfg.ingestSecret,
		store:          cfg.store,
		logger:         logger,
		callbacks:      cfg.callbacks,
	}, nil
}

// Start runs the polling, scheduling, and delivery pipeline and serves the
// HTTP API.
//
// Start is a blocking call that runs until the provided context is
// cancelled. During execution:
//
//   - Canvas is polled immediately, then at the configured interval
//     (skipped entirely if Canvas is not configured)
//   - The scheduler derives escalation reminders and dispatches due ones
//     every tick and after every poll
//   - The delivery agent sends dispatched reminders over SMS with retries
//   - The HTTP API is available at http://localhost:<port>
//
// The caller controls the lifecycle via context cancellation. For signal
// handling, use [signal.NotifyContext].
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (ib *Inbox) Start(ctx context.Context) error {
	ib.logger.Info("inboxd starting",
		"canvas", ib.canvasURL != "",
		"poll_interval", ib.pollInterval.String(),
		"tick_interval", ib.tickInterval.String(),
	)
	ib.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", ib.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	st := ib.store
	if st == nil {
		st = store.NewMemoryStore()
	}

	b := bus.New()

	var pollAgent *poller.Agent
	var canvasClient *canvas.Client
	if ib.canvasURL != "" {
		canvasClient = canvas.NewClient(ib.canvasURL, ib.canvasToken, defaultCanvasTimeout)
		pollAgent = poller.New(canvasClient, ib.courseIDs, ib.pollInterval, ib.maxConcurrency, st, b, ib.logger)
		pollAgent.Start(ctx)
	} else {
		ib.logger.Info("canvas polling disabled, serving one-off reminders only")
	}

	sched := scheduler.New(st, b, ib.offsets, ib.tickInterval, ib.defaultPhone, ib.logger)
	sched.Start(ctx)

	sms := delivery.NewSMSClient(ib.smsURL, ib.smsToken, ib.smsFrom, defaultSMSTimeout)
	deliverAgent := delivery.New(sms, st, b, ib.maxAttempts, ib.maxConcurrency, ib.logger)
	deliverAgent.Start(ctx)

	// track the update consumer goroutine to ensure clean shutdown
	var wg sync.WaitGroup
	updates := st.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for rec := range updates {
			update := toReminderUpdate(rec)
			for _, cb := range ib.callbacks {
				invokeCallbackSafe(cb, update, ib.logger)
			}

			// log updates (DEBUG level for routine transitions to reduce noise)
			logAttrs := []any{
				"reminder", update.ID,
				"status", update.Status,
				"attempts", update.Attempts,
			}
			if update.LastError != "" {
				ib.logger.Warn("reminder updated with error", append(logAttrs, "error", update.LastError)...)
			} else {
				ib.logger.Debug("reminder updated", logAttrs...)
			}
		}
	}()

	// cleanup stops the agents in pipeline order and drains the consumer
	cleanup := func() {
		if pollAgent != nil {
			pollAgent.Stop()
		}
		sched.Stop()
		deliverAgent.Stop()
		b.Close()
		st.Unsubscribe(updates) // closes the channel
		wg.Wait()               // wait for all updates to be processed
		if canvasClient != nil {
			canvasClient.Close()
		}
		if err := st.Close(); err != nil {
			ib.logger.Warn("store close failed", "error", err)
		}
	}

	httpServer := server.NewServer(st, ib.port, ib.ingestSecret, ib.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	ib.logger.Info("inboxd stopped")
	return nil
}

// Port returns the configured HTTP port for the API server.
func (ib *Inbox) Port() int {
	return ib.port
}

// PollInterval returns the configured interval between Canvas polls.
func (ib *Inbox) PollInterval() time.Duration {
	return ib.pollInterval
}

// CourseIDs returns a copy of the configured Canvas course IDs.
func (ib *Inbox) CourseIDs() []int64 {
	cp := make([]int64, len(ib.courseIDs))
	copy(cp, ib.courseIDs)
	return cp
}

// toReminderUpdate converts a stored reminder to the public update type.
func toReminderUpdate(r store.Reminder) ReminderUpdate {
	var lastError string
	if r.LastError != nil {
		lastError = *r.LastError
	}

	return ReminderUpdate{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		Title:        r.Title,
		Message:      r.Message,
		Phone:        r.Phone,
		Rung:         r.Rung,
		Status:       Status(r.Status),
		Attempts:     r.Attempts,
		LastError:    lastError,
		DueAt:        r.DueAt,
		SendAt:       r.SendAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// invokeCallbackSafe calls a reminder callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(ReminderUpdate), update ReminderUpdate, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("reminder callback panicked",
				"panic", r,
				"reminder", update.ID,
			)
		}
	}()
	cb(update)
}
