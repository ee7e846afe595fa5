package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ttinbox/inboxd/internal/bus"
	"github.com/ttinbox/inboxd/internal/metrics"
	"github.com/ttinbox/inboxd/internal/store"
)

const defaultMaxAttempts = 3

// SMSSender is the subset of the provider client the agent needs.
// Extracted as an interface so tests can substitute a fake.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// Agent consumes delivery intents from the deliver.sms topic and invokes
// the SMS provider.
//
// Transient failures (5xx, 429, network errors) are retried with
// exponential backoff up to a bounded attempt count; permanent failures
// (other 4xx) abort immediately. Every attempt is recorded in the store,
// and the final outcome transitions the reminder to sent or failed.
type Agent struct {
	sms            SMSSender
	store          store.Store
	bus            *bus.Bus
	maxAttempts    int
	maxConcurrency int
	logger         *slog.Logger

	// newBackOff builds the per-delivery retry policy; swappable in tests.
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a delivery [Agent].
//
// maxAttempts bounds tries per reminder (minimum 1); maxConcurrency bounds
// simultaneous provider calls.
func New(sms SMSSender, st store.Store, b *bus.Bus, maxAttempts, maxConcurrency int, logger *slog.Logger) *Agent {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Agent{
		sms:            sms,
		store:          st,
		bus:            b,
		maxAttempts:    maxAttempts,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("component", "delivery"),
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.MaxElapsedTime = 0 // attempt count bounds retries, not wall time
			return bo
		},
	}
}

// Start begins consuming delivery intents in background workers.
//
// Start is non-blocking, idempotent, and a no-op after Stop. Workers exit
// when the context is cancelled or the bus closes the subscription.
func (a *Agent) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started || a.stopped {
		a.mu.Unlock()
		return
	}
	a.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	runCtx := a.ctx

	intents := a.bus.Subscribe(bus.TopicDeliverSMS)

	for i := 0; i < a.maxConcurrency; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case <-runCtx.Done():
					return
				case msg, ok := <-intents:
					if !ok {
						return
					}
					intent, ok := msg.Payload.(bus.DeliveryIntent)
					if !ok {
						a.logger.Error("unexpected payload on deliver.sms", "envelope_id", msg.ID)
						continue
					}
					a.deliver(runCtx, msg.TraceID, intent)
				}
			}
		}()
	}
	a.mu.Unlock()
}

// Stop halts the agent and waits for in-flight deliveries to complete.
//
// Stop is idempotent and safe to call before Start.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.stopped {
		a.stopped = true
		if a.cancel != nil {
			a.cancel()
		}
	}
	a.mu.Unlock()

	a.wg.Wait()
}

// deliver sends one reminder, retrying transient failures, and records the
// outcome in the store.
//
// The reminder is re-read before the first try: an acknowledgement can land
// between dispatch and delivery, and a done reminder must not be sent or
// have its status overwritten.
func (a *Agent) deliver(ctx context.Context, traceID string, intent bus.DeliveryIntent) {
	rec, err := a.store.GetReminder(ctx, intent.ReminderID)
	if err != nil {
		a.logger.Error("failed to load reminder", "reminder_id", intent.ReminderID, "error", err)
		return
	}
	if rec.Status != store.StatusScheduled {
		metrics.Deliveries.WithLabelValues("skipped").Inc()
		a.logger.Info("skipping delivery, reminder no longer scheduled",
			"trace_id", traceID,
			"reminder_id", intent.ReminderID,
			"status", rec.Status,
		)
		return
	}

	start := time.Now()

	op := func() error {
		err := a.sms.Send(ctx, intent.Phone, intent.Message)
		if err == nil {
			return nil
		}

		// keep the reminder in-flight while recording the failed try
		if _, recErr := a.store.RecordAttempt(ctx, intent.ReminderID, store.StatusScheduled, err.Error()); recErr != nil {
			a.logger.Error("failed to record attempt", "reminder_id", intent.ReminderID, "error", recErr)
		}

		var pe *ProviderError
		if errors.As(err, &pe) && pe.Permanent() {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(a.newBackOff(), uint64(a.maxAttempts-1)),
		ctx,
	)
	err = backoff.Retry(op, policy)
	elapsed := time.Since(start)
	metrics.DeliveryDuration.Observe(elapsed.Seconds())

	if err != nil {
		if _, serr := a.store.SetStatus(ctx, intent.ReminderID, store.StatusFailed); serr != nil {
			a.logger.Error("failed to mark reminder failed", "reminder_id", intent.ReminderID, "error", serr)
		}
		metrics.Deliveries.WithLabelValues("failed").Inc()
		a.logger.Error("delivery failed",
			"trace_id", traceID,
			"reminder_id", intent.ReminderID,
			"rung", intent.Rung,
			"error", err,
		)
		return
	}

	if _, err := a.store.RecordAttempt(ctx, intent.ReminderID, store.StatusSent, ""); err != nil {
		a.logger.Error("failed to mark reminder sent", "reminder_id", intent.ReminderID, "error", err)
	}
	metrics.Deliveries.WithLabelValues("sent").Inc()
	a.logger.Info("reminder delivered",
		"trace_id", traceID,
		"reminder_id", intent.ReminderID,
		"rung", intent.Rung,
		"elapsed", elapsed.String(),
	)
}
