package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ttinbox/inboxd/internal/bus"
	"github.com/ttinbox/inboxd/internal/metrics"
	"github.com/ttinbox/inboxd/internal/store"
)

// Scheduler is the prioritizer stage of the pipeline.
//
// It reacts to poll announcements on canvas.poll and to its own periodic
// ticks (announced on schedule.tick). Each pass derives reminder rungs for
// stored assignments along the escalation ladder, then selects every
// pending reminder whose send window has opened and publishes a
// [bus.DeliveryIntent] for it on deliver.sms, highest priority first.
//
// Reminders (and whole assignments) marked done are never selected, which
// is what halts escalation.
type Scheduler struct {
	store        store.Store
	bus          *bus.Bus
	offsets      []time.Duration
	tickInterval time.Duration
	defaultPhone string
	logger       *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a [Scheduler].
//
// offsets is the escalation ladder (lead times before each due date); nil
// selects [DefaultOffsets]. defaultPhone is the destination for derived
// assignment reminders; when empty, derivation is skipped and only one-off
// reminders flow through.
func New(st store.Store, b *bus.Bus, offsets []time.Duration, tickInterval time.Duration, defaultPhone string, logger *slog.Logger) *Scheduler {
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	return &Scheduler{
		store:        st,
		bus:          b,
		offsets:      offsets,
		tickInterval: tickInterval,
		defaultPhone: defaultPhone,
		logger:       logger.With("component", "scheduler"),
		now:          time.Now,
	}
}

// Start begins the scheduling loop in a background goroutine.
//
// The scheduler runs one pass immediately, then on every canvas.poll
// message and every tick. Start is idempotent and a no-op after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		pollCh := s.bus.Subscribe(bus.TopicCanvasPoll)
		defer s.bus.Unsubscribe(bus.TopicCanvasPoll, pollCh)

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		s.runPass(runCtx, "")

		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-pollCh:
				if !ok {
					return
				}
				s.runPass(runCtx, msg.TraceID)
			case <-ticker.C:
				tick := s.bus.Publish(bus.TopicScheduleTick, "", bus.Tick{At: s.now()})
				s.runPass(runCtx, tick.TraceID)
			}
		}
	}()
}

// Stop halts the scheduler and waits for the in-flight pass to complete.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// runPass derives reminder rungs and dispatches everything that is due.
func (s *Scheduler) runPass(ctx context.Context, traceID string) {
	derived, err := s.deriveReminders(ctx)
	if err != nil {
		s.logger.Error("reminder derivation failed", "trace_id", traceID, "error", err)
	}

	dispatched, err := s.dispatchDue(ctx, traceID)
	if err != nil {
		s.logger.Error("dispatch failed", "trace_id", traceID, "error", err)
		return
	}

	if derived > 0 || dispatched > 0 {
		s.logger.Info("scheduler pass complete",
			"trace_id", traceID,
			"derived", derived,
			"dispatched", dispatched,
		)
	}
}

// deriveReminders creates one pending reminder per escalation rung for
// every stored assignment that is still due in the future. Rungs whose
// send time has already passed are still created; they dispatch on the
// same pass. Returns the number of new reminders created.
func (s *Scheduler) deriveReminders(ctx context.Context) (int, error) {
	if s.defaultPhone == "" {
		return 0, nil
	}

	assignments, err := s.store.ListAssignments(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for _, a := range assignments {
		if !a.DueAt.After(now) {
			continue
		}
		for rung, offset := range s.offsets {
			sendAt := a.DueAt.Add(-offset)
			r := store.Reminder{
				AssignmentID: a.ID,
				CourseID:     a.CourseID,
				Title:        a.Name,
				Message:      composeMessage(a, offset),
				Phone:        s.defaultPhone,
				Rung:         rung,
				Priority:     Score(a.PointsPossible, offset),
				DueAt:        a.DueAt,
				SendAt:       sendAt,
			}
			isNew, err := s.store.UpsertReminder(ctx, r)
			if err != nil {
				return created, err
			}
			if isNew {
				created++
			}
		}
	}

	return created, nil
}

// dispatchDue publishes a delivery intent for every pending reminder whose
// send window has opened, highest priority first, marking each scheduled.
func (s *Scheduler) dispatchDue(ctx context.Context, traceID string) (int, error) {
	due, err := s.store.Due(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	sort.Slice(due, func(i, j int) bool { return due[i].Priority > due[j].Priority })

	dispatched := 0
	for _, r := range due {
		if _, err := s.store.SetStatus(ctx, r.ID, store.StatusScheduled); err != nil {
			s.logger.Error("failed to mark reminder scheduled", "reminder_id", r.ID, "error", err)
			continue
		}

		s.bus.Publish(bus.TopicDeliverSMS, traceID, bus.DeliveryIntent{
			ReminderID: r.ID,
			Phone:      r.Phone,
			Message:    r.Message,
			Rung:       r.Rung,
			Priority:   r.Priority,
		})
		metrics.RemindersScheduled.Inc()
		dispatched++
	}

	return dispatched, nil
}
