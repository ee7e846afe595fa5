package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ttinbox/inboxd/internal/bus"
	"github.com/ttinbox/inboxd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, st store.Store, b *bus.Bus, now time.Time) *Scheduler {
	t.Helper()
	s := New(st, b, nil, time.Hour, "+15551234567", testLogger())
	s.now = func() time.Time { return now }
	return s
}

func drainIntents(t *testing.T, ch <-chan bus.Message, wait time.Duration) []bus.DeliveryIntent {
	t.Helper()
	var out []bus.DeliveryIntent
	for {
		select {
		case msg := <-ch:
			intent, ok := msg.Payload.(bus.DeliveryIntent)
			if !ok {
				t.Fatalf("payload type = %T", msg.Payload)
			}
			out = append(out, intent)
		case <-time.After(wait):
			return out
		}
	}
}

func TestScheduler_DerivesRungs(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()
	now := time.Now()

	_ = st.UpsertAssignment(ctx, store.Assignment{
		ID: 1, CourseID: 10, Name: "Essay",
		DueAt: now.Add(100 * time.Hour), PointsPossible: 50,
	})

	s := newTestScheduler(t, st, b, now)
	s.runPass(ctx, "t1")

	reminders, err := st.ListReminders(ctx, "")
	if err != nil {
		t.Fatalf("ListReminders() error = %v", err)
	}
	if len(reminders) != len(DefaultOffsets) {
		t.Fatalf("derived %d reminders, want %d (one per rung)", len(reminders), len(DefaultOffsets))
	}

	// second pass must not duplicate rungs
	s.runPass(ctx, "t2")
	reminders, _ = st.ListReminders(ctx, "")
	if len(reminders) != len(DefaultOffsets) {
		t.Errorf("after second pass: %d reminders, want %d", len(reminders), len(DefaultOffsets))
	}
}

func TestScheduler_DispatchesDueByPriority(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()
	now := time.Now()

	smsCh := b.Subscribe(bus.TopicDeliverSMS)
	defer b.Unsubscribe(bus.TopicDeliverSMS, smsCh)

	// two one-off reminders due now with different priorities
	_, _ = st.UpsertReminder(ctx, store.Reminder{
		Message: "low", Phone: "+1", Rung: -1, Priority: 1,
		SendAt: now.Add(-time.Minute),
	})
	_, _ = st.UpsertReminder(ctx, store.Reminder{
		Message: "high", Phone: "+1", Rung: -1, Priority: 9,
		SendAt: now.Add(-time.Minute),
	})

	s := newTestScheduler(t, st, b, now)
	s.runPass(ctx, "trace-7")

	intents := drainIntents(t, smsCh, 100*time.Millisecond)
	if len(intents) != 2 {
		t.Fatalf("dispatched %d intents, want 2", len(intents))
	}
	if intents[0].Message != "high" || intents[1].Message != "low" {
		t.Errorf("dispatch order = [%s, %s], want [high, low]",
			intents[0].Message, intents[1].Message)
	}

	// dispatched reminders are marked scheduled, not re-dispatched
	scheduled, _ := st.ListReminders(ctx, store.StatusScheduled)
	if len(scheduled) != 2 {
		t.Errorf("scheduled reminders = %d, want 2", len(scheduled))
	}

	s.runPass(ctx, "trace-8")
	if again := drainIntents(t, smsCh, 100*time.Millisecond); len(again) != 0 {
		t.Errorf("re-dispatched %d intents, want 0", len(again))
	}
}

func TestScheduler_DoneHaltsEscalation(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()
	now := time.Now()

	smsCh := b.Subscribe(bus.TopicDeliverSMS)
	defer b.Unsubscribe(bus.TopicDeliverSMS, smsCh)

	// assignment whose first two rungs are already inside their windows
	_ = st.UpsertAssignment(ctx, store.Assignment{
		ID: 2, CourseID: 10, Name: "Quiz", DueAt: now.Add(5 * time.Hour),
	})

	s := newTestScheduler(t, st, b, now)

	// derive only: mark done before anything dispatches
	if _, err := s.deriveReminders(ctx); err != nil {
		t.Fatalf("deriveReminders() error = %v", err)
	}
	if _, err := st.MarkAssignmentDone(ctx, 2); err != nil {
		t.Fatalf("MarkAssignmentDone() error = %v", err)
	}

	s.runPass(ctx, "t")

	if intents := drainIntents(t, smsCh, 100*time.Millisecond); len(intents) != 0 {
		t.Errorf("dispatched %d intents for a done assignment, want 0", len(intents))
	}
}

func TestScheduler_SkipsPastDueAssignments(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()
	now := time.Now()

	_ = st.UpsertAssignment(ctx, store.Assignment{
		ID: 3, CourseID: 10, Name: "Old", DueAt: now.Add(-time.Hour),
	})

	s := newTestScheduler(t, st, b, now)
	created, err := s.deriveReminders(ctx)
	if err != nil {
		t.Fatalf("deriveReminders() error = %v", err)
	}
	if created != 0 {
		t.Errorf("derived %d reminders for past-due assignment, want 0", created)
	}
}

func TestScheduler_NoDefaultPhoneSkipsDerivation(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()
	now := time.Now()

	_ = st.UpsertAssignment(ctx, store.Assignment{
		ID: 4, CourseID: 10, Name: "Essay", DueAt: now.Add(100 * time.Hour),
	})

	s := New(st, b, nil, time.Hour, "", testLogger())
	s.now = func() time.Time { return now }

	created, err := s.deriveReminders(ctx)
	if err != nil {
		t.Fatalf("deriveReminders() error = %v", err)
	}
	if created != 0 {
		t.Errorf("derived %d reminders without a default phone, want 0", created)
	}
}

func TestScheduler_ReactsToPollAnnouncements(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.New()
	ctx := context.Background()

	smsCh := b.Subscribe(bus.TopicDeliverSMS)
	defer b.Unsubscribe(bus.TopicDeliverSMS, smsCh)

	s := New(st, b, nil, time.Hour, "+15551234567", testLogger())
	s.Start(ctx)
	defer s.Stop()

	// let the initial pass finish so the poll-triggered pass owns the trace
	time.Sleep(50 * time.Millisecond)

	// a one-off already due; announce a poll so the scheduler runs a pass
	_, _ = st.UpsertReminder(ctx, store.Reminder{
		Message: "due", Phone: "+1", Rung: -1, SendAt: time.Now().Add(-time.Minute),
	})
	b.Publish(bus.TopicCanvasPoll, "trace-poll", bus.PollCompleted{PolledAt: time.Now()})

	select {
	case msg := <-smsCh:
		if msg.TraceID != "trace-poll" {
			t.Errorf("intent trace ID = %v, want trace-poll (propagated)", msg.TraceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not dispatch after poll announcement")
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := New(store.NewMemoryStore(), bus.New(), nil, time.Hour, "", testLogger())
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	s2 := New(store.NewMemoryStore(), bus.New(), nil, time.Hour, "", testLogger())
	s2.Stop()
	s2.Start(context.Background()) // no-op after Stop
}
