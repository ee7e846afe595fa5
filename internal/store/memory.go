package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// rungKey identifies a reminder on an assignment's escalation ladder.
type rungKey struct {
	assignmentID int64
	rung         int
}

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe
// mechanism for reminder updates. It is the default store for development
// and tests; production deployments use the Postgres store.
//
// Subscribers receive updates via buffered channels (buffer size 100).
// Updates are sent non-blocking; if a subscriber's buffer is full, the
// update is dropped for that subscriber to prevent blocking the pipeline.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[int64]Assignment
	reminders   map[string]Reminder
	rungs       map[rungKey]string // rung key -> reminder ID

	subMu       sync.RWMutex
	subscribers map[chan Reminder]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[int64]Assignment),
		reminders:   make(map[string]Reminder),
		rungs:       make(map[rungKey]string),
		subscribers: make(map[chan Reminder]struct{}),
	}
}

// UpsertAssignment inserts or replaces an assignment record.
func (m *MemoryStore) UpsertAssignment(_ context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.UpdatedAt = time.Now()
	m.assignments[a.ID] = a
	return nil
}

// GetAssignment returns the assignment with the given ID.
func (m *MemoryStore) GetAssignment(_ context.Context, id int64) (Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

// ListAssignments returns all stored assignments ordered by due date.
func (m *MemoryStore) ListAssignments(_ context.Context) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Assignment, 0, len(m.assignments))
	for _, a := range m.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// UpsertReminder creates a reminder, or refreshes an existing rung.
func (m *MemoryStore) UpsertReminder(_ context.Context, r Reminder) (bool, error) {
	m.mu.Lock()

	now := time.Now()

	if !r.OneOff() {
		key := rungKey{assignmentID: r.AssignmentID, rung: r.Rung}
		if id, ok := m.rungs[key]; ok {
			existing := m.reminders[id]
			if existing.Status != StatusPending {
				m.mu.Unlock()
				return false, nil
			}
			// refresh a still-pending rung; covers due-date changes upstream
			existing.SendAt = r.SendAt
			existing.DueAt = r.DueAt
			existing.Message = r.Message
			existing.Priority = r.Priority
			existing.UpdatedAt = now
			m.reminders[id] = existing
			m.mu.Unlock()
			m.notifySubscribers(existing)
			return false, nil
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	m.reminders[r.ID] = r
	if !r.OneOff() {
		m.rungs[rungKey{assignmentID: r.AssignmentID, rung: r.Rung}] = r.ID
	}
	m.mu.Unlock()

	m.notifySubscribers(r)
	return true, nil
}

// GetReminder returns the reminder with the given ID.
func (m *MemoryStore) GetReminder(_ context.Context, id string) (Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reminders[id]
	if !ok {
		return Reminder{}, ErrNotFound
	}
	return r, nil
}

// ListReminders returns reminders ordered by SendAt, optionally filtered
// by status.
func (m *MemoryStore) ListReminders(_ context.Context, status Status) ([]Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })
	return out, nil
}

// Due returns pending reminders whose send window has opened.
func (m *MemoryStore) Due(_ context.Context, now time.Time) ([]Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Reminder
	for _, r := range m.reminders {
		if r.Status == StatusPending && !r.SendAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })
	return out, nil
}

// SetStatus transitions a reminder to the given status.
func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status) (Reminder, error) {
	m.mu.Lock()

	r, ok := m.reminders[id]
	if !ok {
		m.mu.Unlock()
		return Reminder{}, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	m.reminders[id] = r
	m.mu.Unlock()

	m.notifySubscribers(r)
	return r, nil
}

// RecordAttempt increments the attempt counter and records the outcome.
func (m *MemoryStore) RecordAttempt(_ context.Context, id string, status Status, lastError string) (Reminder, error) {
	m.mu.Lock()

	r, ok := m.reminders[id]
	if !ok {
		m.mu.Unlock()
		return Reminder{}, ErrNotFound
	}
	r.Attempts++
	r.Status = status
	if lastError == "" {
		r.LastError = nil
	} else {
		r.LastError = &lastError
	}
	r.UpdatedAt = time.Now()
	m.reminders[id] = r
	m.mu.Unlock()

	m.notifySubscribers(r)
	return r, nil
}

// MarkAssignmentDone halts escalation for every non-terminal reminder of
// an assignment.
func (m *MemoryStore) MarkAssignmentDone(_ context.Context, assignmentID int64) (int, error) {
	m.mu.Lock()

	var updated []Reminder
	now := time.Now()
	for id, r := range m.reminders {
		if r.AssignmentID != assignmentID {
			continue
		}
		if r.Status == StatusSent || r.Status == StatusDone {
			continue
		}
		r.Status = StatusDone
		r.UpdatedAt = now
		m.reminders[id] = r
		updated = append(updated, r)
	}
	m.mu.Unlock()

	for _, r := range updated {
		m.notifySubscribers(r)
	}
	return len(updated), nil
}

// Subscribe creates a new subscription for reminder updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent leaks.
func (m *MemoryStore) Subscribe() <-chan Reminder {
	ch := make(chan Reminder, 100)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Reminder) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Close closes all subscriber channels.
func (m *MemoryStore) Close() error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = make(map[chan Reminder]struct{})
	return nil
}

// notifySubscribers sends the reminder to all active subscribers.
//
// Non-blocking: if a subscriber's channel buffer is full, the message is
// dropped for that subscriber rather than blocking the update path.
func (m *MemoryStore) notifySubscribers(r Reminder) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- r:
		default:
			// subscriber is slow, drop the message
		}
	}
}
