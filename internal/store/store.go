package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Status represents the delivery lifecycle state of a reminder.
//
// A reminder starts as [StatusPending], is moved to [StatusScheduled] when
// the scheduler publishes a delivery intent for it, and ends up
// [StatusSent] or [StatusFailed] depending on the delivery outcome.
// [StatusDone] is terminal and set by the user; it halts all further
// escalation for the reminder (and, via MarkAssignmentDone, for every
// remaining rung of an assignment).
type Status string

const (
	// StatusPending indicates the reminder is waiting for its send window.
	StatusPending Status = "pending"

	// StatusScheduled indicates a delivery intent has been published.
	StatusScheduled Status = "scheduled"

	// StatusSent indicates the SMS provider accepted the message.
	StatusSent Status = "sent"

	// StatusFailed indicates delivery failed after all retry attempts.
	StatusFailed Status = "failed"

	// StatusDone indicates the user acknowledged the underlying task.
	// Done reminders are never selected for delivery.
	StatusDone Status = "done"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the defined status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusFailed, StatusDone:
		return true
	}
	return false
}

// Assignment is the stored representation of a Canvas assignment.
type Assignment struct {
	// ID is the Canvas assignment ID.
	ID int64 `json:"id"`

	// CourseID is the Canvas course the assignment belongs to.
	CourseID int64 `json:"course_id"`

	// Name is the assignment title.
	Name string `json:"name"`

	// DueAt is the assignment due date.
	DueAt time.Time `json:"due_at"`

	// PointsPossible feeds the scheduler's priority score.
	PointsPossible float64 `json:"points_possible"`

	// HTMLURL links to the assignment page.
	HTMLURL string `json:"html_url"`

	// UpdatedAt is when this record was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Reminder is one scheduled delivery: either a rung on an assignment's
// escalation ladder, or a one-off created through the API.
type Reminder struct {
	// ID uniquely identifies the reminder (uuid).
	ID string `json:"id"`

	// AssignmentID is the Canvas assignment this reminder escalates.
	// Zero for one-off reminders.
	AssignmentID int64 `json:"assignment_id,omitempty"`

	// CourseID is the Canvas course, zero for one-off reminders.
	CourseID int64 `json:"course_id,omitempty"`

	// Title is a short human-readable subject.
	Title string `json:"title"`

	// Message is the SMS body to deliver.
	Message string `json:"message"`

	// Phone is the destination number.
	Phone string `json:"phone"`

	// Rung is the 0-based position on the escalation ladder;
	// -1 for one-off reminders.
	Rung int `json:"rung"`

	// Priority orders deliveries within a scheduler pass; higher first.
	Priority float64 `json:"priority"`

	// DueAt is the underlying deadline (equals SendAt for one-offs).
	DueAt time.Time `json:"due_at"`

	// SendAt is when the reminder becomes eligible for delivery.
	SendAt time.Time `json:"send_at"`

	// Status is the delivery lifecycle state.
	Status Status `json:"status"`

	// Attempts counts delivery attempts made so far.
	Attempts int `json:"attempts"`

	// LastError holds the most recent delivery error, if any.
	LastError *string `json:"last_error"`

	// CreatedAt and UpdatedAt are record timestamps.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OneOff reports whether the reminder was created directly through the API
// rather than derived from an assignment.
func (r Reminder) OneOff() bool {
	return r.AssignmentID == 0
}

// Store defines persistence for assignments and reminders.
//
// Implementations must be safe for concurrent access. Every reminder
// mutation is fanned out to subscribers so the API can stream live updates.
type Store interface {
	// UpsertAssignment inserts or replaces an assignment record.
	UpsertAssignment(ctx context.Context, a Assignment) error

	// GetAssignment returns the assignment with the given ID.
	// Returns ErrNotFound if it does not exist.
	GetAssignment(ctx context.Context, id int64) (Assignment, error)

	// ListAssignments returns all stored assignments.
	ListAssignments(ctx context.Context) ([]Assignment, error)

	// UpsertReminder creates a reminder, or refreshes an existing rung.
	//
	// One-off reminders (AssignmentID == 0) are always created. Rung
	// reminders are keyed by (AssignmentID, Rung): if such a reminder
	// already exists, it is not duplicated; if it is still pending, its
	// SendAt, DueAt, Message, and Priority are refreshed (covers due-date
	// changes upstream). Returns true if a new reminder was created.
	UpsertReminder(ctx context.Context, r Reminder) (bool, error)

	// GetReminder returns the reminder with the given ID.
	// Returns ErrNotFound if it does not exist.
	GetReminder(ctx context.Context, id string) (Reminder, error)

	// ListReminders returns reminders ordered by SendAt. A non-empty
	// status filters the result.
	ListReminders(ctx context.Context, status Status) ([]Reminder, error)

	// Due returns pending reminders with SendAt <= now, ordered by SendAt.
	Due(ctx context.Context, now time.Time) ([]Reminder, error)

	// SetStatus transitions a reminder to the given status and returns the
	// updated record. Returns ErrNotFound if it does not exist.
	SetStatus(ctx context.Context, id string, status Status) (Reminder, error)

	// RecordAttempt increments the attempt counter, sets the status, and
	// records lastError ("" clears it). Returns the updated record.
	RecordAttempt(ctx context.Context, id string, status Status, lastError string) (Reminder, error)

	// MarkAssignmentDone sets every non-terminal reminder of an assignment
	// to done, halting its escalation. Returns the number of reminders
	// transitioned.
	MarkAssignmentDone(ctx context.Context, assignmentID int64) (int, error)

	// Subscribe returns a channel receiving every reminder mutation.
	// The channel is buffered; slow consumers miss updates. Caller must
	// call Unsubscribe when done.
	Subscribe() <-chan Reminder

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan Reminder)

	// Close releases any resources held by the store.
	Close() error
}
