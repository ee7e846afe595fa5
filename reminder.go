package inboxd

import (
	"time"
)

// Status represents the delivery lifecycle state of a reminder.
//
// Status is a string type that can hold one of five predefined values.
// Using a string type allows for easy JSON serialization and
// human-readable logging while maintaining type safety through the
// defined constants.
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

	// StatusDone indicates the user acknowledged the underlying task,
	// halting any further escalation.
	StatusDone Status = "done"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// ReminderUpdate is the public view of a reminder mutation, delivered to
// callbacks registered with [WithReminderCallback].
//
// ReminderUpdate is immutable after creation. Every state transition
// produces one update: creation, scheduling, each delivery attempt, and
// acknowledgement.
type ReminderUpdate struct {
	// ID uniquely identifies the reminder.
	ID string

	// AssignmentID is the Canvas assignment the reminder escalates.
	// Zero for one-off reminders created through the API.
	AssignmentID int64

	// Title is a short human-readable subject.
	Title string

	// Message is the SMS body.
	Message string

	// Phone is the destination number.
	Phone string

	// Rung is the escalation rung (0-based), or -1 for one-offs.
	Rung int

	// Status is the reminder's lifecycle state after this update.
	Status Status

	// Attempts counts delivery attempts made so far.
	Attempts int

	// LastError is the most recent delivery error, or empty.
	LastError string

	// DueAt is the underlying deadline.
	DueAt time.Time

	// SendAt is when the reminder becomes eligible for delivery.
	SendAt time.Time

	// UpdatedAt is when the mutation happened.
	UpdatedAt time.Time
}
