// Package scheduler provides the prioritizer stage of the inboxd pipeline.
//
// This package is internal to inboxd. The scheduler reacts to poll
// announcements and periodic ticks, derives reminder rungs along the
// escalation ladder for every stored assignment, computes delivery
// priorities, and publishes delivery intents on the deliver.sms topic.
//
// The main components are:
//
//   - [Scheduler]: Event-and-tick driven scheduling loop
//   - [Score]: Priority scoring from assignment weight and urgency
//   - [DefaultOffsets]: The default escalation ladder
//
// Escalation halts for reminders (or whole assignments) marked done; the
// store's Due selection never returns them.
package scheduler
