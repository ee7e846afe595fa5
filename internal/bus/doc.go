// Package bus provides the in-process pub/sub message bus for inboxd.
//
// This package is internal to inboxd and carries the envelopes that connect
// the pipeline stages: the poller publishes on "canvas.poll", the scheduler
// on "schedule.tick", and delivery intents travel on "deliver.sms".
//
// The main components are:
//
//   - [Bus]: Topic-based fan-out with buffered subscriber channels
//   - [Message]: Envelope with ID, topic, trace ID, and typed payload
//   - [PollCompleted], [Tick], [DeliveryIntent]: Topic payloads
//
// Delivery is non-blocking: slow subscribers miss messages rather than
// stalling publishers. Users of the inboxd library should not need to
// interact with this package directly.
package bus
