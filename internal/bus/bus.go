package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names used by the inboxd pipeline.
//
// The poller announces completed polls on [TopicCanvasPoll], the scheduler
// announces its own passes on [TopicScheduleTick], and delivery intents are
// published on [TopicDeliverSMS] for the delivery agent to consume.
const (
	TopicCanvasPoll   = "canvas.poll"
	TopicScheduleTick = "schedule.tick"
	TopicDeliverSMS   = "deliver.sms"
)

// subscriberBuffer is the channel buffer per subscription. If a subscriber
// falls this far behind, further messages are dropped for it rather than
// blocking publishers.
const subscriberBuffer = 100

// PollCompleted is the payload published on [TopicCanvasPoll] after the
// poller finishes a polling cycle.
type PollCompleted struct {
	// PolledAt is when the cycle finished.
	PolledAt time.Time `json:"polled_at"`

	// Assignments is the number of assignments upserted this cycle.
	Assignments int `json:"assignments"`

	// Courses is the number of courses polled.
	Courses int `json:"courses"`

	// Failures is the number of course fetches that failed.
	Failures int `json:"failures"`
}

// Tick is the payload published on [TopicScheduleTick] each time the
// scheduler runs a periodic pass.
type Tick struct {
	// At is the wall-clock time of the pass.
	At time.Time `json:"at"`
}

// DeliveryIntent is the payload published on [TopicDeliverSMS]. It carries
// everything the delivery agent needs to send one reminder.
type DeliveryIntent struct {
	// ReminderID identifies the reminder row in the store.
	ReminderID string `json:"reminder_id"`

	// Phone is the destination number in E.164 form.
	Phone string `json:"phone"`

	// Message is the SMS body.
	Message string `json:"message"`

	// Rung is the escalation rung that triggered this intent (0-based).
	// -1 for one-off reminders created via the API.
	Rung int `json:"rung"`

	// Priority is the scheduler's score for ordering; higher sends first.
	Priority float64 `json:"priority"`
}

// Message is the envelope carried on every topic.
//
// The Payload field holds one of [PollCompleted], [Tick], or
// [DeliveryIntent] depending on the topic. Consumers type-assert on it.
type Message struct {
	// ID uniquely identifies this envelope.
	ID string `json:"id"`

	// Topic is the topic the message was published on.
	Topic string `json:"topic"`

	// TraceID correlates messages belonging to one logical flow
	// (e.g., a poll cycle and the delivery intents it produced).
	TraceID string `json:"trace_id"`

	// PublishedAt is when Publish was called.
	PublishedAt time.Time `json:"published_at"`

	// Payload is the topic-specific payload.
	Payload any `json:"payload"`
}

// Bus is an in-process publish-subscribe message bus with named topics.
//
// Bus is safe for concurrent use. Delivery is non-blocking fan-out: each
// subscriber has a buffered channel, and messages are dropped for
// subscribers whose buffers are full so that a slow consumer can never
// stall the pipeline.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Message]struct{}
	closed bool
}

// New creates an empty [Bus], ready for use.
func New() *Bus {
	return &Bus{
		subs: make(map[string]map[chan Message]struct{}),
	}
}

// Publish wraps payload in a [Message] envelope and fans it out to all
// subscribers of topic.
//
// If traceID is empty a fresh one is generated. The assembled envelope is
// returned so callers can log or propagate its IDs. Publishing on a closed
// bus is a no-op (the envelope is still returned).
func (b *Bus) Publish(topic, traceID string, payload any) Message {
	if traceID == "" {
		traceID = uuid.NewString()
	}

	msg := Message{
		ID:          uuid.NewString(),
		Topic:       topic,
		TraceID:     traceID,
		PublishedAt: time.Now(),
		Payload:     payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return msg
	}

	for ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			// subscriber is slow, drop the message
		}
	}

	return msg
}

// Subscribe creates a subscription to topic and returns its channel.
//
// The channel is buffered; if the buffer fills, messages are dropped for
// this subscriber. Caller must call [Bus.Unsubscribe] when done to prevent
// resource leaks. Subscribing to a closed bus returns a closed channel.
func (b *Bus) Subscribe(topic string) <-chan Message {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Message]struct{})
	}
	b.subs[topic][ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with a channel the bus does not know.
func (b *Bus) Unsubscribe(topic string, ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subCh := range b.subs[topic] {
		if subCh == ch {
			delete(b.subs[topic], subCh)
			close(subCh)
			break
		}
	}
}

// Close shuts the bus down, closing every subscriber channel.
//
// Subsequent Publish calls are no-ops and subsequent Subscribe calls return
// closed channels. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for ch := range subs {
			close(ch)
		}
	}
	b.subs = make(map[string]map[chan Message]struct{})
}
