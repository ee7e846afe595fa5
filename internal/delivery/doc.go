// Package delivery provides the delivery agent for inboxd.
//
// This package is internal to inboxd. The agent subscribes to the
// deliver.sms topic and invokes the external SMS provider for each
// delivery intent, with bounded retries and exponential backoff for
// transient failures. Outcomes are recorded in the store.
//
// The main components are:
//
//   - [Agent]: Worker-pool consumer of delivery intents
//   - [SMSClient]: HTTP client for the SMS provider
//   - [ProviderError]: Provider failure with permanence classification
package delivery
