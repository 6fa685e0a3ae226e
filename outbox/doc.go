// Package outbox implements the transactional outbox pattern for the
// booking saga. Domain events and commands are appended to an outbox table
// in the same transaction as the state change that produced them, and a
// background relay drains the table and publishes the rows to the message
// broker with bounded retries.
//
// The relay guarantees at-least-once delivery. Consumers are expected to
// deduplicate on the event identifier, which doubles as the idempotency key
// for the best-effort direct publish path.
package outbox
