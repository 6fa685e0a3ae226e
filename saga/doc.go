// Package saga coordinates a multi-step booking transaction across the
// flight, hotel and payment services, with explicit compensation on partial
// failure.
//
// The orchestrator is event driven: downstream services report outcomes as
// domain events, the state machine validates each against an immutable
// transition table, and the next command leaves through a transactional
// outbox plus a best-effort direct publish sharing one idempotency key.
// Failed steps go through the compensation policy engine, which retries
// transient failures and otherwise walks the cancellation chain until the
// booking is fully rolled back. Per-saga mutations are serialized through a
// lock manager; event deduplication and poison-message caps make processing
// idempotent under redelivery.
package saga
