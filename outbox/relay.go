package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/backoff"
)

// Publisher hands an outbox event to the message broker.
type Publisher interface {
	PublishEvent(ctx context.Context, event *Event) error
}

// DispatchResult summarizes one relay tick.
type DispatchResult struct {
	Collected int
	Published int
	Failed    int
	Invalid   int
}

// Relay drains the outbox and publishes events to the broker. Failed events
// are retried with a cool-down until their attempt budget runs out; events
// the broker rejects permanently are marked invalid and skipped thereafter.
type Relay struct {
	repository Repository
	publisher  Publisher
	classifier RetryClassifier
	logger     *zap.Logger
	config     RelayConfig
	metrics    *relayMetrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRelay builds a relay. The repository and publisher are required.
func NewRelay(repository Repository, publisher Publisher, logger *zap.Logger, opts ...RelayOption) (*Relay, error) {
	if repository == nil {
		return nil, ErrRepositoryRequired
	}

	if publisher == nil {
		return nil, ErrPublisherRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	relay := &Relay{
		repository: repository,
		publisher:  publisher,
		classifier: DefaultRetryClassifier{},
		logger:     logger,
		config:     DefaultRelayConfig(),
	}

	for _, opt := range opts {
		opt(relay)
	}

	relay.config.normalize()

	metrics, err := newRelayMetrics(relay.config.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("creating relay metrics: %w", err)
	}

	relay.metrics = metrics

	return relay, nil
}

// Run starts the dispatch and cleanup loops and blocks until the context is
// cancelled or Stop is called.
func (relay *Relay) Run(ctx context.Context) error {
	relay.mu.Lock()
	if relay.running {
		relay.mu.Unlock()

		return ErrRelayRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	relay.running = true
	relay.cancel = cancel
	relay.done = make(chan struct{})
	relay.mu.Unlock()

	defer func() {
		relay.mu.Lock()
		relay.running = false
		relay.cancel = nil
		close(relay.done)
		relay.mu.Unlock()
	}()

	relay.logger.Info("outbox relay started",
		zap.Duration("dispatch_interval", relay.config.DispatchInterval),
		zap.Int("batch_size", relay.config.BatchSize))

	dispatch := time.NewTicker(relay.config.DispatchInterval)
	defer dispatch.Stop()

	cleanup := time.NewTicker(relay.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			relay.logger.Info("outbox relay stopped")

			return ctx.Err()
		case <-dispatch.C:
			relay.DispatchOnce(ctx)
		case <-cleanup.C:
			relay.CleanupOnce(ctx)
		}
	}
}

// Stop cancels a running relay and waits for it to exit.
func (relay *Relay) Stop() {
	relay.mu.Lock()
	cancel := relay.cancel
	done := relay.done
	relay.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// DispatchOnce drains one batch: fresh pending events plus failed events
// whose cool-down has elapsed.
func (relay *Relay) DispatchOnce(ctx context.Context) DispatchResult {
	var result DispatchResult

	events := relay.collect(ctx)
	result.Collected = len(events)

	if stats, err := relay.repository.Stats(ctx); err == nil {
		relay.metrics.recordQueueDepth(ctx, stats.UnprocessedCount)
	}

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		switch relay.publishOne(ctx, event) {
		case dispatchPublished:
			result.Published++
		case dispatchInvalid:
			result.Invalid++
		default:
			result.Failed++
		}
	}

	if result.Failed > 0 || result.Invalid > 0 {
		relay.logger.Warn("outbox dispatch finished with errors",
			zap.Int("collected", result.Collected),
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
			zap.Int("invalid", result.Invalid))
	}

	return result
}

// CleanupOnce expires unpublished events past their deadline. Expired
// events stay in the table as failed rows for operator inspection.
func (relay *Relay) CleanupOnce(ctx context.Context) int {
	expired, err := relay.repository.ExpireOverdue(ctx, time.Now().UTC(), relay.config.CleanupBatchSize)
	if err != nil {
		relay.logger.Error("outbox cleanup sweep failed", zap.Error(err))

		return 0
	}

	if expired > 0 {
		relay.metrics.recordExpired(ctx, expired)
		relay.logger.Warn("expired unpublished outbox events", zap.Int("count", expired))
	}

	return expired
}

// Stats reports the outbox backlog.
func (relay *Relay) Stats(ctx context.Context) (Stats, error) {
	return relay.repository.Stats(ctx)
}

func (relay *Relay) collect(ctx context.Context) []*Event {
	cutoff := time.Now().UTC().Add(-relay.config.RetryWindow)

	retries, err := relay.repository.ResetForRetry(ctx, cutoff, relay.config.MaxFailedPerBatch)
	if err != nil {
		relay.logger.Error("resetting failed outbox events", zap.Error(err))
	}

	remaining := relay.config.BatchSize - len(retries)
	if remaining <= 0 {
		return retries
	}

	pending, err := relay.repository.ListPending(ctx, remaining)
	if err != nil {
		relay.logger.Error("listing pending outbox events", zap.Error(err))

		return retries
	}

	seen := make(map[uuid.UUID]struct{}, len(retries))
	for _, event := range retries {
		seen[event.ID] = struct{}{}
	}

	events := retries
	for _, event := range pending {
		if _, dup := seen[event.ID]; !dup {
			events = append(events, event)
		}
	}

	return events
}

type dispatchOutcome int

const (
	dispatchPublished dispatchOutcome = iota
	dispatchFailed
	dispatchInvalid
)

func (relay *Relay) publishOne(ctx context.Context, event *Event) dispatchOutcome {
	err := relay.publishWithRetry(ctx, event)
	if err == nil {
		if markErr := relay.repository.MarkPublished(ctx, event.ID, time.Now().UTC()); markErr != nil {
			relay.logger.Error("marking outbox event published",
				zap.String("event_id", event.ID.String()),
				zap.Error(markErr))
		}

		relay.metrics.recordPublished(ctx, event.Topic)

		return dispatchPublished
	}

	sanitized := sanitizeErrorForStorage(err)

	if !relay.classifier.IsRetryable(err) {
		if markErr := relay.repository.MarkInvalid(ctx, event.ID, sanitized); markErr != nil {
			relay.logger.Error("marking outbox event invalid",
				zap.String("event_id", event.ID.String()),
				zap.Error(markErr))
		}

		relay.metrics.recordInvalid(ctx, event.Topic)
		relay.logger.Error("outbox event rejected permanently",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.String("topic", event.Topic),
			zap.Error(err))

		return dispatchInvalid
	}

	if markErr := relay.repository.MarkFailed(ctx, event.ID, sanitized); markErr != nil {
		relay.logger.Error("marking outbox event failed",
			zap.String("event_id", event.ID.String()),
			zap.Error(markErr))
	}

	relay.metrics.recordFailed(ctx, event.Topic)
	relay.logger.Warn("outbox publish failed",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", event.Attempts+1),
		zap.Error(err))

	return dispatchFailed
}

func (relay *Relay) publishWithRetry(ctx context.Context, event *Event) error {
	var lastErr error

	for attempt := 0; attempt < relay.config.PublishMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.FullJitter(backoff.Exponential(relay.config.PublishBackoff, attempt-1))
			if err := backoff.Sleep(ctx, delay); err != nil {
				return errors.Join(lastErr, err)
			}
		}

		started := time.Now()
		err := relay.publisher.PublishEvent(ctx, event)
		relay.metrics.recordPublishTime(ctx, float64(time.Since(started).Milliseconds()))

		if err == nil {
			return nil
		}

		lastErr = err

		if !relay.classifier.IsRetryable(err) {
			return err
		}
	}

	return lastErr
}
