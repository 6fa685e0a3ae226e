package dedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSweepInterval = time.Hour

// MemoryDeduplicator is the in-process fallback ledger. It is safe for
// concurrent use within one process, but markers are invisible to other
// instances, so it is unsuitable for production multi-instance deployments.
// Construct it only when the shared Redis ledger is unavailable.
type MemoryDeduplicator struct {
	mu        sync.Mutex
	processed map[string]time.Time
	attempts  map[string]int
	ttl       map[string]time.Duration

	logger *zap.Logger
	clock  func() time.Time

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

var _ Deduplicator = (*MemoryDeduplicator)(nil)

// MemoryOption mutates memory deduplicator construction.
type MemoryOption func(*MemoryDeduplicator)

// WithSweepInterval overrides how often expired markers are swept.
func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(d *MemoryDeduplicator) {
		if interval > 0 {
			d.sweepInterval = interval
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(d *MemoryDeduplicator) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewMemoryDeduplicator creates the in-process ledger and starts its
// background sweep. Call Close to stop the sweep goroutine.
func NewMemoryDeduplicator(logger *zap.Logger, opts ...MemoryOption) *MemoryDeduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &MemoryDeduplicator{
		processed:     map[string]time.Time{},
		attempts:      map[string]int{},
		ttl:           map[string]time.Duration{},
		logger:        logger,
		clock:         func() time.Time { return time.Now().UTC() },
		sweepInterval: defaultSweepInterval,
		stop:          make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	d.logger.Warn("using in-memory event deduplication; markers are not shared across instances")

	go d.sweepLoop()

	return d
}

// Close stops the background sweep.
func (d *MemoryDeduplicator) Close() {
	d.stopOnce.Do(func() { close(d.stop) })
}

// IsProcessed implements Deduplicator.
func (d *MemoryDeduplicator) IsProcessed(_ context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrEventIDRequired
	}

	return d.alive(processedKey(eventID)), nil
}

// MarkProcessed implements Deduplicator.
func (d *MemoryDeduplicator) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) error {
	if eventID == "" {
		return ErrEventIDRequired
	}

	d.mark(processedKey(eventID), ttl)

	return nil
}

// IsSelfProcessed implements Deduplicator.
func (d *MemoryDeduplicator) IsSelfProcessed(_ context.Context, serviceName, eventID string) (bool, error) {
	if serviceName == "" {
		return false, ErrServiceNameRequired
	}

	if eventID == "" {
		return false, ErrEventIDRequired
	}

	return d.alive(selfProcessedKey(serviceName, eventID)), nil
}

// MarkSelfProcessed implements Deduplicator.
func (d *MemoryDeduplicator) MarkSelfProcessed(_ context.Context, serviceName, eventID string, ttl time.Duration) error {
	if serviceName == "" {
		return ErrServiceNameRequired
	}

	if eventID == "" {
		return ErrEventIDRequired
	}

	d.mark(selfProcessedKey(serviceName, eventID), ttl)

	return nil
}

// ProcessingAttempts implements Deduplicator.
func (d *MemoryDeduplicator) ProcessingAttempts(_ context.Context, eventID string) (int, error) {
	if eventID == "" {
		return 0, ErrEventIDRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.attempts[attemptsKey(eventID)], nil
}

// IncrementAttempts implements Deduplicator.
func (d *MemoryDeduplicator) IncrementAttempts(_ context.Context, eventID string) (int, error) {
	if eventID == "" {
		return 0, ErrEventIDRequired
	}

	key := attemptsKey(eventID)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts[key]++

	return d.attempts[key], nil
}

// ShouldAttemptProcessing implements Deduplicator.
func (d *MemoryDeduplicator) ShouldAttemptProcessing(ctx context.Context, eventID string, maxAttempts int) (bool, error) {
	attempts, err := d.ProcessingAttempts(ctx, eventID)
	if err != nil {
		return false, err
	}

	return attempts < maxAttempts, nil
}

// Remove implements Deduplicator.
func (d *MemoryDeduplicator) Remove(_ context.Context, eventID string) error {
	if eventID == "" {
		return ErrEventIDRequired
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.processed, processedKey(eventID))
	delete(d.ttl, processedKey(eventID))
	delete(d.attempts, attemptsKey(eventID))

	return nil
}

// RemoveSelf implements Deduplicator.
func (d *MemoryDeduplicator) RemoveSelf(_ context.Context, serviceName, eventID string) error {
	if serviceName == "" {
		return ErrServiceNameRequired
	}

	if eventID == "" {
		return ErrEventIDRequired
	}

	key := selfProcessedKey(serviceName, eventID)

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.processed, key)
	delete(d.ttl, key)

	return nil
}

func (d *MemoryDeduplicator) mark(key string, ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.processed[key]; exists {
		// SET NX semantics: a live marker keeps its original expiry.
		if d.aliveLocked(key) {
			return
		}
	}

	d.processed[key] = d.clock()
	d.ttl[key] = normalizeTTL(ttl)
}

func (d *MemoryDeduplicator) alive(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.aliveLocked(key) {
		delete(d.processed, key)
		delete(d.ttl, key)

		return false
	}

	return true
}

func (d *MemoryDeduplicator) aliveLocked(key string) bool {
	markedAt, exists := d.processed[key]
	if !exists {
		return false
	}

	return markedAt.Add(d.ttl[key]).After(d.clock())
}

func (d *MemoryDeduplicator) sweepLoop() {
	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *MemoryDeduplicator) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0

	for key := range d.processed {
		if !d.aliveLocked(key) {
			delete(d.processed, key)
			delete(d.ttl, key)

			removed++
		}
	}

	if removed > 0 {
		d.logger.Debug("swept expired dedup markers", zap.Int("removed", removed))
	}
}
