package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/booking"
	"github.com/pdh-travel/booking-saga/command"
	"github.com/pdh-travel/booking-saga/compensation"
	"github.com/pdh-travel/booking-saga/dedup"
	"github.com/pdh-travel/booking-saga/lock"
	"github.com/pdh-travel/booking-saga/outbox"
)

// CommandSender is the best-effort direct publish path. The durable source
// of truth is always the outbox row carrying the same event id; the direct
// send only shaves latency, and its failure is logged, not propagated.
type CommandSender interface {
	SendCommandWithPriority(ctx context.Context, cmd *command.SagaCommand, priority int) error
}

// CompensationHandler runs the strategy for one failed operation.
type CompensationHandler interface {
	Execute(ctx context.Context, compensation compensation.Context, executor compensation.Executor) error
}

// BookingService is the external booking-record store the saga reads
// details from and writes outcomes to.
type BookingService interface {
	booking.Reader
	booking.StatusWriter
	booking.DetailsProvider
}

// Orchestrator drives bookings through the saga state machine: it consumes
// domain events, validates transitions against the immutable table, emits
// the next command through the outbox plus the direct path, and hands
// failures to the compensation policy engine.
type Orchestrator struct {
	store       Store
	deduper     dedup.Deduplicator
	locks       lock.Manager
	bookings    BookingService
	validator   *command.Validator
	sender      CommandSender
	compensator CompensationHandler
	policy      compensation.Policy
	logger      *zap.Logger
	config      Config
	metrics     *orchestratorMetrics

	wg sync.WaitGroup
}

// NewOrchestrator wires the orchestrator. Store, deduplicator, lock manager
// and booking service are required; a command sender is optional and
// enables the direct publish path.
func NewOrchestrator(
	store Store,
	deduper dedup.Deduplicator,
	locks lock.Manager,
	bookings BookingService,
	logger *zap.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	if deduper == nil {
		return nil, ErrDeduplicatorRequired
	}

	if locks == nil {
		return nil, ErrLockManagerRequired
	}

	if bookings == nil {
		return nil, ErrBookingServiceRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	orchestrator := &Orchestrator{
		store:    store,
		deduper:  deduper,
		locks:    locks,
		bookings: bookings,
		logger:   logger,
		config:   DefaultConfig(),
	}

	orchestrator.validator = command.NewValidator(logger)
	orchestrator.compensator = compensation.NewHandler(logger)

	for _, opt := range opts {
		opt(orchestrator)
	}

	orchestrator.config.normalize()

	metrics, err := newOrchestratorMetrics(orchestrator.config.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator metrics: %w", err)
	}

	orchestrator.metrics = metrics

	return orchestrator, nil
}

// StartSaga creates the saga for a booking and emits its first command.
// Combo and flight-only bookings start with the flight reservation,
// hotel-only with the hotel, and bookings with no reservation steps go
// straight to payment.
func (orchestrator *Orchestrator) StartSaga(ctx context.Context, bookingID uuid.UUID) (*Instance, error) {
	record, err := orchestrator.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("loading booking %s: %w", bookingID, err)
	}

	instance := NewInstance(bookingID)

	var action string

	switch {
	case record.Type.HasFlight():
		action = command.ActionReserveFlight
	case record.Type.HasHotel():
		action = command.ActionReserveHotel
	default:
		action = command.ActionProcessPayment
	}

	from := instance.CurrentState
	if err := instance.TransitionTo(pendingStateFor(action)); err != nil {
		return nil, err
	}

	emission, err := orchestrator.buildCommand(ctx, instance, record, action, 0, nil, "")
	if err != nil {
		return nil, err
	}

	if err := orchestrator.store.Create(ctx, instance, []*outbox.Event{emission.event}); err != nil {
		return nil, fmt.Errorf("creating saga for booking %s: %w", bookingID, err)
	}

	orchestrator.metrics.recordTransition(ctx, from, instance.CurrentState)
	orchestrator.afterEmit(ctx, emission)

	orchestrator.logger.Info("saga started",
		zap.String("saga_id", instance.SagaID),
		zap.String("booking_id", bookingID.String()),
		zap.String("booking_type", string(record.Type)),
		zap.String("first_action", action))

	return instance.Clone(), nil
}

// HandleEvent processes one inbound domain event. Duplicates, poison
// messages, unknown sagas and illegal transitions are dropped after being
// counted; the caller only sees an error when infrastructure failed and a
// redelivery is worth attempting.
func (orchestrator *Orchestrator) HandleEvent(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	eventID := event.ID.String()

	processed, err := orchestrator.deduper.IsProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("checking dedup for event %s: %w", eventID, err)
	}

	if processed {
		orchestrator.metrics.duplicates.Add(ctx, 1)
		orchestrator.logger.Debug("duplicate event suppressed",
			zap.String("event_id", eventID),
			zap.String("event_kind", string(event.Kind)))

		return nil
	}

	// messages this service published itself can echo back on shared topics
	selfProcessed, err := orchestrator.deduper.IsSelfProcessed(ctx, orchestrator.config.ServiceName, eventID)
	if err != nil {
		return fmt.Errorf("checking self dedup for event %s: %w", eventID, err)
	}

	if selfProcessed {
		orchestrator.metrics.duplicates.Add(ctx, 1)
		orchestrator.logger.Debug("own event suppressed",
			zap.String("event_id", eventID),
			zap.String("event_kind", string(event.Kind)))

		return nil
	}

	shouldProcess, err := orchestrator.deduper.ShouldAttemptProcessing(ctx, eventID, orchestrator.config.MaxProcessingAttempts)
	if err != nil {
		return fmt.Errorf("checking processing attempts for event %s: %w", eventID, err)
	}

	if !shouldProcess {
		orchestrator.metrics.poison.Add(ctx, 1)
		orchestrator.logger.Error("dropping poison event",
			zap.String("event_id", eventID),
			zap.String("event_kind", string(event.Kind)),
			zap.String("booking_id", event.BookingID.String()),
			zap.Int("max_attempts", orchestrator.config.MaxProcessingAttempts))

		return nil
	}

	if _, err := orchestrator.deduper.IncrementAttempts(ctx, eventID); err != nil {
		orchestrator.logger.Warn("incrementing processing attempts failed",
			zap.String("event_id", eventID), zap.Error(err))
	}

	var handled bool

	err = orchestrator.withSagaLock(ctx, event.BookingID, func(ctx context.Context) error {
		var processErr error
		handled, processErr = orchestrator.process(ctx, event)

		return processErr
	})
	if err != nil {
		return err
	}

	if handled {
		if err := orchestrator.deduper.MarkProcessed(ctx, eventID, orchestrator.config.DedupTTL); err != nil {
			orchestrator.logger.Warn("marking event processed failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}

	return nil
}

// CancelSaga begins compensation from the saga's current position, refund
// first when payment already completed. It is the entry point for user and
// operator initiated cancellations.
func (orchestrator *Orchestrator) CancelSaga(ctx context.Context, bookingID uuid.UUID, reason string) error {
	return orchestrator.withSagaLock(ctx, bookingID, func(ctx context.Context) error {
		instance, err := orchestrator.store.FindByBookingID(ctx, bookingID)
		if err != nil {
			return err
		}

		if instance.IsTerminal() {
			return ErrSagaTerminal
		}

		if instance.CurrentState.IsCompensation() {
			return nil
		}

		record, err := orchestrator.bookings.Get(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("loading booking %s: %w", bookingID, err)
		}

		entry := compensationEntryState(instance.CurrentState, record.Type)

		instance.CompensationReason = reason

		comp := compensation.Context{
			SagaID:    instance.SagaID,
			BookingID: bookingID.String(),
			Operation: compensationActionFor(entry),
			ErrorCode: "USER_CANCELLED",
			StartedAt: instance.CreatedAt,
		}

		return orchestrator.enterCompensation(ctx, instance, record, entry, comp)
	})
}

// Drain waits for in-flight asynchronous compensations to finish. Call on
// shutdown after consumers stop delivering events.
func (orchestrator *Orchestrator) Drain() {
	orchestrator.wg.Wait()
}

func (orchestrator *Orchestrator) process(ctx context.Context, event Event) (bool, error) {
	instance, err := orchestrator.store.FindByBookingID(ctx, event.BookingID)
	if errors.Is(err, ErrSagaNotFound) {
		orchestrator.metrics.notFound.Add(ctx, 1)
		orchestrator.logger.Warn("event for unknown saga dropped",
			zap.String("event_id", event.ID.String()),
			zap.String("event_kind", string(event.Kind)),
			zap.String("booking_id", event.BookingID.String()))

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("loading saga for booking %s: %w", event.BookingID, err)
	}

	record, err := orchestrator.bookings.Get(ctx, event.BookingID)
	if err != nil {
		return false, fmt.Errorf("loading booking %s: %w", event.BookingID, err)
	}

	switch {
	case event.Kind.IsFailure():
		return orchestrator.handleFailure(ctx, instance, event)
	case event.Kind.IsCompensationAck():
		return orchestrator.advanceCompensation(ctx, instance, record, event)
	default:
		return orchestrator.advanceForward(ctx, instance, record, event)
	}
}

// advanceForward applies a success event and emits the next forward step.
func (orchestrator *Orchestrator) advanceForward(ctx context.Context, instance *Instance, record *booking.Booking, event Event) (bool, error) {
	target := forwardStateFor(event.Kind)

	if !CanTransition(instance.CurrentState, target) {
		orchestrator.dropInvalidTransition(ctx, instance, event, target)

		return false, nil
	}

	var hops []stateHop

	hops = append(hops, stateHop{from: instance.CurrentState, to: target})
	if err := instance.TransitionTo(target); err != nil {
		return false, err
	}

	var (
		emissions        []emission
		events           []*outbox.Event
		confirmationCode string
	)

	switch target {
	case StateFlightReserved, StateHotelReserved:
		action := command.ActionProcessPayment
		if target == StateFlightReserved && record.Type.HasHotel() {
			action = command.ActionReserveHotel
		}

		next := pendingStateFor(action)

		hops = append(hops, stateHop{from: instance.CurrentState, to: next})
		if err := instance.TransitionTo(next); err != nil {
			return false, err
		}

		built, err := orchestrator.buildCommand(ctx, instance, record, action, 0, nil, "")
		if err != nil {
			return false, err
		}

		emissions = append(emissions, built)
		events = append(events, built.event)

	case StatePaymentCompleted:
		hops = append(hops, stateHop{from: instance.CurrentState, to: StateBookingCompleted})
		if err := instance.TransitionTo(StateBookingCompleted); err != nil {
			return false, err
		}

		confirmationCode = booking.NewConfirmationCode()

		completedEvent, err := orchestrator.buildDomainEvent(instance, "BookingCompleted", map[string]string{
			"sagaId":           instance.SagaID,
			"bookingId":        instance.BookingID.String(),
			"confirmationCode": confirmationCode,
		})
		if err != nil {
			return false, err
		}

		events = append(events, completedEvent)
	}

	if err := orchestrator.store.Save(ctx, instance, events); err != nil {
		return false, fmt.Errorf("saving saga %s: %w", instance.SagaID, err)
	}

	for _, hop := range hops {
		orchestrator.metrics.recordTransition(ctx, hop.from, hop.to)
		orchestrator.logger.Info("saga state transition",
			zap.String("saga_id", instance.SagaID),
			zap.String("from", string(hop.from)),
			zap.String("to", string(hop.to)))
	}

	orchestrator.afterEmit(ctx, emissions...)

	if instance.CurrentState == StateBookingCompleted {
		orchestrator.metrics.completed.Add(ctx, 1)

		if err := orchestrator.bookings.MarkConfirmed(ctx, instance.BookingID, confirmationCode); err != nil {
			orchestrator.logger.Error("writing booking confirmation failed",
				zap.String("saga_id", instance.SagaID),
				zap.String("booking_id", instance.BookingID.String()),
				zap.Error(err))
		}

		orchestrator.logger.Info("saga completed",
			zap.String("saga_id", instance.SagaID),
			zap.String("booking_id", instance.BookingID.String()),
			zap.String("confirmation_code", confirmationCode))
	}

	return true, nil
}

// handleFailure routes a *Failed event into the compensation policy engine.
// The state change, if any, happens later inside the executor under the
// per-saga lock; retries leave the saga in its pending state.
func (orchestrator *Orchestrator) handleFailure(ctx context.Context, instance *Instance, event Event) (bool, error) {
	if instance.IsTerminal() || instance.CurrentState.IsCompensation() {
		orchestrator.dropInvalidTransition(ctx, instance, event, instance.CurrentState)

		return false, nil
	}

	reason := event.Reason
	if reason == "" {
		reason = event.ErrorCode
	}

	comp := compensation.Context{
		SagaID:     instance.SagaID,
		BookingID:  instance.BookingID.String(),
		Operation:  actionForFailure(event.Kind),
		ErrorCode:  event.ErrorCode,
		RetryCount: event.RetryCount,
		StartedAt:  instance.CreatedAt,
	}

	orchestrator.logger.Warn("saga step failed",
		zap.String("saga_id", instance.SagaID),
		zap.String("operation", comp.Operation),
		zap.String("error_code", comp.ErrorCode),
		zap.Int("retry_count", comp.RetryCount))

	orchestrator.dispatchCompensation(ctx, comp, reason)

	return true, nil
}

// dispatchCompensation runs the handler asynchronously so backoff waits
// never block the consumer that delivered the failure event.
func (orchestrator *Orchestrator) dispatchCompensation(ctx context.Context, comp compensation.Context, reason string) {
	executor := &chainExecutor{orchestrator: orchestrator, reason: reason}
	detached := context.WithoutCancel(ctx)

	orchestrator.wg.Add(1)

	go func() {
		defer orchestrator.wg.Done()

		if err := orchestrator.compensator.Execute(detached, comp, executor); err != nil {
			orchestrator.logger.Error("compensation did not complete, saga left for operator",
				zap.String("saga_id", comp.SagaID),
				zap.String("operation", comp.Operation),
				zap.Error(err))
		}
	}()
}

// advanceCompensation moves the rollback chain one step on a cancellation
// acknowledgement.
func (orchestrator *Orchestrator) advanceCompensation(ctx context.Context, instance *Instance, record *booking.Booking, event Event) (bool, error) {
	if instance.CurrentState != acknowledgedState(event.Kind) {
		orchestrator.dropInvalidTransition(ctx, instance, event, acknowledgedState(event.Kind))

		return false, nil
	}

	next := nextCompensationState(instance.CurrentState, record.Type)

	comp := compensation.Context{
		SagaID:    instance.SagaID,
		BookingID: instance.BookingID.String(),
		Operation: compensationActionFor(next),
		ErrorCode: event.ErrorCode,
		StartedAt: instance.CreatedAt,
	}

	if err := orchestrator.enterCompensation(ctx, instance, record, next, comp); err != nil {
		return false, err
	}

	return true, nil
}

// enterCompensation transitions into a compensation state and emits its
// command. Reaching COMPENSATION_BOOKING_CANCEL finalizes the saga in the
// same save: the cancel-booking command, the terminal transition and the
// BookingCancelled event commit together.
func (orchestrator *Orchestrator) enterCompensation(ctx context.Context, instance *Instance, record *booking.Booking, target State, comp compensation.Context) error {
	// the first entry records what broke; acks arriving later carry no code
	if instance.FailureCode == "" {
		instance.FailureCode = comp.ErrorCode
	}

	var hops []stateHop

	hops = append(hops, stateHop{from: instance.CurrentState, to: target})
	if err := instance.TransitionTo(target); err != nil {
		return err
	}

	action := compensationActionFor(target)

	built, err := orchestrator.buildCommand(ctx, instance, record, action, 0, &comp, instance.CompensationReason)
	if err != nil {
		return err
	}

	emissions := []emission{built}
	events := []*outbox.Event{built.event}

	finalizing := target == StateCompensationBookingCancel
	if finalizing {
		hops = append(hops, stateHop{from: instance.CurrentState, to: StateBookingCancelled})
		if err := instance.TransitionTo(StateBookingCancelled); err != nil {
			return err
		}

		cancelledEvent, err := orchestrator.buildDomainEvent(instance, "BookingCancelled", map[string]string{
			"sagaId":    instance.SagaID,
			"bookingId": instance.BookingID.String(),
			"reason":    instance.CompensationReason,
		})
		if err != nil {
			return err
		}

		events = append(events, cancelledEvent)
	}

	if err := orchestrator.store.Save(ctx, instance, events); err != nil {
		return fmt.Errorf("saving saga %s: %w", instance.SagaID, err)
	}

	for _, hop := range hops {
		orchestrator.metrics.recordTransition(ctx, hop.from, hop.to)
		orchestrator.logger.Info("saga state transition",
			zap.String("saga_id", instance.SagaID),
			zap.String("from", string(hop.from)),
			zap.String("to", string(hop.to)))
	}

	orchestrator.afterEmit(ctx, emissions...)

	if finalizing {
		orchestrator.metrics.cancelled.Add(ctx, 1)

		if err := orchestrator.bookings.MarkCancelled(ctx, instance.BookingID, cancelStatusFor(instance.FailureCode), instance.CompensationReason); err != nil {
			orchestrator.logger.Error("writing booking cancellation failed",
				zap.String("saga_id", instance.SagaID),
				zap.String("booking_id", instance.BookingID.String()),
				zap.Error(err))
		}

		orchestrator.logger.Info("saga cancelled",
			zap.String("saga_id", instance.SagaID),
			zap.String("booking_id", instance.BookingID.String()),
			zap.String("reason", instance.CompensationReason))
	}

	return nil
}

func (orchestrator *Orchestrator) dropInvalidTransition(ctx context.Context, instance *Instance, event Event, target State) {
	orchestrator.metrics.recordInvalidTransition(ctx, instance.CurrentState, event.Kind)
	orchestrator.logger.Warn("illegal transition dropped",
		zap.String("saga_id", instance.SagaID),
		zap.String("event_id", event.ID.String()),
		zap.String("event_kind", string(event.Kind)),
		zap.String("state", string(instance.CurrentState)),
		zap.String("target", string(target)))
}

// emission pairs an outbound command with its outbox row and direct-path
// priority.
type emission struct {
	cmd      *command.SagaCommand
	event    *outbox.Event
	priority int
}

func (orchestrator *Orchestrator) buildCommand(
	ctx context.Context,
	instance *Instance,
	record *booking.Booking,
	action string,
	retryCount int,
	comp *compensation.Context,
	reason string,
) (emission, error) {
	cmd := command.New(instance.SagaID, record.BookingID, action)
	cmd.CustomerID = record.CustomerID
	cmd.BookingType = string(record.Type)
	cmd.TotalAmount = record.TotalAmount
	cmd.CorrelationID = instance.SagaID
	cmd.RetryCount = retryCount

	if err := orchestrator.attachDetails(ctx, cmd, record, action); err != nil {
		return emission{}, err
	}

	if comp != nil || cmd.IsCompensation() {
		cmd.MarkAsCompensation(reason)
	}

	if err := orchestrator.validator.Validate(ctx, cmd); err != nil {
		return emission{}, err
	}

	if retryCount > 0 {
		if err := orchestrator.validator.ValidateRetry(cmd); err != nil {
			return emission{}, err
		}
	}

	priority := outbox.PriorityDefault
	if comp != nil {
		priority = orchestrator.policy.Priority(*comp, time.Now().UTC())
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return emission{}, fmt.Errorf("encoding command %s: %w", action, err)
	}

	event, err := outbox.NewEvent("SagaCommand", "Saga", instance.SagaID, payload,
		outbox.WithEventID(cmd.EventID),
		outbox.WithSaga(instance.SagaID, record.BookingID),
		outbox.WithTopic(command.TopicFor(action)),
		outbox.WithPartitionKey(instance.SagaID),
		outbox.WithPriority(priority),
	)
	if err != nil {
		return emission{}, err
	}

	return emission{cmd: cmd, event: event, priority: priority}, nil
}

func (orchestrator *Orchestrator) buildDomainEvent(instance *Instance, eventType string, body map[string]string) (*outbox.Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	return outbox.NewEvent(eventType, "Booking", instance.BookingID.String(), payload,
		outbox.WithSaga(instance.SagaID, instance.BookingID),
		outbox.WithTopic("booking-events"),
		outbox.WithPartitionKey(instance.SagaID),
	)
}

func (orchestrator *Orchestrator) attachDetails(ctx context.Context, cmd *command.SagaCommand, record *booking.Booking, action string) error {
	var err error

	switch action {
	case command.ActionReserveFlight, command.ActionCancelFlight:
		cmd.FlightDetails, err = orchestrator.bookings.FlightDetails(ctx, record.BookingID)
	case command.ActionReserveHotel, command.ActionCancelHotel:
		cmd.HotelDetails, err = orchestrator.bookings.HotelDetails(ctx, record.BookingID)
	case command.ActionProcessPayment, command.ActionRefundPayment:
		cmd.PaymentDetails, err = orchestrator.bookings.PaymentDetails(ctx, record.BookingID)
	}

	if err != nil {
		return fmt.Errorf("loading %s details for booking %s: %w", action, record.BookingID, err)
	}

	return nil
}

// afterEmit runs the non-transactional tail of a command emission: the
// self-event dedup marker and the best-effort direct send. Both are
// recoverable; the outbox row is already committed.
func (orchestrator *Orchestrator) afterEmit(ctx context.Context, emissions ...emission) {
	for _, emitted := range emissions {
		eventID := emitted.cmd.EventID.String()

		if err := orchestrator.deduper.MarkSelfProcessed(ctx, orchestrator.config.ServiceName, eventID, orchestrator.config.DedupTTL); err != nil {
			orchestrator.logger.Warn("marking self event failed",
				zap.String("event_id", eventID), zap.Error(err))
		}

		if orchestrator.sender == nil {
			continue
		}

		if err := orchestrator.sender.SendCommandWithPriority(ctx, emitted.cmd, emitted.priority); err != nil {
			orchestrator.logger.Warn("direct command send failed, outbox path will deliver",
				zap.String("saga_id", emitted.cmd.SagaID),
				zap.String("action", emitted.cmd.Action),
				zap.String("event_id", eventID),
				zap.Error(err))
		}
	}
}

// chainExecutor is the compensation.Executor backed by the saga chain.
type chainExecutor struct {
	orchestrator *Orchestrator
	reason       string
}

// Retry re-dispatches the failed operation's command with an incremented
// retry count. The outcome arrives later as a fresh domain event.
func (executor *chainExecutor) Retry(ctx context.Context, comp compensation.Context) error {
	orchestrator := executor.orchestrator

	bookingID, err := uuid.Parse(comp.BookingID)
	if err != nil {
		return fmt.Errorf("parsing booking id %q: %w", comp.BookingID, err)
	}

	return orchestrator.withSagaLock(ctx, bookingID, func(ctx context.Context) error {
		instance, err := orchestrator.store.FindByBookingID(ctx, bookingID)
		if err != nil {
			return err
		}

		if instance.IsTerminal() {
			return nil
		}

		if instance.CurrentState.IsCompensation() && compensationActionFor(instance.CurrentState) != comp.Operation {
			return nil
		}

		record, err := orchestrator.bookings.Get(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("loading booking %s: %w", bookingID, err)
		}

		built, err := orchestrator.buildCommand(ctx, instance, record, comp.Operation, comp.RetryCount+1, nil, executor.reason)
		if err != nil {
			return err
		}

		// a re-dispatch is progress, keep the watchdog from sweeping the
		// saga again before the retried command had a chance to land
		instance.UpdatedAt = time.Now().UTC()

		if err := orchestrator.store.Save(ctx, instance, []*outbox.Event{built.event}); err != nil {
			return fmt.Errorf("saving retry for saga %s: %w", instance.SagaID, err)
		}

		orchestrator.afterEmit(ctx, built)

		orchestrator.logger.Info("operation re-dispatched",
			zap.String("saga_id", instance.SagaID),
			zap.String("operation", comp.Operation),
			zap.Int("retry_count", comp.RetryCount+1))

		return nil
	})
}

// Compensate enters the rollback chain at the deepest state the saga's
// forward progress requires.
func (executor *chainExecutor) Compensate(ctx context.Context, comp compensation.Context) error {
	orchestrator := executor.orchestrator

	bookingID, err := uuid.Parse(comp.BookingID)
	if err != nil {
		return fmt.Errorf("parsing booking id %q: %w", comp.BookingID, err)
	}

	return orchestrator.withSagaLock(ctx, bookingID, func(ctx context.Context) error {
		instance, err := orchestrator.store.FindByBookingID(ctx, bookingID)
		if err != nil {
			return err
		}

		if instance.IsTerminal() || instance.CurrentState.IsCompensation() {
			return nil
		}

		record, err := orchestrator.bookings.Get(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("loading booking %s: %w", bookingID, err)
		}

		entry := compensationEntryState(instance.CurrentState, record.Type)

		if !CanTransition(instance.CurrentState, entry) {
			orchestrator.metrics.invalidTransitions.Add(ctx, 1)
			orchestrator.logger.Warn("compensation entry not reachable, dropping",
				zap.String("saga_id", instance.SagaID),
				zap.String("state", string(instance.CurrentState)),
				zap.String("entry", string(entry)))

			return nil
		}

		instance.CompensationReason = executor.reason

		return orchestrator.enterCompensation(ctx, instance, record, entry, comp)
	})
}

type stateHop struct {
	from State
	to   State
}

// withSagaLock serializes one saga mutation under its per-booking lock,
// bounding the hold with the configured lock timeout.
func (orchestrator *Orchestrator) withSagaLock(ctx context.Context, bookingID uuid.UUID, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, orchestrator.config.LockTimeout)
	defer cancel()

	return orchestrator.locks.WithLock(lockCtx, lockKey(bookingID), fn)
}

func lockKey(bookingID uuid.UUID) string {
	return "saga:" + bookingID.String()
}

func pendingStateFor(action string) State {
	switch action {
	case command.ActionReserveFlight:
		return StateFlightReservationPending
	case command.ActionReserveHotel:
		return StateHotelReservationPending
	default:
		return StatePaymentPending
	}
}

func forwardStateFor(kind Kind) State {
	switch kind {
	case KindFlightReserved:
		return StateFlightReserved
	case KindHotelReserved:
		return StateHotelReserved
	default:
		return StatePaymentCompleted
	}
}

func actionForFailure(kind Kind) string {
	switch kind {
	case KindFlightReservationFailed:
		return command.ActionReserveFlight
	case KindHotelReservationFailed:
		return command.ActionReserveHotel
	default:
		return command.ActionProcessPayment
	}
}

// acknowledgedState maps a cancellation ack to the compensation state it
// confirms.
func acknowledgedState(kind Kind) State {
	switch kind {
	case KindFlightReservationCancelled:
		return StateCompensationFlightCancel
	case KindHotelReservationCancelled:
		return StateCompensationHotelCancel
	default:
		return StateCompensationPaymentRefund
	}
}

// compensationEntryState picks where the rollback chain starts given what
// the saga has actually reserved so far.
func compensationEntryState(current State, bookingType booking.Type) State {
	switch current {
	case StatePaymentCompleted:
		return StateCompensationPaymentRefund
	case StateHotelReserved:
		return StateCompensationHotelCancel
	case StatePaymentPending:
		switch {
		case bookingType.HasHotel():
			return StateCompensationHotelCancel
		case bookingType.HasFlight():
			return StateCompensationFlightCancel
		default:
			return StateCompensationBookingCancel
		}
	case StateFlightReserved, StateHotelReservationPending:
		if bookingType.HasFlight() {
			return StateCompensationFlightCancel
		}

		return StateCompensationBookingCancel
	default:
		return StateCompensationBookingCancel
	}
}

// nextCompensationState advances the chain after an acknowledged step.
func nextCompensationState(current State, bookingType booking.Type) State {
	switch current {
	case StateCompensationPaymentRefund:
		switch {
		case bookingType.HasHotel():
			return StateCompensationHotelCancel
		case bookingType.HasFlight():
			return StateCompensationFlightCancel
		default:
			return StateCompensationBookingCancel
		}
	case StateCompensationHotelCancel:
		if bookingType.HasFlight() {
			return StateCompensationFlightCancel
		}

		return StateCompensationBookingCancel
	default:
		return StateCompensationBookingCancel
	}
}

func compensationActionFor(state State) string {
	switch state {
	case StateCompensationPaymentRefund:
		return command.ActionRefundPayment
	case StateCompensationHotelCancel:
		return command.ActionCancelHotel
	case StateCompensationFlightCancel:
		return command.ActionCancelFlight
	default:
		return command.ActionCancelBooking
	}
}

// pendingActionFor names the operation a stuck saga is waiting on, for the
// watchdog's compensation context.
func pendingActionFor(state State) string {
	switch state {
	case StateFlightReservationPending, StateFlightReserved:
		return command.ActionReserveFlight
	case StateHotelReservationPending, StateHotelReserved:
		return command.ActionReserveHotel
	case StatePaymentPending, StatePaymentCompleted:
		return command.ActionProcessPayment
	default:
		return compensationActionFor(state)
	}
}

func cancelStatusFor(errorCode string) booking.Status {
	if strings.Contains(strings.ToUpper(errorCode), "PAYMENT") {
		return booking.StatusPaymentFailed
	}

	return booking.StatusCancelled
}
