// Package postgres provides the durable saga store. Saga state changes and
// their outbox events commit in one transaction, which is the atomicity the
// outbox pattern relies on.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pdh-travel/booking-saga/outbox"
	outboxpg "github.com/pdh-travel/booking-saga/outbox/postgres"
	"github.com/pdh-travel/booking-saga/saga"
)

// Schema is the DDL for the saga table. The partial unique index enforces
// at most one non-terminal saga per booking.
const Schema = `
CREATE TABLE IF NOT EXISTS saga_instances (
    saga_id             TEXT PRIMARY KEY,
    booking_id          UUID        NOT NULL,
    current_state       TEXT        NOT NULL,
    compensation_reason TEXT        NOT NULL DEFAULT '',
    failure_code        TEXT        NOT NULL DEFAULT '',
    timeout_retries     INT         NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_saga_instances_active_booking
    ON saga_instances (booking_id)
    WHERE current_state NOT IN ('BOOKING_COMPLETED', 'BOOKING_CANCELLED');

CREATE INDEX IF NOT EXISTS idx_saga_instances_stuck
    ON saga_instances (updated_at)
    WHERE current_state NOT IN ('BOOKING_COMPLETED', 'BOOKING_CANCELLED');
`

// Store implements saga.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	outbox *outboxpg.Repository
}

// NewStore wraps a database handle and the outbox repository sharing it.
func NewStore(db *sql.DB, outboxRepository *outboxpg.Repository) (*Store, error) {
	if db == nil {
		return nil, errors.New("saga postgres: database handle is required")
	}

	if outboxRepository == nil {
		return nil, errors.New("saga postgres: outbox repository is required")
	}

	return &Store{db: db, outbox: outboxRepository}, nil
}

// Migrate applies the saga schema.
func (store *Store) Migrate(ctx context.Context) error {
	if _, err := store.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying saga schema: %w", err)
	}

	return nil
}

// Create implements saga.Store.
func (store *Store) Create(ctx context.Context, instance *saga.Instance, events []*outbox.Event) error {
	if instance == nil {
		return saga.ErrInstanceRequired
	}

	return store.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			INSERT INTO saga_instances (saga_id, booking_id, current_state, compensation_reason, failure_code, timeout_retries, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		_, err := tx.ExecContext(ctx, query,
			instance.SagaID, instance.BookingID, instance.CurrentState,
			instance.CompensationReason, instance.FailureCode, instance.TimeoutRetries, instance.CreatedAt, instance.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return saga.ErrSagaActive
			}

			return fmt.Errorf("inserting saga: %w", err)
		}

		return store.appendEvents(ctx, tx, events)
	})
}

// FindByBookingID implements saga.Store. It returns the most recent saga
// for the booking, terminal or not.
func (store *Store) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*saga.Instance, error) {
	const query = `
		SELECT saga_id, booking_id, current_state, compensation_reason, failure_code, timeout_retries, created_at, updated_at
		FROM saga_instances
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var instance saga.Instance

	err := store.db.QueryRowContext(ctx, query, bookingID).Scan(
		&instance.SagaID, &instance.BookingID, &instance.CurrentState,
		&instance.CompensationReason, &instance.FailureCode, &instance.TimeoutRetries, &instance.CreatedAt, &instance.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, saga.ErrSagaNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("loading saga for booking %s: %w", bookingID, err)
	}

	return &instance, nil
}

// Save implements saga.Store.
func (store *Store) Save(ctx context.Context, instance *saga.Instance, events []*outbox.Event) error {
	if instance == nil {
		return saga.ErrInstanceRequired
	}

	return store.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE saga_instances
			SET current_state = $1, compensation_reason = $2, failure_code = $3, timeout_retries = $4, updated_at = $5
			WHERE saga_id = $6`

		result, err := tx.ExecContext(ctx, query,
			instance.CurrentState, instance.CompensationReason, instance.FailureCode, instance.TimeoutRetries, instance.UpdatedAt, instance.SagaID)
		if err != nil {
			return fmt.Errorf("updating saga: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking saga update: %w", err)
		}

		if affected == 0 {
			return saga.ErrSagaNotFound
		}

		return store.appendEvents(ctx, tx, events)
	})
}

// ListStuck implements saga.Store.
func (store *Store) ListStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*saga.Instance, error) {
	const query = `
		SELECT saga_id, booking_id, current_state, compensation_reason, failure_code, timeout_retries, created_at, updated_at
		FROM saga_instances
		WHERE current_state NOT IN ('BOOKING_COMPLETED', 'BOOKING_CANCELLED')
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`

	rows, err := store.db.QueryContext(ctx, query, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stuck sagas: %w", err)
	}
	defer rows.Close()

	var stuck []*saga.Instance

	for rows.Next() {
		var instance saga.Instance

		err := rows.Scan(&instance.SagaID, &instance.BookingID, &instance.CurrentState,
			&instance.CompensationReason, &instance.FailureCode, &instance.TimeoutRetries, &instance.CreatedAt, &instance.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning saga: %w", err)
		}

		stuck = append(stuck, &instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stuck sagas: %w", err)
	}

	return stuck, nil
}

func (store *Store) appendEvents(ctx context.Context, tx *sql.Tx, events []*outbox.Event) error {
	for _, event := range events {
		if err := store.outbox.CreateWithTx(ctx, tx, event); err != nil {
			return err
		}
	}

	return nil
}

func (store *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning saga transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing saga transaction: %w", err)
	}

	return nil
}

// isUniqueViolation matches the PostgreSQL unique_violation SQLSTATE.
func isUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }

	var coded sqlState
	if errors.As(err, &coded) {
		return coded.SQLState() == "23505"
	}

	return false
}
