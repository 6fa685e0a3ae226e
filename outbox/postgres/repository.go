// Package postgres provides the durable outbox repository backed by
// PostgreSQL. Append can run inside a caller-supplied transaction so the
// outbox row commits atomically with the saga state change.
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
)

// Schema is the DDL for the outbox table. It is applied by Migrate and kept
// here so deployments without a migration tool can bootstrap directly.
const Schema = `
CREATE TABLE IF NOT EXISTS outbox_events (
    id             UUID PRIMARY KEY,
    event_type     TEXT        NOT NULL,
    aggregate_type TEXT        NOT NULL,
    aggregate_id   TEXT        NOT NULL,
    saga_id        TEXT        NOT NULL DEFAULT '',
    booking_id     UUID        NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000',
    topic          TEXT        NOT NULL DEFAULT '',
    partition_key  TEXT        NOT NULL DEFAULT '',
    priority       INT         NOT NULL DEFAULT 5,
    payload        JSONB       NOT NULL,
    status         TEXT        NOT NULL DEFAULT 'PENDING',
    attempts       INT         NOT NULL DEFAULT 0,
    max_attempts   INT         NOT NULL DEFAULT 10,
    last_error     TEXT        NOT NULL DEFAULT '',
    published_at   TIMESTAMPTZ,
    expires_at     TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outbox_events_dispatch
    ON outbox_events (status, priority DESC, created_at);

CREATE INDEX IF NOT EXISTS idx_outbox_events_saga
    ON outbox_events (saga_id);
`

const eventColumns = `id, event_type, aggregate_type, aggregate_id, saga_id, booking_id,
	topic, partition_key, priority, payload, status, attempts, max_attempts,
	last_error, published_at, expires_at, created_at, updated_at`

// Repository implements outbox.Repository on PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("outbox postgres: database handle is required")
	}

	return &Repository{db: db}, nil
}

// Migrate applies the outbox schema.
func (repository *Repository) Migrate(ctx context.Context) error {
	if _, err := repository.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying outbox schema: %w", err)
	}

	return nil
}

// CreateWithTx inserts an event inside an existing transaction.
func (repository *Repository) CreateWithTx(ctx context.Context, tx *sql.Tx, event *outbox.Event) error {
	if event == nil {
		return outbox.ErrEventRequired
	}

	const query = `
		INSERT INTO outbox_events (
			id, event_type, aggregate_type, aggregate_id, saga_id, booking_id,
			topic, partition_key, priority, payload, status, attempts,
			max_attempts, last_error, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.ExecContext(ctx, query,
		event.ID, event.EventType, event.AggregateType, event.AggregateID,
		event.SagaID, event.BookingID, event.Topic, event.PartitionKey,
		event.Priority, []byte(event.Payload), event.Status, event.Attempts,
		event.MaxAttempts, event.LastError, event.ExpiresAt,
		event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting outbox event: %w", err)
	}

	return nil
}

// Append implements outbox.Repository using its own short transaction.
func (repository *Repository) Append(ctx context.Context, event *outbox.Event) error {
	tx, err := repository.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning outbox transaction: %w", err)
	}

	if err := repository.CreateWithTx(ctx, tx, event); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing outbox transaction: %w", err)
	}

	return nil
}

// ListPending implements outbox.Repository.
func (repository *Repository) ListPending(ctx context.Context, limit int) ([]*outbox.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM outbox_events
		WHERE status = $1
		ORDER BY priority DESC, created_at
		LIMIT $2`, eventColumns)

	rows, err := repository.db.QueryContext(ctx, query, outbox.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending outbox events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ResetForRetry implements outbox.Repository. The update and the returning
// select run as one statement so two relays cannot reset the same row.
func (repository *Repository) ResetForRetry(ctx context.Context, failedBefore time.Time, limit int) ([]*outbox.Event, error) {
	query := fmt.Sprintf(`
		UPDATE outbox_events
		SET status = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			  AND updated_at < $3
			  AND attempts < max_attempts
			ORDER BY priority DESC, created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, eventColumns)

	rows, err := repository.db.QueryContext(ctx, query,
		outbox.StatusPending, outbox.StatusFailed, failedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("resetting failed outbox events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MarkPublished implements outbox.Repository.
func (repository *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	const query = `
		UPDATE outbox_events
		SET status = $1, published_at = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)`

	return repository.markOne(ctx, query,
		outbox.StatusPublished, publishedAt, id, outbox.StatusPending, outbox.StatusFailed)
}

// MarkFailed implements outbox.Repository.
func (repository *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	const query = `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)`

	return repository.markOne(ctx, query,
		outbox.StatusFailed, lastError, id, outbox.StatusPending, outbox.StatusFailed)
}

// MarkInvalid implements outbox.Repository.
func (repository *Repository) MarkInvalid(ctx context.Context, id uuid.UUID, lastError string) error {
	const query = `
		UPDATE outbox_events
		SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)`

	return repository.markOne(ctx, query,
		outbox.StatusInvalid, lastError, id, outbox.StatusPending, outbox.StatusFailed)
}

// ExpireOverdue implements outbox.Repository.
func (repository *Repository) ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error) {
	const query = `
		UPDATE outbox_events
		SET status = $1, attempts = max_attempts,
		    last_error = 'expired before publish', updated_at = $2
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status IN ($3, $4)
			  AND expires_at < $2
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)`

	result, err := repository.db.ExecContext(ctx, query,
		outbox.StatusFailed, now, outbox.StatusPending, outbox.StatusFailed, limit)
	if err != nil {
		return 0, fmt.Errorf("expiring overdue outbox events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting expired outbox events: %w", err)
	}

	return int(affected), nil
}

// GetByID implements outbox.Repository.
func (repository *Repository) GetByID(ctx context.Context, id uuid.UUID) (*outbox.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM outbox_events WHERE id = $1`, eventColumns)

	event, err := scanEvent(repository.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outbox.ErrEventNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("fetching outbox event: %w", err)
	}

	return event, nil
}

// Stats implements outbox.Repository.
func (repository *Repository) Stats(ctx context.Context) (outbox.Stats, error) {
	const query = `
		SELECT
			count(*) FILTER (WHERE status = $1),
			count(*) FILTER (WHERE status = $2)
		FROM outbox_events`

	var stats outbox.Stats

	err := repository.db.QueryRowContext(ctx, query,
		outbox.StatusPending, outbox.StatusFailed).
		Scan(&stats.UnprocessedCount, &stats.FailedCount)
	if err != nil {
		return outbox.Stats{}, fmt.Errorf("reading outbox stats: %w", err)
	}

	return stats, nil
}

func (repository *Repository) markOne(ctx context.Context, query string, args ...any) error {
	result, err := repository.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating outbox event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking outbox update: %w", err)
	}

	if affected == 0 {
		return outbox.ErrEventNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*outbox.Event, error) {
	var (
		event       outbox.Event
		payload     []byte
		publishedAt sql.NullTime
	)

	err := row.Scan(
		&event.ID, &event.EventType, &event.AggregateType, &event.AggregateID,
		&event.SagaID, &event.BookingID, &event.Topic, &event.PartitionKey,
		&event.Priority, &payload, &event.Status, &event.Attempts,
		&event.MaxAttempts, &event.LastError, &publishedAt,
		&event.ExpiresAt, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, err
	}

	event.Payload = payload

	if publishedAt.Valid {
		event.PublishedAt = &publishedAt.Time
	}

	return &event, nil
}

func scanEvents(rows *sql.Rows) ([]*outbox.Event, error) {
	var events []*outbox.Event

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox events: %w", err)
	}

	return events, nil
}
