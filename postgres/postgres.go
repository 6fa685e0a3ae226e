// Package postgres manages the database connection the saga and outbox
// stores run on.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/backoff"
)

var (
	// ErrDSNRequired is returned when Connect is called without a DSN.
	ErrDSNRequired = errors.New("postgres DSN is required")
	// ErrNotConnected is returned when DB is read before Connect succeeded.
	ErrNotConnected = errors.New("postgres connection not established")
)

var dsnCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)

// Config holds pool and ping settings for one Postgres connection.
type Config struct {
	// DSN is the connection string, credentials included. It is never
	// logged unredacted.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// PingAttempts and PingBackoff bound the initial reachability check.
	PingAttempts int
	PingBackoff  time.Duration
	PingTimeout  time.Duration
}

// DefaultConfig returns the pool settings used when fields are zero.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingAttempts:    3,
		PingBackoff:     500 * time.Millisecond,
		PingTimeout:     5 * time.Second,
	}
}

func (config *Config) normalize() {
	defaults := DefaultConfig()

	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}

	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = defaults.MaxIdleConns
	}

	if config.ConnMaxLifetime <= 0 {
		config.ConnMaxLifetime = defaults.ConnMaxLifetime
	}

	if config.ConnMaxIdleTime <= 0 {
		config.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}

	if config.PingAttempts <= 0 {
		config.PingAttempts = defaults.PingAttempts
	}

	if config.PingBackoff <= 0 {
		config.PingBackoff = defaults.PingBackoff
	}

	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
}

// Connection is a reusable handle on one Postgres database. Connect is
// safe to call concurrently and keeps a single *sql.DB.
type Connection struct {
	config Config
	logger *zap.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewConnection builds an unconnected handle.
func NewConnection(config Config, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.normalize()

	return &Connection{config: config, logger: logger}
}

// Connect opens the pool and verifies reachability with bounded, backed-off
// pings. Calling Connect on an already-connected handle is a no-op.
func (connection *Connection) Connect(ctx context.Context) error {
	if connection.config.DSN == "" {
		return ErrDSNRequired
	}

	connection.mu.Lock()
	defer connection.mu.Unlock()

	if connection.db != nil {
		return nil
	}

	db, err := sql.Open("pgx", connection.config.DSN)
	if err != nil {
		return fmt.Errorf("opening postgres pool: %w", err)
	}

	db.SetMaxOpenConns(connection.config.MaxOpenConns)
	db.SetMaxIdleConns(connection.config.MaxIdleConns)
	db.SetConnMaxLifetime(connection.config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(connection.config.ConnMaxIdleTime)

	if err := connection.ping(ctx, db); err != nil {
		_ = db.Close()

		return err
	}

	connection.db = db

	connection.logger.Info("postgres connected",
		zap.String("dsn", RedactDSN(connection.config.DSN)),
		zap.Int("max_open_conns", connection.config.MaxOpenConns))

	return nil
}

func (connection *Connection) ping(ctx context.Context, db *sql.DB) error {
	var lastErr error

	for attempt := 0; attempt < connection.config.PingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, connection.config.PingTimeout)
		lastErr = db.PingContext(pingCtx)

		cancel()

		if lastErr == nil {
			return nil
		}

		connection.logger.Warn("postgres ping failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", connection.config.PingAttempts),
			zap.Error(lastErr))

		if attempt < connection.config.PingAttempts-1 {
			delay := backoff.ExponentialWithJitter(connection.config.PingBackoff, attempt)
			if err := backoff.Sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("pinging postgres after %d attempts: %w", connection.config.PingAttempts, lastErr)
}

// DB returns the live pool.
func (connection *Connection) DB() (*sql.DB, error) {
	connection.mu.RLock()
	defer connection.mu.RUnlock()

	if connection.db == nil {
		return nil, ErrNotConnected
	}

	return connection.db, nil
}

// Close releases the pool. The handle may be reconnected afterwards.
func (connection *Connection) Close() error {
	connection.mu.Lock()
	defer connection.mu.Unlock()

	if connection.db == nil {
		return nil
	}

	err := connection.db.Close()
	connection.db = nil

	return err
}

// RedactDSN strips the credentials section from a connection string so it
// can be logged.
func RedactDSN(dsn string) string {
	return dsnCredentialsPattern.ReplaceAllString(dsn, "://[REDACTED]@")
}
