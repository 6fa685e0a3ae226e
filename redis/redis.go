// Package redis manages the client the deduplication cache and the
// distributed lock manager share.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrAddrRequired is returned when Connect is called without an address.
	ErrAddrRequired = errors.New("redis address is required")
	// ErrNotConnected is returned when Client is read before Connect succeeded.
	ErrNotConnected = errors.New("redis connection not established")
)

// Config holds client settings for one Redis connection.
type Config struct {
	// Addr is host:port.
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

// DefaultConfig returns the client settings used when fields are zero.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PingTimeout:  5 * time.Second,
	}
}

func (config *Config) normalize() {
	defaults := DefaultConfig()

	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}

	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}

	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	if config.PoolSize <= 0 {
		config.PoolSize = defaults.PoolSize
	}

	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
}

// Connection is a reusable handle on one Redis server. Connect is safe to
// call concurrently and keeps a single client.
type Connection struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	client *goredis.Client
}

// NewConnection builds an unconnected handle.
func NewConnection(config Config, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.normalize()

	return &Connection{config: config, logger: logger}
}

// Connect dials the server and verifies reachability with one ping.
// Calling Connect on an already-connected handle is a no-op.
func (connection *Connection) Connect(ctx context.Context) error {
	if connection.config.Addr == "" {
		return ErrAddrRequired
	}

	connection.mu.Lock()
	defer connection.mu.Unlock()

	if connection.client != nil {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         connection.config.Addr,
		Password:     connection.config.Password,
		DB:           connection.config.DB,
		DialTimeout:  connection.config.DialTimeout,
		ReadTimeout:  connection.config.ReadTimeout,
		WriteTimeout: connection.config.WriteTimeout,
		PoolSize:     connection.config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connection.config.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return fmt.Errorf("pinging redis at %s: %w", connection.config.Addr, err)
	}

	connection.client = client

	connection.logger.Info("redis connected",
		zap.String("addr", connection.config.Addr),
		zap.Int("db", connection.config.DB))

	return nil
}

// Client returns the live client.
func (connection *Connection) Client() (*goredis.Client, error) {
	connection.mu.RLock()
	defer connection.mu.RUnlock()

	if connection.client == nil {
		return nil, ErrNotConnected
	}

	return connection.client, nil
}

// Close releases the client. The handle may be reconnected afterwards.
func (connection *Connection) Close() error {
	connection.mu.Lock()
	defer connection.mu.Unlock()

	if connection.client == nil {
		return nil
	}

	err := connection.client.Close()
	connection.client = nil

	return err
}
