/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_playout/internal/events"
)

// RedisBus implements a Redis-backed event publisher with a circuit breaker:
// after repeated publish failures it stops hitting Redis and relies on the
// in-memory fallback until the next probe interval.
type RedisBus struct {
	client   *redis.Client
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int
	checkEvery  time.Duration
	lastCheck   time.Time
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event publisher.
func NewRedisBus(cfg RedisConfig, fallback *events.Bus, logger zerolog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBus{
		client:     client,
		logger:     logger.With().Str("component", "redis-bus").Logger(),
		fallback:   fallback,
		nodeID:     generateNodeID(),
		maxFails:   cfg.MaxFailures,
		checkEvery: cfg.CheckInterval,
	}

	// Initial reachability probe. An unreachable broker is not fatal; the
	// circuit opens and the fallback carries local subscribers.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("redis unreachable at startup, using fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
	}

	return rb, nil
}

// Publish sends the event to the Redis channel for its type.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	if rb.fallback != nil {
		rb.fallback.Publish(eventType, payload)
	}

	if rb.circuitOpen() {
		return
	}

	data, err := marshalBusMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("marshal event failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	channel := subjectPrefix + string(eventType)
	if err := rb.client.Publish(ctx, channel, data).Err(); err != nil {
		rb.recordFailure(err, channel)
		return
	}
	rb.recordSuccess()
}

// Close closes the Redis client.
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

// circuitOpen reports whether publishes should skip Redis, re-probing after
// the check interval has elapsed.
func (rb *RedisBus) circuitOpen() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.useFallback {
		return false
	}
	if time.Since(rb.lastCheck) < rb.checkEvery {
		return true
	}

	rb.lastCheck = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rb.client.Ping(ctx).Err(); err != nil {
		return true
	}

	rb.logger.Info().Msg("redis reachable again, closing circuit")
	rb.useFallback = false
	rb.failCount = 0
	return false
}

func (rb *RedisBus) recordFailure(err error, channel string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.failCount++
	rb.logger.Debug().Err(err).Str("channel", channel).Int("fail_count", rb.failCount).Msg("redis publish failed")

	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.useFallback = true
		rb.lastCheck = time.Now()
		rb.logger.Warn().Int("failures", rb.failCount).Msg("redis circuit opened, using fallback")
	}
}

func (rb *RedisBus) recordSuccess() {
	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}
