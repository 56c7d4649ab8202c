/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_playout/internal/events"
)

// subjectPrefix is prepended to every event type to form the NATS subject.
const subjectPrefix = "skald.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus implements a NATS-backed event publisher.
// Falls back to the in-memory bus when the connection is down so local
// subscribers (log relay, health snapshots) keep working.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string
}

// NewNATSBus connects to NATS and returns a publisher.
func NewNATSBus(cfg NATSConfig, fallback *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("skald-playout"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	return &NATSBus{
		conn:     conn,
		logger:   logger.With().Str("component", "nats-bus").Logger(),
		fallback: fallback,
		nodeID:   generateNodeID(),
	}, nil
}

// Publish sends an event to the NATS subject for its type. Failures are
// logged and dropped.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	if nb.fallback != nil {
		nb.fallback.Publish(eventType, payload)
	}

	data, err := marshalBusMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("marshal event failed")
		return
	}

	subject := subjectPrefix + string(eventType)
	if err := nb.conn.Publish(subject, data); err != nil {
		nb.logger.Debug().Err(err).Str("subject", subject).Msg("nats publish failed")
	}
}

// Close flushes and closes the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Flush(); err != nil {
		nb.logger.Debug().Err(err).Msg("nats flush failed during close")
	}
	nb.conn.Close()
	return nil
}
