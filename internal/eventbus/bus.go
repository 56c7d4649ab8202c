/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides topic-addressed publishers for the observability
// channel. All backends are fire-and-forget: a publish failure is logged and
// dropped, never surfaced to the playout loop.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/skald_playout/internal/events"
)

// Publisher publishes events to the observability channel.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
	Close() error
}

// MemoryBus is the in-process Publisher used when no broker is configured.
type MemoryBus struct {
	bus *events.Bus
}

// NewMemoryBus wraps an in-process bus as a Publisher.
func NewMemoryBus(bus *events.Bus) *MemoryBus {
	return &MemoryBus{bus: bus}
}

// Publish sends the event to in-process subscribers.
func (mb *MemoryBus) Publish(eventType events.EventType, payload events.Payload) {
	mb.bus.Publish(eventType, payload)
}

// Close is a no-op for the in-memory bus.
func (mb *MemoryBus) Close() error { return nil }

// busMessage is the wire format shared by the NATS and Redis backends.
type busMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

// marshalBusMessage converts a payload to the wire format.
func marshalBusMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := busMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

// unmarshalBusMessage parses a wire message.
func unmarshalBusMessage(data []byte) (*busMessage, error) {
	var msg busMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "skald"
	}
	return host + "-" + uuid.NewString()[:8]
}
