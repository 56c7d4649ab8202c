/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"

	"github.com/friendsincode/skald_playout/internal/events"
)

func TestBusMessageRoundTrip(t *testing.T) {
	data, err := marshalBusMessage(events.EventNowPlaying, events.Payload{"title": "x"}, "node-1")
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	msg, err := unmarshalBusMessage(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.EventType != events.EventNowPlaying {
		t.Errorf("event type = %q, want %q", msg.EventType, events.EventNowPlaying)
	}
	if msg.NodeID != "node-1" {
		t.Errorf("node id = %q, want node-1", msg.NodeID)
	}
	if msg.MessageID == "" {
		t.Error("message id is empty")
	}
	if msg.Payload["title"] != "x" {
		t.Errorf("payload title = %v, want x", msg.Payload["title"])
	}
}

func TestMemoryBusPublish(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventTrackSkipped)

	pub := NewMemoryBus(bus)
	pub.Publish(events.EventTrackSkipped, events.Payload{"reason": "decode"})

	got := <-sub
	if got["reason"] != "decode" {
		t.Errorf("reason = %v, want decode", got["reason"])
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestLogWriterPublishesLines(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventLogLine)

	w := NewLogWriter(NewMemoryBus(bus))
	n, err := w.Write([]byte("{\"level\":\"info\"}\n"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 17 {
		t.Errorf("n = %d, want 17", n)
	}

	got := <-sub
	if got["line"] != "{\"level\":\"info\"}" {
		t.Errorf("line = %v", got["line"])
	}
}
