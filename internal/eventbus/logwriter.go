/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"strings"

	"github.com/friendsincode/skald_playout/internal/events"
)

// LogWriter adapts a Publisher into an io.Writer so zerolog output is relayed
// to the observability channel. Each Write is one JSON log line.
type LogWriter struct {
	pub Publisher
}

// NewLogWriter creates a log relay writer.
func NewLogWriter(pub Publisher) *LogWriter {
	return &LogWriter{pub: pub}
}

// Write publishes the log line and always reports success; log relay must
// never fail the caller.
func (w *LogWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line != "" {
		w.pub.Publish(events.EventLogLine, events.Payload{"line": line})
	}
	return len(p), nil
}
