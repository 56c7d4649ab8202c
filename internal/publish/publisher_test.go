/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_playout/internal/pcm"
)

func testConfig(sink *bytes.Buffer) Config {
	return Config{
		FFmpegBin:  "ffmpeg",
		Format:     pcm.Canonical,
		Bitrate:    128,
		OutputURL:  "icecast://source:x@localhost:8000/stream.mp3",
		StreamName: "Test",
		Genre:      "various",
		TestSink:   sink,
	}
}

func TestBuildEncoderArgs(t *testing.T) {
	cfg := Config{
		FFmpegBin:  "ffmpeg",
		Format:     pcm.Canonical,
		Bitrate:    192,
		OutputURL:  "icecast://source:pw@radio:8000/live.mp3",
		StreamName: "Skald",
		Genre:      "eclectic",
	}

	joined := strings.Join(BuildEncoderArgs(cfg, "pipe:0"), " ")

	for _, want := range []string{
		"-f s16le",
		"-ar 48000",
		"-ac 2",
		"-i pipe:0",
		"-c:a libmp3lame",
		"-b:a 192k",
		"-content_type audio/mpeg",
		"icecast://source:pw@radio:8000/live.mp3",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("encoder args missing %q: %s", want, joined)
		}
	}
}

func TestBuildEncoderArgsFifoInput(t *testing.T) {
	cfg := Config{Format: pcm.Canonical, Bitrate: 128, OutputURL: "icecast://s:p@h:8000/m"}
	joined := strings.Join(BuildEncoderArgs(cfg, "/tmp/skald/pcm.fifo"), " ")
	if !strings.Contains(joined, "-i /tmp/skald/pcm.fifo") {
		t.Errorf("encoder args missing fifo input: %s", joined)
	}
}

func TestStateTransitions(t *testing.T) {
	var sink bytes.Buffer
	p := New(testConfig(&sink), zerolog.Nop())

	if p.State() != StateStarting {
		t.Errorf("initial state = %s, want %s", p.State(), StateStarting)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if p.State() != StateReady {
		t.Errorf("state after Start = %s, want %s", p.State(), StateReady)
	}

	if _, err := p.Write(make([]byte, 4)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if p.State() != StateStreaming {
		t.Errorf("state after Write = %s, want %s", p.State(), StateStreaming)
	}

	if err := p.WriteSilence(10 * time.Millisecond); err != nil {
		t.Fatalf("WriteSilence failed: %v", err)
	}
	if p.State() != StateIdle {
		t.Errorf("state after WriteSilence = %s, want %s", p.State(), StateIdle)
	}

	// Streaming resumes from Idle on the next track write.
	if _, err := p.Write(make([]byte, 4)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if p.State() != StateStreaming {
		t.Errorf("state after resume Write = %s, want %s", p.State(), StateStreaming)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state after Stop = %s, want %s", p.State(), StateStopped)
	}
}

func TestStartTwiceFails(t *testing.T) {
	var sink bytes.Buffer
	p := New(testConfig(&sink), zerolog.Nop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(); err == nil {
		t.Fatal("second Start succeeded")
	}
}

func TestWriteSilenceProducesZeroFrames(t *testing.T) {
	var sink bytes.Buffer
	p := New(testConfig(&sink), zerolog.Nop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.WriteSilence(100 * time.Millisecond); err != nil {
		t.Fatalf("WriteSilence failed: %v", err)
	}

	want := pcm.Canonical.BytesFor(100 * time.Millisecond)
	if sink.Len() != want {
		t.Errorf("silence bytes = %d, want %d", sink.Len(), want)
	}
	for i, b := range sink.Bytes() {
		if b != 0 {
			t.Fatalf("non-zero silence byte at %d", i)
		}
	}
}

func TestWriteAfterStopFails(t *testing.T) {
	var sink bytes.Buffer
	p := New(testConfig(&sink), zerolog.Nop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, err := p.Write(make([]byte, 4)); err == nil {
		t.Error("Write after Stop succeeded")
	}
	if err := p.WriteSilence(time.Millisecond); err == nil {
		t.Error("WriteSilence after Stop succeeded")
	}
}

func TestTransientFailureKeepsPublisherAlive(t *testing.T) {
	var sink bytes.Buffer
	p := New(testConfig(&sink), zerolog.Nop())

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A decode failure is the caller's concern: the publisher stays
	// healthy and keeps accepting silence.
	if !p.Healthy() {
		t.Fatal("publisher unhealthy after start")
	}
	if err := p.WriteSilence(time.Millisecond); err != nil {
		t.Fatalf("WriteSilence failed: %v", err)
	}
	if !p.Healthy() {
		t.Error("publisher unhealthy after silence gap")
	}
}
