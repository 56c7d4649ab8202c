/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package supervise

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// sleepSpec runs a process that stays alive long enough for the test.
func sleepSpec(name string, essential bool) Spec {
	return Spec{
		Name:        name,
		Kind:        KindSink,
		Command:     "sleep",
		Args:        []string{"60"},
		Essential:   essential,
		GraceWindow: Duration(50 * time.Millisecond),
	}
}

func TestStartAndHealth(t *testing.T) {
	s := New(nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	h, err := s.Start(sleepSpec("sink", true))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h.PID == 0 {
		t.Error("handle has no pid")
	}
	if !s.IsHealthy(h) {
		t.Error("fresh service reported unhealthy")
	}
}

func TestStartFailsWithinGraceWindow(t *testing.T) {
	s := New(nil, zerolog.Nop())

	_, err := s.Start(Spec{
		Name:        "crashy",
		Kind:        KindTransport,
		Command:     "false",
		GraceWindow: Duration(200 * time.Millisecond),
	})
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("err = %v, want ErrStartup", err)
	}
}

func TestHealthCheckIdempotentOnHealthyService(t *testing.T) {
	s := New(nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	h, err := s.Start(sleepSpec("sink", true))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pid := h.PID

	restarts, err := s.CheckAll()
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(restarts) != 0 {
		t.Errorf("CheckAll restarted %d healthy services", len(restarts))
	}

	after, _ := s.Handle("sink")
	if after.PID != pid {
		t.Errorf("pid changed from %d to %d on healthy check", pid, after.PID)
	}
}

func TestCheckAllRestartsDeadService(t *testing.T) {
	s := New(nil, zerolog.Nop())
	defer s.Shutdown(context.Background())

	h, err := s.Start(sleepSpec("sink", true))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	oldPID := h.PID

	// Kill the process externally and wait for the exit notification.
	if err := syscall.Kill(oldPID, syscall.SIGKILL); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exit notification never arrived")
	}

	restarts, err := s.CheckAll()
	if err != nil {
		t.Fatalf("CheckAll failed: %v", err)
	}
	if len(restarts) != 1 || restarts[0].Name != "sink" {
		t.Fatalf("restarts = %+v, want one for sink", restarts)
	}

	replacement, _ := s.Handle("sink")
	if replacement.PID == oldPID {
		t.Error("restart did not produce a new process")
	}
	if !s.IsHealthy(replacement) {
		t.Error("restarted service unhealthy")
	}
}

func TestShutdownTerminatesEverything(t *testing.T) {
	s := New(nil, zerolog.Nop())

	h1, err := s.Start(sleepSpec("sink", true))
	if err != nil {
		t.Fatalf("Start sink: %v", err)
	}
	h2, err := s.Start(sleepSpec("transport", false))
	if err != nil {
		t.Fatalf("Start transport: %v", err)
	}

	s.Shutdown(context.Background())

	for _, h := range []*Handle{h1, h2} {
		select {
		case <-h.Done():
		case <-time.After(time.Second):
			t.Errorf("service %s still running after Shutdown", h.Spec.Name)
		}
	}

	if _, ok := s.Handle("sink"); ok {
		t.Error("table not cleared after Shutdown")
	}
}

func TestLoadSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := `services:
  - name: icecast
    kind: sink
    command: icecast
    args: ["-c", "/etc/icecast.xml"]
    essential: true
    grace_window: 2s
  - name: log-relay
    kind: control_channel
    command: nats-server
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadSpecs(path)
	if err != nil {
		t.Fatalf("LoadSpecs failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Kind != KindSink || !specs[0].Essential {
		t.Errorf("sink spec = %+v", specs[0])
	}
	if specs[1].GraceWindow != 0 {
		t.Errorf("grace window = %v, want 0 (default applied at start)", specs[1].GraceWindow)
	}
}

func TestLoadSpecsRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := `services:
  - name: mystery
    kind: blender
    command: blend
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSpecs(path); err == nil {
		t.Fatal("LoadSpecs accepted unknown kind")
	}
}
