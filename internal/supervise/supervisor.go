/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package supervise owns the long-lived external services the playout engine
// depends on. Every spawned process is registered in one table; shutdown
// iterates that table with a grace-then-force termination policy so no
// descendant survives the daemon on any exit path.
package supervise

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_playout/internal/events"
)

// Kind identifies what role a managed service plays.
type Kind string

const (
	KindSink           Kind = "sink"
	KindTransport      Kind = "transport"
	KindSupervisor     Kind = "supervisor"
	KindControlChannel Kind = "control_channel"
)

// Health is the probed liveness of a service.
type Health string

const (
	HealthUnknown Health = "unknown"
	HealthHealthy Health = "healthy"
	HealthDead    Health = "dead"
)

// ErrStartup indicates a service exited within its grace window.
var ErrStartup = errors.New("service startup failure")

const (
	defaultGraceWindow = 2 * time.Second
	shutdownGrace      = 5 * time.Second

	restartAttempts = 3
	restartBackoff  = time.Second

	// Restart rate limit: giving up beats flapping forever.
	maxRestartsInWindow = 5
	restartWindow       = 5 * time.Minute
)

// Handle is the supervisor's view of one managed process.
type Handle struct {
	ID   string
	Spec Spec
	PID  int

	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	health  Health
	exitErr error

	restartCount int
	lastRestart  time.Time
}

// Done exposes the process exit notification.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Health returns the last observed health.
func (h *Handle) Health() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.health
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Restart describes one restart performed by CheckAll.
type Restart struct {
	Name string
	Kind Kind
}

// Publisher is the observability sink for supervisor events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Supervisor starts, health-checks, and restarts managed services.
type Supervisor struct {
	logger zerolog.Logger
	pub    Publisher

	mu    sync.Mutex
	table map[string]*Handle
}

// New creates a supervisor with an empty process table.
func New(pub Publisher, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		logger: logger.With().Str("component", "supervise").Logger(),
		pub:    pub,
		table:  make(map[string]*Handle),
	}
}

// Start launches one service and registers it. It fails with ErrStartup if
// the process exits within its grace window.
func (s *Supervisor) Start(spec Spec) (*Handle, error) {
	handle, err := s.spawn(spec)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.table[spec.Name] = handle
	s.mu.Unlock()

	return handle, nil
}

func (s *Supervisor) spawn(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStartup, spec.Name, err)
	}

	handle := &Handle{
		ID:     uuid.NewString(),
		Spec:   spec,
		PID:    cmd.Process.Pid,
		cmd:    cmd,
		done:   make(chan struct{}),
		health: HealthUnknown,
	}

	go func() {
		err := cmd.Wait()
		handle.mu.Lock()
		handle.exitErr = err
		handle.health = HealthDead
		handle.mu.Unlock()
		close(handle.done)
	}()

	grace := time.Duration(spec.GraceWindow)
	if grace <= 0 {
		grace = defaultGraceWindow
	}

	select {
	case <-handle.done:
		return nil, fmt.Errorf("%w: %s exited within grace window: %v", ErrStartup, spec.Name, handle.exitErr)
	case <-time.After(grace):
	}

	handle.mu.Lock()
	handle.health = HealthHealthy
	handle.mu.Unlock()

	s.logger.Info().
		Str("service", spec.Name).
		Str("kind", string(spec.Kind)).
		Int("pid", handle.PID).
		Msg("service started")
	return handle, nil
}

// StartAll launches every spec. An essential service that fails to start is
// an error; a non-essential one degrades with a warning.
func (s *Supervisor) StartAll(specs []Spec) error {
	for _, spec := range specs {
		if _, err := s.Start(spec); err != nil {
			if spec.Essential {
				return err
			}
			s.logger.Warn().Err(err).Str("service", spec.Name).Msg("non-essential service failed to start, continuing degraded")
		}
	}
	return nil
}

// IsHealthy probes one handle. Probing a healthy service has no side
// effects.
func (s *Supervisor) IsHealthy(h *Handle) bool {
	if h == nil {
		return false
	}
	if h.exited() {
		return false
	}
	return h.Health() == HealthHealthy
}

// Handle returns the current handle for a service name.
func (s *Supervisor) Handle(name string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.table[name]
	return h, ok
}

// CheckAll probes every registered service once and restarts dead ones. It
// returns the restarts performed; an essential service that cannot be
// restarted yields an error, which the engine escalates to termination.
func (s *Supervisor) CheckAll() ([]Restart, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.table))
	for name := range s.table {
		names = append(names, name)
	}
	s.mu.Unlock()

	var restarts []Restart
	for _, name := range names {
		handle, ok := s.Handle(name)
		if !ok {
			continue
		}
		if s.IsHealthy(handle) {
			continue
		}

		s.logger.Warn().
			Str("service", name).
			Int("pid", handle.PID).
			Msg("service dead, restarting")

		replacement, err := s.Restart(name)
		if err != nil {
			if handle.Spec.Essential {
				return restarts, fmt.Errorf("essential service %s could not be restarted: %w", name, err)
			}
			s.logger.Warn().Err(err).Str("service", name).Msg("non-essential service restart failed")
			continue
		}

		restarts = append(restarts, Restart{Name: name, Kind: replacement.Spec.Kind})
		if s.pub != nil {
			s.pub.Publish(events.EventServiceRestarted, events.Payload{
				"service": name,
				"kind":    string(replacement.Spec.Kind),
				"pid":     replacement.PID,
			})
		}
	}
	return restarts, nil
}

// Restart replaces a dead service with a fresh process under the same name.
// Bounded attempts with backoff, plus a rate limit across restarts so a
// crash-looping service eventually fails hard instead of flapping.
func (s *Supervisor) Restart(name string) (*Handle, error) {
	s.mu.Lock()
	old, ok := s.table[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown service %s", name)
	}

	if old.restartCount >= maxRestartsInWindow && time.Since(old.lastRestart) < restartWindow {
		return nil, fmt.Errorf("service %s exceeded restart rate limit (%d in %v)", name, old.restartCount, restartWindow)
	}
	if time.Since(old.lastRestart) >= restartWindow {
		old.restartCount = 0
	}

	s.terminate(old)

	var lastErr error
	for attempt := 1; attempt <= restartAttempts; attempt++ {
		replacement, err := s.spawn(old.Spec)
		if err == nil {
			replacement.restartCount = old.restartCount + 1
			replacement.lastRestart = time.Now()
			s.mu.Lock()
			s.table[name] = replacement
			s.mu.Unlock()
			return replacement, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Str("service", name).Int("attempt", attempt).Msg("restart attempt failed")
		time.Sleep(restartBackoff)
	}
	return nil, lastErr
}

// Shutdown terminates every registered service: SIGTERM, bounded wait, then
// SIGKILL. The table is cleared afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.table))
	for _, h := range s.table {
		handles = append(handles, h)
	}
	s.table = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range handles {
		s.terminate(h)
	}
	s.logger.Info().Int("services", len(handles)).Msg("supervisor shutdown complete")
}

func (s *Supervisor) terminate(h *Handle) {
	if h.exited() {
		return
	}

	_ = h.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-h.done:
		return
	case <-time.After(shutdownGrace):
	}

	s.logger.Warn().Str("service", h.Spec.Name).Int("pid", h.PID).Msg("service ignored SIGTERM, killing")
	_ = h.cmd.Process.Kill()
	<-h.done
}
