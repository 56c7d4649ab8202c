/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package fetch retrieves remote tracks into local scratch storage.
//
// All backends share one contract: on success exactly one file exists at the
// destination path; on failure nothing does. Downloads go to a ".part" file
// first and are renamed into place so a crashed fetch never leaves a
// half-written track that looks complete.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies a fetch failure. The engine treats all kinds identically
// (skip the track); they must be distinguishable in logs.
type Kind string

const (
	NetworkFailure     Kind = "network_failure"
	NotFound           Kind = "not_found"
	QuotaOrAuthFailure Kind = "quota_or_auth_failure"
)

// Error is a classified fetch failure.
type Error struct {
	Kind    Kind
	Locator string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Locator, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves one remote track to a local destination.
type Fetcher interface {
	Fetch(ctx context.Context, locator, dest string) error
}

// Service wraps a Fetcher with synchronous and asynchronous entry points and
// a per-fetch timeout.
type Service struct {
	fetcher Fetcher
	timeout time.Duration
	logger  zerolog.Logger
}

// NewService creates a fetch service.
func NewService(fetcher Fetcher, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger.With().Str("component", "fetch").Logger(),
	}
}

// FetchSync retrieves the locator, blocking until done.
func (s *Service) FetchSync(ctx context.Context, locator, dest string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.fetcher.Fetch(ctx, locator, dest)
	if err != nil {
		s.logger.Warn().Err(err).Str("locator", locator).Msg("fetch failed")
		return err
	}

	s.logger.Debug().
		Str("locator", locator).
		Str("dest", dest).
		Dur("elapsed", time.Since(start)).
		Msg("fetch complete")
	return nil
}

// Job is the handle on a background fetch. Its result is observed by Wait;
// the engine never trusts the destination file before Wait has returned.
type Job struct {
	Locator string
	Dest    string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// FetchAsync starts a background fetch and returns immediately.
func (s *Service) FetchAsync(ctx context.Context, locator, dest string) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		Locator: locator,
		Dest:    dest,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(job.done)
		defer cancel()
		job.err = s.FetchSync(jobCtx, locator, dest)
	}()

	return job
}

// Wait blocks until the fetch resolves and returns its result.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Cancel abandons the fetch. Wait still reports the final outcome, and the
// backend's cleanup guarantees no partial file remains.
func (j *Job) Cancel() {
	j.cancel()
}

// writeAtomic streams body into dest via a ".part" file, removing all
// artifacts on failure.
func writeAtomic(dest string, body io.Reader) error {
	part := dest + ".part"

	f, err := os.Create(part)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(part)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return err
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return err
	}
	return nil
}
