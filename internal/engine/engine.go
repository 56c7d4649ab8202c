/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/skald_playout/internal/catalog"
	"github.com/friendsincode/skald_playout/internal/events"
	"github.com/friendsincode/skald_playout/internal/probe"
	"github.com/friendsincode/skald_playout/internal/supervise"
	"github.com/friendsincode/skald_playout/internal/telemetry"
)

// Status tracks one playout cycle's progress.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFetching  Status = "fetching"
	StatusFetched   Status = "fetched"
	StatusDecoding  Status = "decoding"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// Track is one playout cycle's audio item, from selection through streaming.
// The local file never outlives the cycle.
type Track struct {
	ID        uuid.UUID
	CatalogID int64
	Locator   string
	LocalPath string
	Codec     probe.Codec
	Status    Status
}

// ErrFailureCeiling is returned when consecutive cycle failures reach the
// configured ceiling.
var ErrFailureCeiling = errors.New("consecutive failure ceiling reached")

// Silence filler policy: short window first, then longer, bounded overall.
const (
	silenceShort   = 2 * time.Second
	silenceLong    = 8 * time.Second
	silenceCeiling = 30 * time.Second
)

// Source selects random catalog entries.
type Source interface {
	Random(ctx context.Context) (catalog.Entry, error)
}

// FetchJob is an awaitable, cancellable background fetch.
type FetchJob interface {
	Wait() error
	Cancel()
}

// Fetcher retrieves remote tracks into scratch storage.
type Fetcher interface {
	FetchSync(ctx context.Context, locator, dest string) error
	FetchAsync(ctx context.Context, locator, dest string) FetchJob
}

// Sniffer classifies a local file's audio codec.
type Sniffer interface {
	Detect(ctx context.Context, path string) (probe.Result, error)
}

// Streamer decodes one track into the sink as canonical PCM.
type Streamer interface {
	Decode(ctx context.Context, path string, codec probe.Codec, sink io.Writer) error
}

// Sink is the persistent encoder connection. Transient track failures never
// tear it down; only a dead sink process forces a reconnect.
type Sink interface {
	io.Writer
	WriteSilence(d time.Duration) error
	Healthy() bool
	Reconnect() error
}

// Checker runs the supervisor's per-iteration health pass.
type Checker interface {
	CheckAll() ([]supervise.Restart, error)
}

// Publisher is the observability sink for engine events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Options bundles the engine's tunable policy knobs.
type Options struct {
	ScratchDir        string
	FailureCeiling    int
	InterCycleDelay   time.Duration
	SelectionBackoff  time.Duration
	FetchRetryBackoff time.Duration
}

// state is the queue-of-two plus failure accounting. Owned exclusively by the
// engine goroutine; no locking needed.
type state struct {
	current  *Track
	next     *Track
	nextJob  FetchJob
	failures int
}

// Engine drives the select→fetch→decode→stream cycle.
type Engine struct {
	opts     Options
	source   Source
	fetcher  Fetcher
	sniffer  Sniffer
	streamer Streamer
	sink     Sink
	checker  Checker
	pub      Publisher
	logger   zerolog.Logger

	state state
}

// New assembles an engine from its collaborators. checker and pub may be nil.
func New(opts Options, source Source, fetcher Fetcher, sniffer Sniffer, streamer Streamer, sink Sink, checker Checker, pub Publisher, logger zerolog.Logger) *Engine {
	if opts.FailureCeiling <= 0 {
		opts.FailureCeiling = 5
	}
	if opts.InterCycleDelay <= 0 {
		opts.InterCycleDelay = 500 * time.Millisecond
	}
	if opts.SelectionBackoff <= 0 {
		opts.SelectionBackoff = 3 * time.Second
	}
	if opts.FetchRetryBackoff <= 0 {
		opts.FetchRetryBackoff = 2 * time.Second
	}
	return &Engine{
		opts:     opts,
		source:   source,
		fetcher:  fetcher,
		sniffer:  sniffer,
		streamer: streamer,
		sink:     sink,
		checker:  checker,
		pub:      pub,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Run executes the playout loop until the context is cancelled or a fatal
// condition is reached. The scratch directory is cleared on entry and all
// transient files and in-flight fetches are released on every exit path.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.clearScratch(); err != nil {
		return fmt.Errorf("clear scratch dir: %w", err)
	}
	defer e.cleanup()

	current, err := e.initialFetch(ctx)
	if err != nil {
		e.fatal(err, "initial fetch failed")
		return err
	}
	e.state.current = current

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := e.checkHealth(); err != nil {
			e.fatal(err, "essential service unrecoverable")
			return err
		}
		if e.state.failures >= e.opts.FailureCeiling {
			err := fmt.Errorf("%w: %d consecutive failures", ErrFailureCeiling, e.state.failures)
			e.fatal(err, "terminating")
			return err
		}

		if e.state.current == nil {
			if err := e.recoverCurrent(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.state.failures++
				telemetry.ConsecutiveFailures.Set(float64(e.state.failures))
				e.logger.Warn().Err(err).Int("failures", e.state.failures).Msg("no track obtainable, backing off")
				if !e.sleep(ctx, e.opts.SelectionBackoff) {
					return ctx.Err()
				}
				continue
			}
		}

		e.beginNextFetch(ctx)

		if err := e.playCurrent(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.state.failures++
			telemetry.PlayoutCyclesTotal.WithLabelValues("failed").Inc()
		} else {
			e.state.failures = 0
			telemetry.PlayoutCyclesTotal.WithLabelValues("played").Inc()
		}
		telemetry.ConsecutiveFailures.Set(float64(e.state.failures))

		e.settleNext()

		if !e.sleep(ctx, e.opts.InterCycleDelay) {
			return ctx.Err()
		}
	}
}

// initialFetch synchronously acquires the first track, retrying once after a
// short backoff.
func (e *Engine) initialFetch(ctx context.Context) (*Track, error) {
	track, err := e.selectAndFetch(ctx)
	if err == nil {
		return track, nil
	}
	e.logger.Warn().Err(err).Msg("initial fetch failed, retrying once")
	if !e.sleep(ctx, e.opts.FetchRetryBackoff) {
		return nil, ctx.Err()
	}
	track, err = e.selectAndFetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial fetch failed after retry: %w", err)
	}
	return track, nil
}

// selectAndFetch picks a random entry and downloads it synchronously.
func (e *Engine) selectAndFetch(ctx context.Context) (*Track, error) {
	track, err := e.selectTrack(ctx)
	if err != nil {
		return nil, err
	}
	track.Status = StatusFetching
	start := time.Now()
	if err := e.fetcher.FetchSync(ctx, track.Locator, track.LocalPath); err != nil {
		track.Status = StatusFailed
		telemetry.TrackFailuresTotal.WithLabelValues("fetch").Inc()
		e.publish(events.EventTrackSkipped, events.Payload{
			"track_id": track.ID.String(),
			"locator":  track.Locator,
			"stage":    "fetch",
			"error":    err.Error(),
		})
		return nil, err
	}
	telemetry.FetchDuration.Observe(time.Since(start).Seconds())
	track.Status = StatusFetched
	e.publish(events.EventTrackFetched, events.Payload{
		"track_id": track.ID.String(),
		"locator":  track.Locator,
	})
	return track, nil
}

// selectTrack samples the catalog and prepares a Track with a scratch path.
func (e *Engine) selectTrack(ctx context.Context) (*Track, error) {
	entry, err := e.source.Random(ctx)
	if err != nil {
		telemetry.TrackFailuresTotal.WithLabelValues("select").Inc()
		return nil, fmt.Errorf("select track: %w", err)
	}
	id := uuid.New()
	track := &Track{
		ID:        id,
		CatalogID: entry.ID,
		Locator:   entry.Locator,
		LocalPath: filepath.Join(e.opts.ScratchDir, id.String()+filepath.Ext(entry.Locator)),
		Status:    StatusPending,
	}
	e.logger.Debug().Str("track_id", id.String()).Str("locator", entry.Locator).Msg("track selected")
	e.publish(events.EventTrackSelected, events.Payload{
		"track_id":   id.String(),
		"catalog_id": entry.ID,
		"locator":    entry.Locator,
	})
	return track, nil
}

// beginNextFetch starts the background fetch for the next slot. At most one
// fetch is in flight at any time.
func (e *Engine) beginNextFetch(ctx context.Context) {
	if e.state.nextJob != nil {
		return
	}
	track, err := e.selectTrack(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("next-track selection failed, will retry after current")
		return
	}
	track.Status = StatusFetching
	e.state.next = track
	e.state.nextJob = e.fetcher.FetchAsync(ctx, track.Locator, track.LocalPath)
}

// playCurrent streams the current track end to end. The local file is removed
// on every exit path and the current slot is emptied.
func (e *Engine) playCurrent(ctx context.Context) error {
	track := e.state.current
	e.state.current = nil
	defer e.removeLocal(track)

	spanCtx, span := telemetry.StartSpan(ctx, "skald.engine", "playout.cycle")
	defer span.End()
	span.SetAttributes(
		attribute.String("track.id", track.ID.String()),
		attribute.String("track.locator", track.Locator),
	)

	track.Status = StatusDecoding
	result, err := e.sniffer.Detect(spanCtx, track.LocalPath)
	if err != nil {
		track.Status = StatusFailed
		telemetry.TrackFailuresTotal.WithLabelValues("probe").Inc()
		telemetry.RecordError(span, err)
		e.skipTrack(track, "probe", err)
		return err
	}
	track.Codec = result.Codec
	span.SetAttributes(attribute.String("track.codec", string(result.Codec)))

	track.Status = StatusStreaming
	e.logger.Info().
		Str("track_id", track.ID.String()).
		Str("locator", track.Locator).
		Str("codec", string(track.Codec)).
		Msg("streaming track")

	if err := e.streamer.Decode(spanCtx, track.LocalPath, track.Codec, e.sink); err != nil {
		track.Status = StatusFailed
		telemetry.TrackFailuresTotal.WithLabelValues("decode").Inc()
		telemetry.RecordError(span, err)
		e.skipTrack(track, "decode", err)
		return err
	}

	track.Status = StatusDone
	return nil
}

// settleNext awaits the in-flight fetch and promotes a confirmed next track.
// An unconfirmed next is never promoted; a failed fetch empties the slot so
// the following iteration runs the emergency path.
func (e *Engine) settleNext() {
	job := e.state.nextJob
	track := e.state.next
	e.state.nextJob = nil
	e.state.next = nil
	if job == nil {
		return
	}

	if err := job.Wait(); err != nil {
		track.Status = StatusFailed
		telemetry.TrackFailuresTotal.WithLabelValues("fetch").Inc()
		e.skipTrack(track, "fetch", err)
		return
	}
	track.Status = StatusFetched
	e.publish(events.EventTrackFetched, events.Payload{
		"track_id": track.ID.String(),
		"locator":  track.Locator,
	})
	e.state.current = track
}

// recoverCurrent performs the emergency synchronous fetch, feeding bounded
// escalating silence into the sink between attempts to keep the stream alive.
func (e *Engine) recoverCurrent(ctx context.Context) error {
	var filled time.Duration
	window := silenceShort

	for {
		track, err := e.selectAndFetch(ctx)
		if err == nil {
			e.state.current = track
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if filled+window > silenceCeiling {
			return fmt.Errorf("emergency fetch failed after %s of silence: %w", filled, err)
		}
		e.logger.Warn().Err(err).Dur("silence", window).Msg("emergency fetch failed, inserting silence")
		e.publish(events.EventSilence, events.Payload{"duration_seconds": window.Seconds()})
		if serr := e.sink.WriteSilence(window); serr != nil {
			return fmt.Errorf("silence filler: %w", serr)
		}
		telemetry.SilenceSecondsTotal.Add(window.Seconds())
		filled += window
		window = silenceLong
	}
}

// checkHealth runs the supervisor pass and revives the sink connection if its
// encoder process has died. Restart failure of anything essential is fatal.
func (e *Engine) checkHealth() error {
	if e.checker != nil {
		restarts, err := e.checker.CheckAll()
		for _, r := range restarts {
			telemetry.ServiceRestartsTotal.WithLabelValues(r.Name).Inc()
		}
		if err != nil {
			return err
		}
	}
	if !e.sink.Healthy() {
		e.logger.Warn().Msg("sink unhealthy, reconnecting")
		if err := e.sink.Reconnect(); err != nil {
			return fmt.Errorf("sink reconnect: %w", err)
		}
		telemetry.ServiceRestartsTotal.WithLabelValues("sink").Inc()
	}
	return nil
}

func (e *Engine) skipTrack(track *Track, stage string, err error) {
	e.logger.Warn().
		Err(err).
		Str("track_id", track.ID.String()).
		Str("locator", track.Locator).
		Str("stage", stage).
		Msg("track skipped")
	e.publish(events.EventTrackSkipped, events.Payload{
		"track_id": track.ID.String(),
		"locator":  track.Locator,
		"stage":    stage,
		"error":    err.Error(),
	})
	telemetry.PlayoutCyclesTotal.WithLabelValues("skipped").Inc()
}

func (e *Engine) fatal(err error, msg string) {
	e.logger.Error().Err(err).Msg(msg)
	e.publish(events.EventEngineFatal, events.Payload{"error": err.Error()})
}

func (e *Engine) publish(eventType events.EventType, payload events.Payload) {
	if e.pub != nil {
		e.pub.Publish(eventType, payload)
	}
}

// sleep waits the given duration or until cancellation. Returns false when the
// context ended first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (e *Engine) removeLocal(track *Track) {
	if track == nil || track.LocalPath == "" {
		return
	}
	if err := os.Remove(track.LocalPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warn().Err(err).Str("path", track.LocalPath).Msg("failed to remove scratch file")
	}
}

// clearScratch empties and recreates the scratch directory.
func (e *Engine) clearScratch() error {
	if e.opts.ScratchDir == "" {
		return errors.New("scratch dir not configured")
	}
	if err := os.RemoveAll(e.opts.ScratchDir); err != nil {
		return err
	}
	return os.MkdirAll(e.opts.ScratchDir, 0o755)
}

// cleanup abandons the in-flight fetch and removes transient files. Runs on
// every Run exit path.
func (e *Engine) cleanup() {
	if e.state.nextJob != nil {
		e.state.nextJob.Cancel()
		_ = e.state.nextJob.Wait()
		e.state.nextJob = nil
	}
	e.removeLocal(e.state.current)
	e.removeLocal(e.state.next)
	e.state.current = nil
	e.state.next = nil
	if err := os.RemoveAll(e.opts.ScratchDir); err != nil {
		e.logger.Warn().Err(err).Msg("failed to clear scratch dir on shutdown")
	}
}
