/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/skald_playout/internal/catalog"
	"github.com/friendsincode/skald_playout/internal/config"
	"github.com/friendsincode/skald_playout/internal/decode"
	"github.com/friendsincode/skald_playout/internal/engine"
	"github.com/friendsincode/skald_playout/internal/eventbus"
	"github.com/friendsincode/skald_playout/internal/events"
	"github.com/friendsincode/skald_playout/internal/fetch"
	"github.com/friendsincode/skald_playout/internal/logging"
	"github.com/friendsincode/skald_playout/internal/pcm"
	"github.com/friendsincode/skald_playout/internal/probe"
	"github.com/friendsincode/skald_playout/internal/publish"
	"github.com/friendsincode/skald_playout/internal/supervise"
	"github.com/friendsincode/skald_playout/internal/telemetry"
	"github.com/friendsincode/skald_playout/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skaldplayout",
	Short: "Skald Playout - Continuous internet-radio playout daemon",
	Long:  "Skald Playout keeps one Icecast mount fed around the clock: it selects random tracks from a catalog snapshot, fetches and decodes them to canonical PCM, and streams them over a single persistent encoder connection.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playout daemon",
	Long:  "Start the playout loop, the supervised sidecar services, and the metrics listener",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skaldplayout %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newBus builds the configured observability backend, falling back to the
// in-memory bus when the broker is unreachable. Publishing is fire-and-forget
// everywhere, so a degraded bus never blocks playout.
func newBus(core *events.Bus, bootLog zerolog.Logger) eventbus.Publisher {
	switch cfg.BusBackend {
	case config.BusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		bus, err := eventbus.NewNATSBus(natsCfg, core, bootLog)
		if err != nil {
			bootLog.Warn().Err(err).Msg("NATS bus unavailable, using in-memory bus")
			return eventbus.NewMemoryBus(core)
		}
		return bus
	case config.BusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		bus, err := eventbus.NewRedisBus(redisCfg, core, bootLog)
		if err != nil {
			bootLog.Warn().Err(err).Msg("redis bus unavailable, using in-memory bus")
			return eventbus.NewMemoryBus(core)
		}
		return bus
	default:
		return eventbus.NewMemoryBus(core)
	}
}

func newFetcher(ctx context.Context) (fetch.Fetcher, error) {
	switch cfg.FetchBackend {
	case config.FetchS3:
		return fetch.NewS3Fetcher(ctx, fetch.S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	case config.FetchHTTP:
		return fetch.NewHTTPFetcher(cfg.FetchHTTPBase, logger), nil
	case config.FetchFile:
		return fetch.NewFileFetcher(cfg.FetchFileRoot, logger), nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.FetchBackend)
	}
}

func sinkStateValue(s publish.State) float64 {
	switch s {
	case publish.StateStarting:
		return 0
	case publish.StateReady:
		return 1
	case publish.StateStreaming:
		return 2
	case publish.StateIdle:
		return 3
	default:
		return 4
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The core bus always exists so the log relay and health snapshots have
	// local subscribers even without a broker.
	core := events.NewBus()
	bootLog := logging.Setup(cfg.Environment)
	bus := newBus(core, bootLog)
	defer func() { _ = bus.Close() }()

	logger = logging.SetupWithWriter(cfg.Environment, eventbus.NewLogWriter(bus))
	logger.Info().Str("version", version.Version).Msg("Skald Playout starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "skald-playout",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = store.Close() }()

	fetcher, err := newFetcher(ctx)
	if err != nil {
		return fmt.Errorf("initialize fetcher: %w", err)
	}
	fetchSvc := fetch.NewService(fetcher, cfg.FetchTimeout, logger)

	supervisor := supervise.New(bus, logger)
	if cfg.ServicesPath != "" {
		specs, err := supervise.LoadSpecs(cfg.ServicesPath)
		if err != nil {
			return fmt.Errorf("load service specs: %w", err)
		}
		if err := supervisor.StartAll(specs); err != nil {
			return fmt.Errorf("start supervised services: %w", err)
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		supervisor.Shutdown(shutdownCtx)
	}()

	publisher := publish.New(publish.Config{
		FFmpegBin:  cfg.FFmpegBin,
		Format:     pcm.Canonical,
		Bitrate:    cfg.StreamBitrate,
		OutputURL:  cfg.IcecastURL(),
		StreamName: cfg.StreamName,
		Genre:      cfg.StreamGenre,
		FifoPath:   cfg.PCMFifoPath,
	}, logger)
	if err := publisher.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	defer func() {
		if err := publisher.Stop(); err != nil {
			logger.Error().Err(err).Msg("encoder shutdown failed")
		}
	}()

	metricsSrv := telemetry.NewServer(cfg.MetricsBind, func() (bool, map[string]any) {
		state := publisher.State()
		return publisher.Healthy(), map[string]any{"sink_state": string(state)}
	}, logger)
	go func() {
		if err := metricsSrv.Start(); err != nil {
			logger.Error().Err(err).Msg("metrics listener error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	// Periodic health snapshot on the observability channel.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := publisher.State()
				telemetry.SinkState.Set(sinkStateValue(state))
				bus.Publish(events.EventHealth, events.Payload{
					"sink_state": string(state),
					"status":     "running",
				})
			}
		}
	}()

	sniffer := probe.NewSniffer(cfg.FFprobeBin, logger)
	decoder := decode.New(cfg.FFmpegBin, pcm.Canonical, true, bus, logger)

	eng := engine.New(engine.Options{
		ScratchDir:        cfg.ScratchDir,
		FailureCeiling:    cfg.FailureCeiling,
		InterCycleDelay:   cfg.InterCycleDelay,
		SelectionBackoff:  cfg.SelectionBackoff,
		FetchRetryBackoff: cfg.FetchRetryBackoff,
	}, store, engine.NewServiceFetcher(fetchSvc), sniffer, decoder, publisher, supervisor, bus, logger)

	err = eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("playout engine terminated")
		return err
	}

	logger.Info().Msg("Skald Playout stopped")
	return nil
}
