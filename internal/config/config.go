/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fetch backend selection.
type FetchBackend string

const (
	FetchS3   FetchBackend = "s3"
	FetchHTTP FetchBackend = "http"
	FetchFile FetchBackend = "file"
)

// Event bus backend selection.
type BusBackend string

const (
	BusMemory BusBackend = "memory"
	BusNATS   BusBackend = "nats"
	BusRedis  BusBackend = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	InstanceID  string

	// Catalog snapshot (read-only SQLite file downloaded at startup)
	CatalogPath string

	// Scratch directory for in-progress tracks (cleared at startup)
	ScratchDir string

	// Fetch configuration
	FetchBackend  FetchBackend
	FetchTimeout  time.Duration
	FetchHTTPBase string // Base URL prepended to locators (http backend)
	FetchFileRoot string // Root directory for locators (file backend)

	// S3 object storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// External binaries
	FFmpegBin  string
	FFprobeBin string

	// Icecast sink configuration
	IcecastHost           string
	IcecastPort           int
	IcecastMount          string // Mount point (e.g., "/stream.mp3")
	IcecastSourceUser     string
	IcecastSourcePassword string
	StreamName            string
	StreamGenre           string
	StreamBitrate         int // kbps

	// PCM handoff. Empty means the encoder's stdin pipe; a path enables the
	// named-pipe interop mode with two-phase reader-then-writer open.
	PCMFifoPath string

	// Observability channel
	BusBackend    BusBackend
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Metrics / health endpoint
	MetricsBind string

	// Supervised sidecar service declarations (YAML file, optional)
	ServicesPath string

	// Failure policy
	FailureCeiling    int
	InterCycleDelay   time.Duration
	SelectionBackoff  time.Duration
	FetchRetryBackoff time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SKALD_ENV"}, "development"),
		InstanceID:  getEnvAny([]string{"SKALD_INSTANCE_ID"}, ""),

		CatalogPath: getEnvAny([]string{"SKALD_CATALOG_PATH"}, ""),
		ScratchDir:  getEnvAny([]string{"SKALD_SCRATCH_DIR"}, "/tmp/skald"),

		FetchBackend:  FetchBackend(getEnvAny([]string{"SKALD_FETCH_BACKEND"}, string(FetchS3))),
		FetchTimeout:  getEnvDurationAny([]string{"SKALD_FETCH_TIMEOUT"}, 120*time.Second),
		FetchHTTPBase: getEnvAny([]string{"SKALD_FETCH_HTTP_BASE"}, ""),
		FetchFileRoot: getEnvAny([]string{"SKALD_FETCH_FILE_ROOT"}, ""),

		S3AccessKeyID:     getEnvAny([]string{"SKALD_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SKALD_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SKALD_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SKALD_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SKALD_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SKALD_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		FFmpegBin:  getEnvAny([]string{"SKALD_FFMPEG_BIN"}, "ffmpeg"),
		FFprobeBin: getEnvAny([]string{"SKALD_FFPROBE_BIN"}, "ffprobe"),

		IcecastHost:           getEnvAny([]string{"SKALD_ICECAST_HOST", "ICECAST_HOST"}, "127.0.0.1"),
		IcecastPort:           getEnvIntAny([]string{"SKALD_ICECAST_PORT", "ICECAST_PORT"}, 8000),
		IcecastMount:          getEnvAny([]string{"SKALD_ICECAST_MOUNT", "ICECAST_MOUNT"}, "/stream.mp3"),
		IcecastSourceUser:     getEnvAny([]string{"SKALD_ICECAST_SOURCE_USER"}, "source"),
		IcecastSourcePassword: getEnvAny([]string{"SKALD_ICECAST_SOURCE_PASSWORD", "ICECAST_SOURCE_PASSWORD"}, ""),
		StreamName:            getEnvAny([]string{"SKALD_STREAM_NAME"}, "Skald Playout"),
		StreamGenre:           getEnvAny([]string{"SKALD_STREAM_GENRE"}, "various"),
		StreamBitrate:         getEnvIntAny([]string{"SKALD_STREAM_BITRATE"}, 128),

		PCMFifoPath: getEnvAny([]string{"SKALD_PCM_FIFO"}, ""),

		BusBackend:    BusBackend(getEnvAny([]string{"SKALD_BUS_BACKEND"}, string(BusMemory))),
		NATSURL:       getEnvAny([]string{"SKALD_NATS_URL"}, "nats://localhost:4222"),
		RedisAddr:     getEnvAny([]string{"SKALD_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SKALD_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SKALD_REDIS_DB"}, 0),

		MetricsBind: getEnvAny([]string{"SKALD_METRICS_BIND"}, "127.0.0.1:9000"),

		ServicesPath: getEnvAny([]string{"SKALD_SERVICES_PATH"}, ""),

		FailureCeiling:    getEnvIntAny([]string{"SKALD_FAILURE_CEILING"}, 5),
		InterCycleDelay:   getEnvDurationAny([]string{"SKALD_INTER_CYCLE_DELAY"}, 500*time.Millisecond),
		SelectionBackoff:  getEnvDurationAny([]string{"SKALD_SELECTION_BACKOFF"}, 3*time.Second),
		FetchRetryBackoff: getEnvDurationAny([]string{"SKALD_FETCH_RETRY_BACKOFF"}, 2*time.Second),

		TracingEnabled:    getEnvBoolAny([]string{"SKALD_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SKALD_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SKALD_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.FetchBackend != FetchS3 && cfg.FetchBackend != FetchHTTP && cfg.FetchBackend != FetchFile {
		return nil, fmt.Errorf("unsupported fetch backend %q", cfg.FetchBackend)
	}

	if cfg.BusBackend != BusMemory && cfg.BusBackend != BusNATS && cfg.BusBackend != BusRedis {
		return nil, fmt.Errorf("unsupported bus backend %q", cfg.BusBackend)
	}

	if cfg.CatalogPath == "" {
		return nil, fmt.Errorf("SKALD_CATALOG_PATH must be provided")
	}

	if cfg.FetchBackend == FetchS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("SKALD_S3_BUCKET must be provided when the s3 fetch backend is selected")
	}

	if cfg.FailureCeiling < 1 {
		return nil, fmt.Errorf("SKALD_FAILURE_CEILING must be at least 1")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.IcecastSourcePassword == "" || strings.EqualFold(cfg.IcecastSourcePassword, "hackme") {
			return nil, fmt.Errorf("SKALD_ICECAST_SOURCE_PASSWORD must be set to a non-default value in production")
		}
	}

	return cfg, nil
}

// IcecastURL returns the ffmpeg-style source URL for the configured mount.
func (c *Config) IcecastURL() string {
	mount := c.IcecastMount
	if !strings.HasPrefix(mount, "/") {
		mount = "/" + mount
	}
	return fmt.Sprintf("icecast://%s:%s@%s:%d%s",
		c.IcecastSourceUser, c.IcecastSourcePassword, c.IcecastHost, c.IcecastPort, mount)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseBool(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny returns the first set duration environment variable value from keys, or def.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
		}
	}
	return def
}
