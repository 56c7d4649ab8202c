/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package decode converts compressed audio files into the canonical PCM
// stream consumed by the publisher.
package decode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/skald_playout/internal/events"
	"github.com/friendsincode/skald_playout/internal/pcm"
	"github.com/friendsincode/skald_playout/internal/probe"
)

// Publisher is the observability sink for decoder diagnostics and metadata.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Decoder runs ffmpeg to decode one track to canonical PCM, optionally
// applying loudness normalization before the bytes reach the sink.
type Decoder struct {
	ffmpegBin string
	format    pcm.Format
	normalize bool
	pub       Publisher
	logger    zerolog.Logger
}

// New creates a decoder.
func New(ffmpegBin string, format pcm.Format, normalize bool, pub Publisher, logger zerolog.Logger) *Decoder {
	return &Decoder{
		ffmpegBin: ffmpegBin,
		format:    format,
		normalize: normalize,
		pub:       pub,
		logger:    logger.With().Str("component", "decode").Logger(),
	}
}

// BuildArgs assembles the ffmpeg invocation for a codec. Recognized codecs
// get an explicit demuxer; unknown codecs take the general transcode path
// and let ffmpeg probe the container itself.
func BuildArgs(path string, codec probe.Codec, format pcm.Format) []string {
	args := []string{"-hide_banner", "-nostats"}

	if demuxer := demuxerFor(codec); demuxer != "" {
		args = append(args, "-f", demuxer)
	}

	args = append(args,
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"pipe:1",
	)
	return args
}

func demuxerFor(codec probe.Codec) string {
	switch codec {
	case probe.CodecMP3:
		return "mp3"
	case probe.CodecAAC:
		return "aac"
	case probe.CodecOpus, probe.CodecVorbis:
		return "ogg"
	case probe.CodecFLAC:
		return "flac"
	default:
		return ""
	}
}

// Decode streams the file's audio into sink as canonical PCM. A non-zero
// decoder exit is reported as an error; the caller removes the source file
// and skips the track.
func (d *Decoder) Decode(ctx context.Context, path string, codec probe.Codec, sink io.Writer) error {
	args := BuildArgs(path, codec, d.format)
	cmd := exec.CommandContext(ctx, d.ffmpegBin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start decoder: %w", err)
	}

	d.logger.Debug().
		Int("pid", cmd.Process.Pid).
		Str("path", path).
		Str("codec", string(codec)).
		Msg("decoder started")

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		d.scanDiagnostics(path, stderr)
	}()

	var out io.Writer = sink
	var norm *pcm.Normalizer
	if d.normalize {
		norm = pcm.NewNormalizer(sink, d.format)
		out = norm
	}

	_, copyErr := io.Copy(out, stdout)

	<-stderrDone
	waitErr := cmd.Wait()

	if waitErr != nil {
		return fmt.Errorf("decode %s: %w", path, waitErr)
	}
	if copyErr != nil {
		return fmt.Errorf("stream pcm for %s: %w", path, copyErr)
	}
	if norm != nil {
		if err := norm.Flush(); err != nil {
			return fmt.Errorf("flush pcm for %s: %w", path, err)
		}
	}
	return nil
}

// ffmpeg prints embedded tags in its stderr banner:
//
//	    title           : Some Song
var tagLineRegex = regexp.MustCompile(`^\s+(\w[\w-]*)\s*:\s(.+)$`)

var publishedTags = map[string]bool{
	"title":  true,
	"artist": true,
	"album":  true,
	"genre":  true,
	"date":   true,
}

// scanDiagnostics relays the decoder's stderr to the observability channel
// and extracts embedded tags into a now-playing metadata event.
func (d *Decoder) scanDiagnostics(path string, r io.Reader) {
	tags := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		d.logger.Trace().Str("line", line).Msg("decoder output")

		if matches := tagLineRegex.FindStringSubmatch(line); matches != nil {
			key := strings.ToLower(matches[1])
			if publishedTags[key] && tags[key] == "" {
				tags[key] = strings.TrimSpace(matches[2])
			}
		}
	}

	if d.pub == nil {
		return
	}
	if len(tags) > 0 {
		payload := events.Payload{"path": path}
		for k, v := range tags {
			payload[k] = v
		}
		d.pub.Publish(events.EventNowPlaying, payload)
	}
}
