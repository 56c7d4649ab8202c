/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package probe classifies a local file's audio codec by inspecting embedded
// stream metadata, not the file extension.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

// Codec identifies the decode strategy for a track.
type Codec string

const (
	CodecMP3    Codec = "mp3"
	CodecAAC    Codec = "aac"
	CodecOpus   Codec = "opus"
	CodecVorbis Codec = "vorbis"
	CodecFLAC   Codec = "flac"
	// CodecUnknown selects the general-purpose transcode path.
	CodecUnknown Codec = "unknown"
)

// ErrNoAudioStream indicates the file carries no audio stream.
var ErrNoAudioStream = errors.New("no audio stream")

// Sniffer detects codecs by running ffprobe.
type Sniffer struct {
	ffprobeBin string
	logger     zerolog.Logger
}

// NewSniffer creates a format sniffer.
func NewSniffer(ffprobeBin string, logger zerolog.Logger) *Sniffer {
	return &Sniffer{
		ffprobeBin: ffprobeBin,
		logger:     logger.With().Str("component", "probe").Logger(),
	}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Tags map[string]string `json:"tags"`
	} `json:"format"`
}

// Result holds the detected codec plus any embedded tags worth publishing.
type Result struct {
	Codec Codec
	Tags  map[string]string
}

// Detect classifies the file at path.
func (s *Sniffer) Detect(ctx context.Context, path string) (Result, error) {
	cmd := exec.CommandContext(ctx, s.ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)

	raw, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	for _, stream := range out.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		codec := ClassifyCodecName(stream.CodecName)
		s.logger.Debug().
			Str("path", path).
			Str("codec_name", stream.CodecName).
			Str("codec", string(codec)).
			Msg("codec detected")
		return Result{Codec: codec, Tags: out.Format.Tags}, nil
	}

	return Result{}, fmt.Errorf("%s: %w", path, ErrNoAudioStream)
}

// ClassifyCodecName maps an ffprobe codec_name onto a decode strategy.
func ClassifyCodecName(name string) Codec {
	switch name {
	case "mp3", "mp3float":
		return CodecMP3
	case "aac", "aac_latm":
		return CodecAAC
	case "opus":
		return CodecOpus
	case "vorbis":
		return CodecVorbis
	case "flac":
		return CodecFLAC
	default:
		return CodecUnknown
	}
}
