/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package decode

import (
	"strings"
	"testing"

	"github.com/friendsincode/skald_playout/internal/pcm"
	"github.com/friendsincode/skald_playout/internal/probe"
)

func TestBuildArgsMP3(t *testing.T) {
	args := BuildArgs("/scratch/track.bin", probe.CodecMP3, pcm.Canonical)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-f mp3 -i /scratch/track.bin") {
		t.Errorf("args missing mp3 demuxer before input: %s", joined)
	}
	if !strings.Contains(joined, "-acodec pcm_s16le") {
		t.Errorf("args missing pcm_s16le output codec: %s", joined)
	}
	if !strings.Contains(joined, "-ar 48000") || !strings.Contains(joined, "-ac 2") {
		t.Errorf("args missing canonical rate/channels: %s", joined)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
}

func TestBuildArgsDemuxerSelection(t *testing.T) {
	tests := []struct {
		codec   probe.Codec
		demuxer string
	}{
		{probe.CodecMP3, "mp3"},
		{probe.CodecAAC, "aac"},
		{probe.CodecOpus, "ogg"},
		{probe.CodecVorbis, "ogg"},
		{probe.CodecFLAC, "flac"},
	}

	for _, tt := range tests {
		args := BuildArgs("/x", tt.codec, pcm.Canonical)
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-f "+tt.demuxer+" -i ") {
			t.Errorf("codec %s: args missing -f %s: %s", tt.codec, tt.demuxer, joined)
		}
	}
}

func TestBuildArgsUnknownCodecOmitsDemuxer(t *testing.T) {
	args := BuildArgs("/x", probe.CodecUnknown, pcm.Canonical)

	// The general transcode path must let ffmpeg probe the container: no
	// -f before -i.
	for i, a := range args {
		if a == "-i" {
			if i >= 2 && args[i-2] == "-f" {
				t.Errorf("unknown codec got an input demuxer: %v", args)
			}
			return
		}
	}
	t.Fatalf("no -i in args: %v", args)
}

func TestTagLineRegex(t *testing.T) {
	tests := []struct {
		line      string
		wantKey   string
		wantValue string
	}{
		{"    title           : Night Drive", "title", "Night Drive"},
		{"    artist          : Some Band", "artist", "Some Band"},
		{"  Duration: 00:03:42.11, start: 0.0", "", ""},
		{"Output #0, s16le, to 'pipe:1':", "", ""},
	}

	for _, tt := range tests {
		matches := tagLineRegex.FindStringSubmatch(tt.line)
		if tt.wantKey == "" {
			if matches != nil && publishedTags[strings.ToLower(matches[1])] {
				t.Errorf("line %q unexpectedly matched tag %q", tt.line, matches[1])
			}
			continue
		}
		if matches == nil {
			t.Errorf("line %q did not match", tt.line)
			continue
		}
		if strings.ToLower(matches[1]) != tt.wantKey {
			t.Errorf("line %q: key = %q, want %q", tt.line, matches[1], tt.wantKey)
		}
		if strings.TrimSpace(matches[2]) != tt.wantValue {
			t.Errorf("line %q: value = %q, want %q", tt.line, matches[2], tt.wantValue)
		}
	}
}
