/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package probe

import "testing"

func TestClassifyCodecName(t *testing.T) {
	tests := []struct {
		name string
		want Codec
	}{
		{"mp3", CodecMP3},
		{"mp3float", CodecMP3},
		{"aac", CodecAAC},
		{"opus", CodecOpus},
		{"vorbis", CodecVorbis},
		{"flac", CodecFLAC},
		{"wmav2", CodecUnknown},
		{"pcm_s16le", CodecUnknown},
		{"", CodecUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyCodecName(tt.name); got != tt.want {
			t.Errorf("ClassifyCodecName(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
