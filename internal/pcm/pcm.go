/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pcm defines the canonical raw audio contract shared by the decode
// and publish stages, and the in-process loudness normalizer applied between
// them.
package pcm

import (
	"io"
	"time"
)

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the engine-wide PCM contract. Every decoded track is forced
// to this format before it reaches the encoder.
var Canonical = Format{SampleRate: 48000, Channels: 2}

// FrameBytes returns the byte size of one frame (one sample per channel).
func (f Format) FrameBytes() int {
	return f.Channels * 2
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameBytes()
}

// BytesFor returns the frame-aligned byte count covering duration d.
func (f Format) BytesFor(d time.Duration) int {
	frames := int(d.Seconds() * float64(f.SampleRate))
	return frames * f.FrameBytes()
}

// WriteSilence writes zero-valued frames covering duration d. The write is
// chunked so a slow reader does not force a huge allocation.
func WriteSilence(w io.Writer, f Format, d time.Duration) (int64, error) {
	remaining := f.BytesFor(d)
	chunk := make([]byte, f.BytesPerSecond()/4) // 250ms chunks

	var written int64
	for remaining > 0 {
		n := len(chunk)
		if n > remaining {
			n = remaining
		}
		wrote, err := w.Write(chunk[:n])
		written += int64(wrote)
		if err != nil {
			return written, err
		}
		remaining -= wrote
	}
	return written, nil
}
