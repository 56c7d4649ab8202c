/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package pcm

import (
	"encoding/binary"
	"io"
	"math"
)

// Fixed normalizer constants. These are implementation-tunable, not part of
// the engine contract.
const (
	// normWindow is the analysis window length.
	normWindow = 400 // milliseconds

	// normTargetDB is the target RMS level in dBFS.
	normTargetDB = -20.0

	// normMaxGainDB bounds upward gain so near-silent passages are not
	// blown up into noise.
	normMaxGainDB = 12.0

	// normHeadroomDB keeps peaks below full scale after gain.
	normHeadroomDB = 1.0

	// normSmoothing moves the applied gain toward the per-window target.
	// One value per window keeps level changes inaudible across a track
	// boundary without pumping within a track.
	normSmoothing = 0.15
)

// Normalizer applies windowed dynamic loudness normalization to an s16le
// stream and forwards it to the underlying writer. It is an io.Writer so the
// decoder can pipe through it transparently.
type Normalizer struct {
	out    io.Writer
	format Format

	windowBytes int
	buf         []byte
	gain        float64

	targetRMS float64
	maxGain   float64
	peakLimit float64
}

// NewNormalizer creates a normalizer writing processed PCM to out.
func NewNormalizer(out io.Writer, format Format) *Normalizer {
	n := &Normalizer{
		out:       out,
		format:    format,
		gain:      1.0,
		targetRMS: math.Pow(10, normTargetDB/20) * 32768,
		maxGain:   math.Pow(10, normMaxGainDB/20),
		peakLimit: math.Pow(10, -normHeadroomDB/20) * 32767,
	}
	n.windowBytes = format.SampleRate * normWindow / 1000 * format.FrameBytes()
	return n
}

// Write buffers PCM and processes it window by window.
func (n *Normalizer) Write(p []byte) (int, error) {
	n.buf = append(n.buf, p...)

	for len(n.buf) >= n.windowBytes {
		window := n.buf[:n.windowBytes]
		if err := n.processWindow(window); err != nil {
			return len(p), err
		}
		n.buf = n.buf[n.windowBytes:]
	}
	return len(p), nil
}

// Flush processes and forwards any buffered tail. Call once at end of track.
func (n *Normalizer) Flush() error {
	if len(n.buf) == 0 {
		return nil
	}
	// Trim to whole samples; decoders emit aligned output, this guards a
	// truncated final read.
	tail := n.buf[:len(n.buf)/2*2]
	n.buf = nil
	if len(tail) == 0 {
		return nil
	}
	return n.processWindow(tail)
}

func (n *Normalizer) processWindow(window []byte) error {
	rms := windowRMS(window)

	desired := n.gain
	if rms > 1 { // skip gain updates on silence
		desired = n.targetRMS / rms
		if desired > n.maxGain {
			desired = n.maxGain
		}
		if desired < 1/n.maxGain {
			desired = 1 / n.maxGain
		}
	}
	n.gain += normSmoothing * (desired - n.gain)

	processed := make([]byte, len(window))
	for i := 0; i+1 < len(window); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(window[i:]))) * n.gain
		if sample > n.peakLimit {
			sample = n.peakLimit
		} else if sample < -n.peakLimit {
			sample = -n.peakLimit
		}
		binary.LittleEndian.PutUint16(processed[i:], uint16(int16(sample)))
	}

	_, err := n.out.Write(processed)
	return err
}

// windowRMS computes the RMS amplitude of an s16le window.
func windowRMS(window []byte) float64 {
	if len(window) < 2 {
		return 0
	}
	var sum float64
	count := 0
	for i := 0; i+1 < len(window); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(window[i:])))
		sum += s * s
		count++
	}
	return math.Sqrt(sum / float64(count))
}
