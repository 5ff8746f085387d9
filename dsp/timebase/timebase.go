// Package timebase converts between sample positions, wall-clock time and
// musical beats, and tracks the current playback position.
package timebase

import (
	"fmt"
	"math"
	"sync/atomic"
)

// TimeBase is the conversion service consumed by automation events and
// tempo-synced effects.
type TimeBase interface {
	SampleRate() float64
	SamplesToMillis(samples int64) float64
	SamplesToSeconds(samples int64) float64
	MillisToSamples(ms float64) float64
	BeatsToSamples(beats float64) float64
	BeatsToSeconds(beats float64) float64
	Position() int64
}

const (
	DefaultTempo = 120.0
	minTempo     = 1.0
)

// Clock is a TimeBase with a fixed sample rate and a tempo that may change
// while playing. Tempo and position are safe for concurrent use.
type Clock struct {
	sampleRate float64
	tempoBits  atomic.Uint64
	position   atomic.Int64
}

var _ TimeBase = (*Clock)(nil)

// NewClock creates a clock at sampleRate Hz and bpm beats per minute.
func NewClock(sampleRate, bpm float64) (*Clock, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("timebase: sample rate must be > 0: %f", sampleRate)
	}
	c := &Clock{sampleRate: sampleRate}
	if err := c.SetTempo(bpm); err != nil {
		return nil, err
	}
	return c, nil
}

// SampleRate returns the sample rate in Hz.
func (c *Clock) SampleRate() float64 { return c.sampleRate }

// Tempo returns the tempo in beats per minute.
func (c *Clock) Tempo() float64 {
	return math.Float64frombits(c.tempoBits.Load())
}

// SetTempo sets the tempo in beats per minute.
func (c *Clock) SetTempo(bpm float64) error {
	if bpm < minTempo || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("timebase: tempo must be >= %g bpm: %f", minTempo, bpm)
	}
	c.tempoBits.Store(math.Float64bits(bpm))
	return nil
}

// SamplesToMillis converts a sample count to milliseconds.
func (c *Clock) SamplesToMillis(samples int64) float64 {
	return float64(samples) * 1000 / c.sampleRate
}

// SamplesToSeconds converts a sample count to seconds.
func (c *Clock) SamplesToSeconds(samples int64) float64 {
	return float64(samples) / c.sampleRate
}

// MillisToSamples converts milliseconds to a fractional sample count.
func (c *Clock) MillisToSamples(ms float64) float64 {
	return ms * c.sampleRate / 1000
}

// BeatsToSeconds converts beats to seconds at the current tempo.
func (c *Clock) BeatsToSeconds(beats float64) float64 {
	return beats * 60 / c.Tempo()
}

// BeatsToSamples converts beats to a fractional sample count at the
// current tempo.
func (c *Clock) BeatsToSamples(beats float64) float64 {
	return c.BeatsToSeconds(beats) * c.sampleRate
}

// Position returns the current playback position in samples.
func (c *Clock) Position() int64 { return c.position.Load() }

// SetPosition moves the playback position.
func (c *Clock) SetPosition(pos int64) {
	if pos < 0 {
		pos = 0
	}
	c.position.Store(pos)
}

// Advance moves the playback position forward by n samples and returns
// the new position.
func (c *Clock) Advance(n int) int64 {
	return c.position.Add(int64(n))
}
