// Package delay provides a multichannel circular delay line whose read
// pointer glides toward a new delay length instead of jumping, so the delay
// time can change while audio is flowing without clicks.
package delay

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-automation/dsp/core"
)

const (
	minLength = 1.0

	// maxRetune bounds the read increment to writeStep*(1±maxRetune).
	maxRetune = 0.5
)

// Line is a multichannel circular delay line with feedback, dry/wet
// balance and drift-corrected retuning.
//
// Line is not safe for concurrent use; effects guard it with their own mutex.
type Line struct {
	buffers    [][]float64
	capacity   int
	sampleRate float64

	readPos  float64
	writePos float64

	requested float64
	length    float64
	feedback  float64
	balance   float64
}

// NewLine returns an inactive line with the given initial length request.
func NewLine(length float64) *Line {
	l := &Line{}
	l.SetLength(length)
	return l
}

// Activate allocates one buffer per channel sized for maxDelaySeconds at
// sampleRate. Calling it again with the same geometry keeps the buffers
// and pointers; any other geometry reallocates and resets the pointers.
func (l *Line) Activate(channels int, sampleRate, maxDelaySeconds float64) error {
	if channels <= 0 {
		return fmt.Errorf("delay: channels must be > 0: %d", channels)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return fmt.Errorf("delay: sample rate must be > 0: %f", sampleRate)
	}
	if maxDelaySeconds <= 0 || math.IsNaN(maxDelaySeconds) || math.IsInf(maxDelaySeconds, 0) {
		return fmt.Errorf("delay: max delay must be > 0: %f", maxDelaySeconds)
	}

	capacity := int(math.Ceil(maxDelaySeconds * sampleRate))
	if l.Active() && len(l.buffers) == channels && l.capacity == capacity && l.sampleRate == sampleRate {
		return nil
	}

	buffers := make([][]float64, channels)
	for ch := range buffers {
		buffers[ch] = make([]float64, capacity)
	}
	l.buffers = buffers
	l.capacity = capacity
	l.sampleRate = sampleRate
	l.readPos = 0
	l.writePos = 0
	l.length = l.clampLength(l.requested)
	return nil
}

// Deactivate releases the buffers. The length request, feedback and
// balance are kept for the next activation.
func (l *Line) Deactivate() {
	l.buffers = nil
	l.capacity = 0
	l.readPos = 0
	l.writePos = 0
}

// Active reports whether buffers are allocated.
func (l *Line) Active() bool { return l.buffers != nil }

// Capacity returns the buffer length in samples, 0 while inactive.
func (l *Line) Capacity() int { return l.capacity }

// Channels returns the number of allocated channels.
func (l *Line) Channels() int { return len(l.buffers) }

// SampleRate returns the rate passed to the last Activate.
func (l *Line) SampleRate() float64 { return l.sampleRate }

// SetLength requests a delay length in samples. The effective length is
// clamped to [1, Capacity()]; while inactive the request is remembered and
// clamped on activation. Non-finite requests are ignored.
func (l *Line) SetLength(samples float64) {
	if math.IsNaN(samples) || math.IsInf(samples, 0) {
		return
	}
	l.requested = samples
	l.length = l.clampLength(samples)
}

// Length returns the effective delay length in samples.
func (l *Line) Length() float64 { return l.length }

// SetFeedback sets the feedback gain, clamped to [0, 1].
func (l *Line) SetFeedback(g float64) {
	if math.IsNaN(g) {
		return
	}
	l.feedback = core.Clamp(g, 0, 1)
}

// Feedback returns the feedback gain.
func (l *Line) Feedback() float64 { return l.feedback }

// SetBalance sets the dry/wet balance, clamped to [-1, 1].
func (l *Line) SetBalance(b float64) {
	if math.IsNaN(b) {
		return
	}
	l.balance = core.Clamp(b, -1, 1)
}

// Balance returns the dry/wet balance.
func (l *Line) Balance() float64 { return l.balance }

// Distance returns the wrapped distance from the read to the write pointer.
func (l *Line) Distance() float64 {
	if !l.Active() {
		return 0
	}
	return core.Wrap(l.writePos-l.readPos, float64(l.capacity))
}

// Process runs count samples starting at offset of every channel in buf
// through the line, in place. mod, when non-nil, holds one read offset in
// samples per processed frame and is shared by all channels.
//
// Process reports false without touching buf when the line is inactive or
// count is not positive.
func (l *Line) Process(buf [][]float64, offset, count int, mod []float64) bool {
	if !l.Active() || count <= 0 || offset < 0 {
		return false
	}

	size := float64(l.capacity)
	writeStep := math.Floor(l.length) / l.length
	target := core.Wrap(l.writePos-l.length, size)

	readInc := writeStep
	if l.readPos == l.writePos {
		l.readPos = target
	} else {
		// Drift is measured as distance error so the read pointer never
		// overtakes the write pointer.
		drift := core.Wrap(l.writePos-l.readPos, size) - l.length
		readInc = core.Clamp(writeStep+drift/float64(count),
			writeStep*(1-maxRetune), writeStep*(1+maxRetune))
	}

	dry, wet := BalanceGains(l.balance)
	feedback := l.feedback

	channels := len(buf)
	if channels > len(l.buffers) {
		channels = len(l.buffers)
	}

	r, w := l.readPos, l.writePos
	for ch := 0; ch < channels; ch++ {
		samples := buf[ch]
		end := offset + count
		if end > len(samples) {
			end = len(samples)
		}
		line := l.buffers[ch]

		r, w = l.readPos, l.writePos
		for i := offset; i < end; i++ {
			pos := r
			if mod != nil {
				pos = core.Wrap(pos+mod[i-offset], size)
			}
			delayed := line[l.index(pos)]
			in := samples[i]
			samples[i] = delayed*wet + in*dry
			line[l.index(w)] = core.FlushDenormals(delayed*feedback + in)

			r = core.Wrap(r+readInc, size)
			w = core.Wrap(w+writeStep, size)
		}

		for i := end; i < offset+count; i++ {
			r = core.Wrap(r+readInc, size)
			w = core.Wrap(w+writeStep, size)
		}
	}

	l.readPos, l.writePos = r, w
	return true
}

// BalanceGains maps a balance in [-1, 1] to dry and wet gains. Negative
// values attenuate the wet signal, positive values the dry signal.
func BalanceGains(balance float64) (dry, wet float64) {
	if balance < 0 {
		return 1, 1 + balance
	}
	return 1 - balance, 1
}

func (l *Line) index(pos float64) int {
	i := int(pos)
	if i >= l.capacity {
		i -= l.capacity
	}
	return i
}

func (l *Line) clampLength(samples float64) float64 {
	if samples < minLength {
		samples = minLength
	}
	if l.capacity > 0 && samples > float64(l.capacity) {
		samples = float64(l.capacity)
	}
	return samples
}
