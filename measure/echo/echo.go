package echo

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-automation/dsp/core"
)

// Errors returned by echo analysis.
var (
	ErrEmptyIR           = errors.New("echo: impulse response is empty")
	ErrInvalidSampleRate = errors.New("echo: sample rate must be positive")
	ErrNoEchoes          = errors.New("echo: not enough echoes")
	ErrFFTSize           = errors.New("echo: FFT size must be a power of two >= 2")
)

// DefaultThreshold is the tap threshold relative to the peak (-60 dB).
const DefaultThreshold = 1e-3

// Tap is one peak of an impulse response.
type Tap struct {
	Index     int
	Amplitude float64
}

// Result summarizes an echo train.
type Result struct {
	Taps      []Tap
	Delay     float64 // seconds between echoes
	Feedback  float64 // amplitude ratio between successive echoes
	DecayTime float64 // seconds to fall by 60 dB, +Inf without decay
}

// Analyzer finds echo taps in impulse responses.
type Analyzer struct {
	SampleRate float64
	// Threshold is the minimum tap magnitude relative to the peak.
	Threshold float64
}

// NewAnalyzer creates an analyzer with DefaultThreshold.
func NewAnalyzer(sampleRate float64) *Analyzer {
	return &Analyzer{SampleRate: sampleRate, Threshold: DefaultThreshold}
}

// Analyze runs the full tap, delay, feedback and decay analysis.
func (a *Analyzer) Analyze(ir []float64) (Result, error) {
	if a.SampleRate <= 0 {
		return Result{}, ErrInvalidSampleRate
	}

	taps, err := a.Taps(ir)
	if err != nil {
		return Result{}, err
	}

	r := Result{Taps: taps}
	spacing, err := DelayEstimate(taps)
	if err != nil {
		return r, err
	}
	r.Delay = spacing / a.SampleRate

	// A single echo has a delay but no measurable feedback.
	r.Feedback, err = FeedbackEstimate(taps)
	if err != nil {
		return r, nil
	}

	switch {
	case r.Feedback >= 1:
		r.DecayTime = math.Inf(1)
	default:
		r.DecayTime = r.Delay * -60 / core.LinearToDB(r.Feedback)
	}
	return r, nil
}

// Taps returns the local magnitude peaks of ir at or above Threshold
// relative to the strongest sample, in time order.
func (a *Analyzer) Taps(ir []float64) ([]Tap, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyIR
	}

	peak := 0.0
	for _, v := range ir {
		peak = max(peak, math.Abs(v))
	}
	if peak == 0 {
		return nil, nil
	}

	threshold := peak * max(a.Threshold, 0)
	var taps []Tap
	for i, v := range ir {
		m := math.Abs(v)
		if m == 0 || m < threshold {
			continue
		}
		if i > 0 && math.Abs(ir[i-1]) >= m {
			continue
		}
		if i+1 < len(ir) && math.Abs(ir[i+1]) > m {
			continue
		}
		taps = append(taps, Tap{Index: i, Amplitude: v})
	}
	return taps, nil
}

// DelayEstimate returns the mean spacing in samples between successive
// taps. At least two taps are required.
func DelayEstimate(taps []Tap) (float64, error) {
	if len(taps) < 2 {
		return 0, fmt.Errorf("%w: %d taps", ErrNoEchoes, len(taps))
	}
	span := taps[len(taps)-1].Index - taps[0].Index
	return float64(span) / float64(len(taps)-1), nil
}

// FeedbackEstimate returns the geometric mean of the magnitude ratios
// between successive echoes. The first tap is the dry signal and is
// skipped, so at least three taps are required.
func FeedbackEstimate(taps []Tap) (float64, error) {
	if len(taps) < 3 {
		return 0, fmt.Errorf("%w: %d taps", ErrNoEchoes, len(taps))
	}
	first := math.Abs(taps[1].Amplitude)
	last := math.Abs(taps[len(taps)-1].Amplitude)
	return math.Pow(last/first, 1/float64(len(taps)-2)), nil
}

// Response returns the magnitude spectrum of ir, zero-padded or truncated
// to fftSize, for bins 0 through fftSize/2.
func Response(ir []float64, fftSize int) ([]float64, error) {
	re, im, err := spectrum(ir, fftSize)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(re))
	vecmath.Magnitude(out, re, im)
	return out, nil
}

// PowerResponse is like Response but returns squared magnitudes.
func PowerResponse(ir []float64, fftSize int) ([]float64, error) {
	re, im, err := spectrum(ir, fftSize)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(re))
	vecmath.Power(out, re, im)
	return out, nil
}

func spectrum(ir []float64, fftSize int) (re, im []float64, err error) {
	if len(ir) == 0 {
		return nil, nil, ErrEmptyIR
	}
	if fftSize < 2 || fftSize&(fftSize-1) != 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrFFTSize, fftSize)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, nil, fmt.Errorf("echo: failed to create FFT plan: %w", err)
	}

	in := make([]complex128, fftSize)
	for i, v := range ir[:min(len(ir), fftSize)] {
		in[i] = complex(v, 0)
	}
	freq := make([]complex128, fftSize)
	if err := plan.Forward(freq, in); err != nil {
		return nil, nil, fmt.Errorf("echo: forward FFT failed: %w", err)
	}

	bins := fftSize/2 + 1
	re = make([]float64, bins)
	im = make([]float64, bins)
	for i := range bins {
		re[i] = real(freq[i])
		im[i] = imag(freq[i])
	}
	return re, im, nil
}
