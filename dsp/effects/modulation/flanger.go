package modulation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/core"
	"github.com/cwbudde/algo-automation/dsp/delay"
	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// FlangerKind is the effect kind and element name of Flanger.
const FlangerKind automation.EffectKind = "Flanger"

// Automation variants of Flanger.
const (
	KindFlangerDelayTime automation.Kind = "FlangerDelayTime"
	KindFlangerAmplitude automation.Kind = "FlangerAmplitude"
	KindFlangerFrequency automation.Kind = "FlangerFrequency"
	KindFlangerFeedback  automation.Kind = "FlangerFeedback"
	KindFlangerBalance   automation.Kind = "FlangerBalance"
)

const (
	defaultFlangerDelayMillis = 4.0
	defaultFlangerAmplitude   = 0.5
	defaultFlangerFrequency   = 1.0
	defaultFlangerFeedback    = 0.6
	defaultFlangerBalance     = 0.0

	minFlangerFrequency     = 1e-5
	maxFlangerDelaySeconds  = 1.0
	defaultFlangerBlockSize = 512
)

// FlangerOption mutates flanger construction parameters.
type FlangerOption func(*flangerConfig) error

type flangerConfig struct {
	delayMillis float64
	amplitude   float64
	frequency   float64
	feedback    float64
	balance     float64
}

func defaultFlangerConfig() flangerConfig {
	return flangerConfig{
		delayMillis: defaultFlangerDelayMillis,
		amplitude:   defaultFlangerAmplitude,
		frequency:   defaultFlangerFrequency,
		feedback:    defaultFlangerFeedback,
		balance:     defaultFlangerBalance,
	}
}

// WithFlangerDelayMillis sets the center delay in milliseconds.
func WithFlangerDelayMillis(ms float64) FlangerOption {
	return func(cfg *flangerConfig) error {
		if ms <= 0 || ms > maxFlangerDelaySeconds*1000 || math.IsNaN(ms) {
			return fmt.Errorf("flanger delay must be in (0, %g] ms: %f", maxFlangerDelaySeconds*1000, ms)
		}

		cfg.delayMillis = ms

		return nil
	}
}

// WithFlangerAmplitude sets the modulation amplitude in [0, 1].
func WithFlangerAmplitude(amplitude float64) FlangerOption {
	return func(cfg *flangerConfig) error {
		if amplitude < 0 || amplitude > 1 || math.IsNaN(amplitude) {
			return fmt.Errorf("flanger amplitude must be in [0, 1]: %f", amplitude)
		}

		cfg.amplitude = amplitude

		return nil
	}
}

// WithFlangerFrequency sets the LFO frequency in Hz.
func WithFlangerFrequency(hz float64) FlangerOption {
	return func(cfg *flangerConfig) error {
		if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
			return fmt.Errorf("flanger frequency must be > 0 and finite: %f", hz)
		}

		cfg.frequency = hz

		return nil
	}
}

// WithFlangerFeedback sets the feedback gain in [0, 1].
func WithFlangerFeedback(feedback float64) FlangerOption {
	return func(cfg *flangerConfig) error {
		if feedback < 0 || feedback > 1 || math.IsNaN(feedback) {
			return fmt.Errorf("flanger feedback must be in [0, 1]: %f", feedback)
		}

		cfg.feedback = feedback

		return nil
	}
}

// WithFlangerBalance sets the dry/wet balance in [-1, 1].
func WithFlangerBalance(balance float64) FlangerOption {
	return func(cfg *flangerConfig) error {
		if balance < -1 || balance > 1 || math.IsNaN(balance) {
			return fmt.Errorf("flanger balance must be in [-1, 1]: %f", balance)
		}

		cfg.balance = balance

		return nil
	}
}

// Flanger is a short delay whose read position is swept by a triangular
// LFO. Process and all setters share one mutex.
type Flanger struct {
	mu   sync.Mutex
	tb   timebase.TimeBase
	line *delay.Line
	lfo  triangleLFO

	delayMillis float64
	amplitude   float64
	frequency   float64

	offsets []float64
}

// NewFlanger creates an inactive flanger with practical defaults and
// optional overrides.
func NewFlanger(tb timebase.TimeBase, opts ...FlangerOption) (*Flanger, error) {
	if tb == nil {
		return nil, errors.New("flanger: nil time base")
	}

	cfg := defaultFlangerConfig()

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		err := opt(&cfg)
		if err != nil {
			return nil, err
		}
	}

	f := &Flanger{
		tb:      tb,
		line:    delay.NewLine(tb.MillisToSamples(cfg.delayMillis)),
		offsets: make([]float64, defaultFlangerBlockSize),
	}
	f.setDelayMillisLocked(cfg.delayMillis)
	f.setAmplitudeLocked(cfg.amplitude)
	f.setFrequencyLocked(cfg.frequency)
	f.line.SetFeedback(cfg.feedback)
	f.line.SetBalance(cfg.balance)

	return f, nil
}

// EffectKind returns FlangerKind.
func (f *Flanger) EffectKind() automation.EffectKind { return FlangerKind }

// Activate allocates a one-second buffer per channel.
func (f *Flanger) Activate(channels int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.line.Activate(channels, f.tb.SampleRate(), maxFlangerDelaySeconds); err != nil {
		return fmt.Errorf("flanger activate: %w", err)
	}
	return nil
}

// Deactivate releases the buffers.
func (f *Flanger) Deactivate() {
	f.mu.Lock()
	f.line.Deactivate()
	f.mu.Unlock()
}

// Active reports whether the flanger has buffers.
func (f *Flanger) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line.Active()
}

// Process runs count frames of buf starting at offset through the flanger
// in place. All channels see the same LFO sweep. It reports false,
// leaving buf untouched, while inactive.
func (f *Flanger) Process(buf [][]float64, offset, count int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.line.Active() || count <= 0 {
		return false
	}

	f.offsets = core.EnsureLen(f.offsets, count)
	depth := f.sweepDepthLocked()
	for i := range f.offsets {
		f.offsets[i] = f.lfo.next() * depth
	}

	return f.line.Process(buf, offset, count, f.offsets)
}

// sweepDepthLocked returns the peak read offset in samples. The swept
// delay stays one sample short of the buffer so the read pointer never
// reaches the write pointer.
func (f *Flanger) sweepDepthLocked() float64 {
	length := f.line.Length()
	depth := f.amplitude * f.amplitude * length / 2
	return core.Clamp(depth, 0, max(0, float64(f.line.Capacity())-length-1))
}

// SetDelayMillis sets the center delay in milliseconds.
func (f *Flanger) SetDelayMillis(ms float64) {
	f.mu.Lock()
	f.setDelayMillisLocked(ms)
	f.mu.Unlock()
}

func (f *Flanger) setDelayMillisLocked(ms float64) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return
	}
	if ms < 0 {
		ms = 0
	}
	f.delayMillis = ms
	f.line.SetLength(f.tb.MillisToSamples(ms))
}

// DelayMillis returns the center delay in milliseconds.
func (f *Flanger) DelayMillis() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delayMillis
}

// SetAmplitude sets the modulation amplitude in [0, 1]. The sweep depth
// grows with the square of the amplitude.
func (f *Flanger) SetAmplitude(amplitude float64) {
	f.mu.Lock()
	f.setAmplitudeLocked(amplitude)
	f.mu.Unlock()
}

func (f *Flanger) setAmplitudeLocked(amplitude float64) {
	if math.IsNaN(amplitude) {
		return
	}
	f.amplitude = core.Clamp(amplitude, 0, 1)
}

// Amplitude returns the modulation amplitude.
func (f *Flanger) Amplitude() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amplitude
}

// SetFrequency sets the LFO frequency in Hz. Values below 1e-5 Hz are
// clamped. The sweep keeps its current direction.
func (f *Flanger) SetFrequency(hz float64) {
	f.mu.Lock()
	f.setFrequencyLocked(hz)
	f.mu.Unlock()
}

func (f *Flanger) setFrequencyLocked(hz float64) {
	if math.IsNaN(hz) || math.IsInf(hz, 0) {
		return
	}
	if hz < minFlangerFrequency {
		hz = minFlangerFrequency
	}
	f.frequency = hz
	f.lfo.setRate(4 * hz / f.tb.SampleRate())
}

// Frequency returns the LFO frequency in Hz.
func (f *Flanger) Frequency() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}

// SetFeedback sets the feedback gain in [0, 1].
func (f *Flanger) SetFeedback(g float64) {
	f.mu.Lock()
	f.line.SetFeedback(g)
	f.mu.Unlock()
}

// Feedback returns the feedback gain.
func (f *Flanger) Feedback() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line.Feedback()
}

// SetBalance sets the dry/wet balance in [-1, 1].
func (f *Flanger) SetBalance(b float64) {
	f.mu.Lock()
	f.line.SetBalance(b)
	f.mu.Unlock()
}

// Balance returns the dry/wet balance.
func (f *Flanger) Balance() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.line.Balance()
}

// LFO returns the current oscillator phase in [-1, 1] and its per-sample
// increment.
func (f *Flanger) LFO() (phase, inc float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lfo.phase, f.lfo.inc
}

// Parameters returns control handles for the automatable parameters.
func (f *Flanger) Parameters() []automation.Parameter {
	params := make([]automation.Parameter, len(flangerParams))
	for i, spec := range flangerParams {
		params[i] = spec.Bind(f.tb, f)
	}
	return params
}

// Export returns the settings as a Flanger element.
func (f *Flanger) Export() persist.Element {
	f.mu.Lock()
	defer f.mu.Unlock()

	el := persist.NewElement(string(FlangerKind))
	el.SetFloat("DelayTimeMillis", f.delayMillis)
	el.SetFloat("Amplitude", f.amplitude)
	el.SetFloat("Frequency", f.frequency)
	el.SetFloat("Feedback", f.line.Feedback())
	el.SetFloat("Balance", f.line.Balance())
	return el
}

// Import applies settings from a Flanger element. Absent attributes keep
// their current values. A malformed attribute fails the import before
// anything is changed.
func (f *Flanger) Import(el persist.Element) error {
	if el.Name != "" && el.Name != string(FlangerKind) {
		return fmt.Errorf("%w: element %q is not %q", persist.ErrFormat, el.Name, FlangerKind)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ms, amp, hz := f.delayMillis, f.amplitude, f.frequency
	feedback, balance := f.line.Feedback(), f.line.Balance()
	for _, a := range []struct {
		name string
		dst  *float64
	}{
		{"DelayTimeMillis", &ms},
		{"Amplitude", &amp},
		{"Frequency", &hz},
		{"Feedback", &feedback},
		{"Balance", &balance},
	} {
		if _, err := el.Float(a.name, a.dst); err != nil {
			return err
		}
	}

	f.setDelayMillisLocked(ms)
	f.setAmplitudeLocked(amp)
	f.setFrequencyLocked(hz)
	f.line.SetFeedback(feedback)
	f.line.SetBalance(balance)
	return nil
}

// triangleLFO sweeps phase linearly between -1 and +1.
type triangleLFO struct {
	phase float64
	inc   float64
}

// setRate sets the increment magnitude, keeping the current direction.
func (o *triangleLFO) setRate(rate float64) {
	if o.inc < 0 {
		o.inc = -rate
	} else {
		o.inc = rate
	}
}

// next returns the current phase and advances by one sample.
func (o *triangleLFO) next() float64 {
	v := o.phase
	o.phase += o.inc
	if o.phase >= 1 {
		o.phase = 1
		o.inc = -math.Abs(o.inc)
	} else if o.phase <= -1 {
		o.phase = -1
		o.inc = math.Abs(o.inc)
	}
	return v
}

// Automation parameter descriptions of Flanger.
var (
	FlangerDelayTimeParam = &automation.ParamSpec[*Flanger]{
		Kind:    KindFlangerDelayTime,
		Effect:  FlangerKind,
		Attr:    "DelayTimeMillis",
		Default: defaultFlangerDelayMillis,
		Get:     (*Flanger).DelayMillis,
		Set:     (*Flanger).SetDelayMillis,
	}
	FlangerAmplitudeParam = &automation.ParamSpec[*Flanger]{
		Kind:    KindFlangerAmplitude,
		Effect:  FlangerKind,
		Attr:    "Amplitude",
		Default: defaultFlangerAmplitude,
		Get:     (*Flanger).Amplitude,
		Set:     (*Flanger).SetAmplitude,
	}
	FlangerFrequencyParam = &automation.ParamSpec[*Flanger]{
		Kind:    KindFlangerFrequency,
		Effect:  FlangerKind,
		Attr:    "Frequency",
		Default: defaultFlangerFrequency,
		Get:     (*Flanger).Frequency,
		Set:     (*Flanger).SetFrequency,
	}
	FlangerFeedbackParam = &automation.ParamSpec[*Flanger]{
		Kind:    KindFlangerFeedback,
		Effect:  FlangerKind,
		Attr:    "Feedback",
		Default: defaultFlangerFeedback,
		Get:     (*Flanger).Feedback,
		Set:     (*Flanger).SetFeedback,
	}
	FlangerBalanceParam = &automation.ParamSpec[*Flanger]{
		Kind:    KindFlangerBalance,
		Effect:  FlangerKind,
		Attr:    "Balance",
		Default: defaultFlangerBalance,
		Get:     (*Flanger).Balance,
		Set:     (*Flanger).SetBalance,
	}

	flangerParams = []*automation.ParamSpec[*Flanger]{
		FlangerDelayTimeParam,
		FlangerAmplitudeParam,
		FlangerFrequencyParam,
		FlangerFeedbackParam,
		FlangerBalanceParam,
	}
)

// RegisterAutomation adds the Flanger variants to reg.
func RegisterAutomation(reg *automation.Registry) error {
	for _, spec := range flangerParams {
		if err := spec.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
