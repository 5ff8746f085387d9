package effects

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/delay"
	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// DelayKind is the effect kind and element name of Delay.
const DelayKind automation.EffectKind = "Delay"

// Automation variants of Delay.
const (
	KindDelayTime     automation.Kind = "Delay2TimeBeats"
	KindDelayFeedback automation.Kind = "Delay2Feedback"
	KindDelayBalance  automation.Kind = "Delay2Balance"
)

const (
	defaultDelayBeats    = 1.0 / 8
	defaultDelayFeedback = 0.5
	defaultDelayBalance  = 0.0

	maxDelayTimeSeconds = 2.0
)

var errNilTimeBase = errors.New("effects: nil time base")

// Delay is a tempo-synced feedback echo with dry/wet balance. The delay
// time is given in beats and follows tempo changes smoothly.
//
// All methods are safe for concurrent use; Process and the setters share
// one mutex.
type Delay struct {
	mu    sync.Mutex
	tb    timebase.TimeBase
	line  *delay.Line
	beats float64
}

// NewDelay creates an inactive delay with default settings.
func NewDelay(tb timebase.TimeBase) (*Delay, error) {
	if tb == nil {
		return nil, errNilTimeBase
	}
	d := &Delay{
		tb:    tb,
		line:  delay.NewLine(tb.BeatsToSamples(defaultDelayBeats)),
		beats: defaultDelayBeats,
	}
	d.line.SetFeedback(defaultDelayFeedback)
	d.line.SetBalance(defaultDelayBalance)
	return d, nil
}

// EffectKind returns DelayKind.
func (d *Delay) EffectKind() automation.EffectKind { return DelayKind }

// Activate allocates a two-second buffer per channel.
func (d *Delay) Activate(channels int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.line.Activate(channels, d.tb.SampleRate(), maxDelayTimeSeconds); err != nil {
		return fmt.Errorf("delay activate: %w", err)
	}
	d.line.SetLength(d.tb.BeatsToSamples(d.beats))
	return nil
}

// Deactivate releases the buffers.
func (d *Delay) Deactivate() {
	d.mu.Lock()
	d.line.Deactivate()
	d.mu.Unlock()
}

// Active reports whether the delay has buffers.
func (d *Delay) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.Active()
}

// Process runs count frames of buf starting at offset through the delay in
// place. It reports false, leaving buf untouched, while inactive.
func (d *Delay) Process(buf [][]float64, offset, count int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.line.Active() {
		return false
	}
	d.line.SetLength(d.tb.BeatsToSamples(d.beats))
	return d.line.Process(buf, offset, count, nil)
}

// SetDelayTimeBeats sets the delay time in beats. Negative values are
// treated as zero; the line keeps at least one sample of delay.
func (d *Delay) SetDelayTimeBeats(beats float64) {
	d.mu.Lock()
	d.setBeatsLocked(beats)
	d.mu.Unlock()
}

func (d *Delay) setBeatsLocked(beats float64) {
	if math.IsNaN(beats) || math.IsInf(beats, 0) {
		return
	}
	if beats < 0 {
		beats = 0
	}
	d.beats = beats
	d.line.SetLength(d.tb.BeatsToSamples(beats))
}

// DelayTimeBeats returns the delay time in beats.
func (d *Delay) DelayTimeBeats() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.beats
}

// DelaySamples returns the effective delay length in samples.
func (d *Delay) DelaySamples() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.Length()
}

// SetFeedback sets the feedback gain in [0, 1].
func (d *Delay) SetFeedback(g float64) {
	d.mu.Lock()
	d.line.SetFeedback(g)
	d.mu.Unlock()
}

// Feedback returns the feedback gain.
func (d *Delay) Feedback() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.Feedback()
}

// SetBalance sets the dry/wet balance in [-1, 1].
func (d *Delay) SetBalance(b float64) {
	d.mu.Lock()
	d.line.SetBalance(b)
	d.mu.Unlock()
}

// Balance returns the dry/wet balance.
func (d *Delay) Balance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line.Balance()
}

// Parameters returns control handles for the automatable parameters.
func (d *Delay) Parameters() []automation.Parameter {
	return []automation.Parameter{
		DelayTimeParam.Bind(d.tb, d),
		DelayFeedbackParam.Bind(d.tb, d),
		DelayBalanceParam.Bind(d.tb, d),
	}
}

// Export returns the settings as a Delay element.
func (d *Delay) Export() persist.Element {
	el := persist.NewElement(string(DelayKind))
	el.SetFloat("DelayTimeBeats", d.DelayTimeBeats())
	el.SetFloat("Feedback", d.Feedback())
	el.SetFloat("Balance", d.Balance())
	return el
}

// Import applies settings from a Delay element. Absent attributes keep
// their current values. A malformed attribute fails the import before
// anything is changed.
func (d *Delay) Import(el persist.Element) error {
	if el.Name != "" && el.Name != string(DelayKind) {
		return fmt.Errorf("%w: element %q is not %q", persist.ErrFormat, el.Name, DelayKind)
	}

	beats, feedback, balance := d.DelayTimeBeats(), d.Feedback(), d.Balance()
	for _, a := range []struct {
		name string
		dst  *float64
	}{
		{"DelayTimeBeats", &beats},
		{"Feedback", &feedback},
		{"Balance", &balance},
	} {
		if _, err := el.Float(a.name, a.dst); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.setBeatsLocked(beats)
	d.line.SetFeedback(feedback)
	d.line.SetBalance(balance)
	return nil
}

// Automation parameter descriptions of Delay.
var (
	DelayTimeParam = &automation.ParamSpec[*Delay]{
		Kind:    KindDelayTime,
		Effect:  DelayKind,
		Attr:    "DelayTimeBeats",
		Default: defaultDelayBeats,
		Get:     (*Delay).DelayTimeBeats,
		Set:     (*Delay).SetDelayTimeBeats,
	}
	DelayFeedbackParam = &automation.ParamSpec[*Delay]{
		Kind:    KindDelayFeedback,
		Effect:  DelayKind,
		Attr:    "Feedback",
		Default: defaultDelayFeedback,
		Get:     (*Delay).Feedback,
		Set:     (*Delay).SetFeedback,
	}
	DelayBalanceParam = &automation.ParamSpec[*Delay]{
		Kind:    KindDelayBalance,
		Effect:  DelayKind,
		Attr:    "Balance",
		Default: defaultDelayBalance,
		Get:     (*Delay).Balance,
		Set:     (*Delay).SetBalance,
	}
)

// RegisterAutomation adds the Delay variants to reg.
func RegisterAutomation(reg *automation.Registry) error {
	for _, spec := range []*automation.ParamSpec[*Delay]{
		DelayTimeParam, DelayFeedbackParam, DelayBalanceParam,
	} {
		if err := spec.Register(reg); err != nil {
			return err
		}
	}
	return nil
}
