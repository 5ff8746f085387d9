package effects

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/timebase"
	"github.com/cwbudde/algo-automation/persist"
)

// At 49152 Hz and 60 bpm, 1/1024 beat is exactly 48 samples.
const (
	testRate  = 49152.0
	testTempo = 60.0
	beats48   = 1.0 / 1024
)

func newTestDelay(t *testing.T) (*Delay, *timebase.Clock) {
	t.Helper()

	tb, err := timebase.NewClock(testRate, testTempo)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDelay(tb)
	if err != nil {
		t.Fatal(err)
	}
	return d, tb
}

func TestNewDelayRequiresTimeBase(t *testing.T) {
	if _, err := NewDelay(nil); err == nil {
		t.Fatal("expected error for nil time base")
	}
}

func TestDelayDefaults(t *testing.T) {
	d, tb := newTestDelay(t)

	if got := d.DelayTimeBeats(); got != 0.125 {
		t.Fatalf("DelayTimeBeats() = %v, want 0.125", got)
	}
	if got := d.Feedback(); got != 0.5 {
		t.Fatalf("Feedback() = %v, want 0.5", got)
	}
	if got := d.Balance(); got != 0 {
		t.Fatalf("Balance() = %v, want 0", got)
	}
	if got, want := d.DelaySamples(), tb.BeatsToSamples(0.125); got != want {
		t.Fatalf("DelaySamples() = %v, want %v", got, want)
	}
	if d.EffectKind() != DelayKind {
		t.Fatalf("EffectKind() = %q", d.EffectKind())
	}
}

func TestDelayInactiveIsNoop(t *testing.T) {
	d, _ := newTestDelay(t)

	buf := [][]float64{{1, 2, 3}}
	if d.Process(buf, 0, 3) {
		t.Fatal("inactive Process reported output")
	}
	if buf[0][0] != 1 || buf[0][2] != 3 {
		t.Fatalf("buffer modified: %v", buf[0])
	}

	if err := d.Activate(1); err != nil {
		t.Fatal(err)
	}
	d.Deactivate()
	if d.Active() || d.Process(buf, 0, 3) {
		t.Fatal("Process after Deactivate reported output")
	}
}

func TestDelayImpulse48Samples(t *testing.T) {
	d, _ := newTestDelay(t)
	d.SetDelayTimeBeats(beats48)
	d.SetFeedback(0)
	d.SetBalance(1)
	if err := d.Activate(2); err != nil {
		t.Fatal(err)
	}
	if got := d.DelaySamples(); got != 48 {
		t.Fatalf("DelaySamples() = %v, want 48", got)
	}

	buf := [][]float64{make([]float64, 512), make([]float64, 512)}
	buf[0][0], buf[1][0] = 1, 1
	for off := 0; off < 512; off += 128 {
		if !d.Process(buf, off, 128) {
			t.Fatal("Process reported no output")
		}
	}

	for ch := range buf {
		for i, v := range buf[ch] {
			want := 0.0
			if i == 48 {
				want = 1
			}
			if v != want {
				t.Fatalf("ch %d out[%d] = %v, want %v", ch, i, v, want)
			}
		}
	}
}

func TestDelayFollowsTempo(t *testing.T) {
	d, tb := newTestDelay(t)
	d.SetDelayTimeBeats(0.5)
	if err := d.Activate(1); err != nil {
		t.Fatal(err)
	}

	if err := tb.SetTempo(120); err != nil {
		t.Fatal(err)
	}
	d.Process([][]float64{make([]float64, 64)}, 0, 64)

	if got, want := d.DelaySamples(), testRate/4; got != want {
		t.Fatalf("DelaySamples() after tempo change = %v, want %v", got, want)
	}
}

func TestDelaySetterClamps(t *testing.T) {
	d, _ := newTestDelay(t)
	if err := d.Activate(1); err != nil {
		t.Fatal(err)
	}

	d.SetDelayTimeBeats(-1)
	if got := d.DelaySamples(); got <= 0 {
		t.Fatalf("DelaySamples() = %v, want > 0", got)
	}

	d.SetDelayTimeBeats(100)
	if got, want := d.DelaySamples(), math.Ceil(maxDelayTimeSeconds*testRate); got != want {
		t.Fatalf("DelaySamples() = %v, want %v", got, want)
	}

	d.SetDelayTimeBeats(math.NaN())
	if got := d.DelayTimeBeats(); got != 100 {
		t.Fatalf("DelayTimeBeats() after NaN = %v, want 100", got)
	}
}

func TestDelayExportImportRoundTrip(t *testing.T) {
	src, _ := newTestDelay(t)
	src.SetDelayTimeBeats(1.0 / 3)
	src.SetFeedback(0.7071067811865476)
	src.SetBalance(-0.1)

	el := src.Export()
	if el.Name != "Delay" || len(el.Attrs) != 3 {
		t.Fatalf("Export() = %+v", el)
	}

	dst, _ := newTestDelay(t)
	if err := dst.Import(el); err != nil {
		t.Fatal(err)
	}
	if dst.DelayTimeBeats() != 1.0/3 || dst.Feedback() != 0.7071067811865476 || dst.Balance() != -0.1 {
		t.Fatalf("imported (%v, %v, %v)", dst.DelayTimeBeats(), dst.Feedback(), dst.Balance())
	}
}

func TestDelayImportKeepsDefaultsAndRejectsMalformed(t *testing.T) {
	d, _ := newTestDelay(t)

	el := persist.NewElement("Delay")
	el.SetFloat("Feedback", 0.25)
	el.Set("Balance", "")
	if err := d.Import(el); err != nil {
		t.Fatal(err)
	}
	if d.DelayTimeBeats() != 0.125 || d.Feedback() != 0.25 || d.Balance() != 0 {
		t.Fatalf("after partial import (%v, %v, %v)", d.DelayTimeBeats(), d.Feedback(), d.Balance())
	}

	bad := persist.NewElement("Delay")
	bad.SetFloat("DelayTimeBeats", 2)
	bad.Set("Balance", "left")
	if err := d.Import(bad); !errors.Is(err, persist.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
	if d.DelayTimeBeats() != 0.125 {
		t.Fatalf("malformed import changed DelayTimeBeats to %v", d.DelayTimeBeats())
	}

	if err := d.Import(persist.NewElement("Flanger")); !errors.Is(err, persist.ErrFormat) {
		t.Fatalf("wrong element err = %v, want ErrFormat", err)
	}
}

func TestDelayParameters(t *testing.T) {
	d, tb := newTestDelay(t)
	tb.SetPosition(777)

	params := d.Parameters()
	want := []automation.Kind{KindDelayTime, KindDelayFeedback, KindDelayBalance}
	if len(params) != len(want) {
		t.Fatalf("len(Parameters()) = %d, want %d", len(params), len(want))
	}
	for i, p := range params {
		if p.Kind() != want[i] {
			t.Fatalf("Parameters()[%d].Kind() = %q, want %q", i, p.Kind(), want[i])
		}
	}

	params[1].Set(0.9)
	if d.Feedback() != 0.9 {
		t.Fatalf("Feedback() = %v, want 0.9", d.Feedback())
	}

	ev := params[1].Record()
	if ev.Kind() != KindDelayFeedback || ev.StartTime() != 777 || ev.Value() != 0.9 {
		t.Fatalf("Record() = %v", ev)
	}
	if got, _ := ev.Export().Get("Feedback"); got != "0.9" {
		t.Fatalf("exported Feedback = %q, want 0.9", got)
	}
}

func TestRegisterAutomation(t *testing.T) {
	reg := automation.NewRegistry()
	if err := RegisterAutomation(reg); err != nil {
		t.Fatal(err)
	}
	if err := RegisterAutomation(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}

	for _, k := range []automation.Kind{KindDelayTime, KindDelayFeedback, KindDelayBalance} {
		if reg.Handler(k) == nil {
			t.Fatalf("no handler for %s", k)
		}
	}

	d, tb := newTestDelay(t)
	ev, err := reg.New(KindDelayTime, tb)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Value() != 0.125 {
		t.Fatalf("default Delay2TimeBeats value = %v, want 0.125", ev.Value())
	}

	el := persist.NewElement("Delay2Balance")
	el.SetInt("Time", 1000)
	el.SetFloat("Balance", 0.6)
	ev, err = reg.Decode(tb, el)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Apply(singleEffectTrack{d}) {
		t.Fatal("Apply failed")
	}
	if d.Balance() != 0.6 {
		t.Fatalf("Balance() = %v, want 0.6", d.Balance())
	}
}

func TestDelayConcurrentSetters(t *testing.T) {
	d, _ := newTestDelay(t)
	if err := d.Activate(2); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			d.SetDelayTimeBeats(float64(i%8) / 16)
			d.SetFeedback(float64(i%10) / 10)
			d.SetBalance(float64(i%5)/5 - 0.5)
		}
	}()

	buf := [][]float64{make([]float64, 64), make([]float64, 64)}
	for i := 0; i < 500; i++ {
		buf[0][0], buf[1][0] = 1, 1
		d.Process(buf, 0, 64)
	}
	wg.Wait()

	for ch := range buf {
		for i, v := range buf[ch] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("ch %d out[%d] = %v", ch, i, v)
			}
		}
	}
}

// singleEffectTrack is an automation.Track hosting exactly one effect.
type singleEffectTrack struct {
	fx automation.Effect
}

func (s singleEffectTrack) ID() automation.TrackID { return 1 }

func (s singleEffectTrack) AutomationEnabled() bool { return true }

func (s singleEffectTrack) AddAutomation(automation.Event) {}

func (s singleEffectTrack) Effect(kind automation.EffectKind) automation.Effect {
	if s.fx.EffectKind() == kind {
		return s.fx
	}
	return nil
}
