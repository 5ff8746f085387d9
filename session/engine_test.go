package session

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-automation/automation"
	"github.com/cwbudde/algo-automation/dsp/core"
	"github.com/cwbudde/algo-automation/dsp/effects"
	"github.com/cwbudde/algo-automation/dsp/effects/modulation"
	"github.com/cwbudde/algo-automation/internal/testutil"
)

// At 49152 Hz and 60 bpm, 1/1024 beat is exactly 48 samples.
const (
	testRate  = 49152.0
	testTempo = 60.0
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()

	opts = append([]Option{
		WithProcessor(core.WithSampleRate(testRate), core.WithChannels(1)),
		WithTempo(testTempo),
	}, opts...)
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func ones(n int) [][]float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = 1
	}
	return [][]float64{data}
}

func addDelay(t *testing.T, e *Engine, tr *Track) *effects.Delay {
	t.Helper()

	p, err := e.AddEffect(tr, effects.DelayKind)
	if err != nil {
		t.Fatal(err)
	}
	return p.(*effects.Delay)
}

func TestNewEngineDefaults(t *testing.T) {
	e, err := NewEngine()
	if err != nil {
		t.Fatal(err)
	}

	cfg := e.Config()
	if cfg.SampleRate != 44100 || cfg.Channels != 2 || cfg.BlockSize != 512 {
		t.Fatalf("Config() = %+v", cfg)
	}
	if got := e.Clock().Tempo(); got != 120 {
		t.Fatalf("Tempo() = %v, want 120", got)
	}
	if e.Registry().Lookup(effects.KindDelayTime) == nil {
		t.Fatal("default registry lacks Delay variants")
	}
	if e.Running() {
		t.Fatal("new engine is running")
	}
}

func TestNewEngineRejectsBadTempo(t *testing.T) {
	if _, err := NewEngine(WithTempo(0)); err == nil {
		t.Fatal("expected error for zero tempo")
	}
}

func TestEngineTrackIDs(t *testing.T) {
	e := newTestEngine(t)

	a := e.AddTrack("a")
	b := e.AddTrack("b")
	if a.ID() == b.ID() {
		t.Fatalf("duplicate track id %d", a.ID())
	}
	if e.Track(b.ID()) != b {
		t.Fatal("Track(id) did not find b")
	}
	if e.Track(99) != nil {
		t.Fatal("Track(99) found a track")
	}
	if got := len(e.Tracks()); got != 2 {
		t.Fatalf("len(Tracks()) = %d, want 2", got)
	}
}

func TestAddUnknownEffect(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AddEffect(e.AddTrack("t"), "Reverb")
	if !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("err = %v, want ErrUnknownEffect", err)
	}
}

func TestRenderStoppedIsSilent(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	tr.SetSource(NewClip(0, ones(64)))

	out := [][]float64{make([]float64, 32)}
	out[0][0] = 5
	n, err := e.Render(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || out[0][0] != 0 {
		t.Fatalf("Render while stopped = %d, out[0] = %v", n, out[0][0])
	}
	if e.Clock().Position() != 0 {
		t.Fatal("clock advanced while stopped")
	}
}

func TestRenderGeometry(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Render(make([][]float64, 2)); !errors.Is(err, ErrGeometry) {
		t.Fatalf("err = %v, want ErrGeometry", err)
	}
}

func TestRenderMixesTracksWithGain(t *testing.T) {
	e := newTestEngine(t)
	a := e.AddTrack("a")
	a.SetSource(NewClip(0, ones(16)))
	b := e.AddTrack("b")
	b.SetSource(NewClip(8, ones(16)))
	b.SetGain(0.5)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	out := [][]float64{make([]float64, 16)}
	if _, err := e.Render(out); err != nil {
		t.Fatal(err)
	}

	for i, v := range out[0] {
		want := 1.0
		if i >= 8 {
			want = 1.5
		}
		if v != want {
			t.Fatalf("out[%d] = %v, want %v", i, v, want)
		}
	}
	if got := e.Clock().Position(); got != 16 {
		t.Fatalf("Position() = %d, want 16", got)
	}
}

func TestRenderAppliesAutomationAtExactSample(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	tr.SetSource(NewClip(0, ones(512)))
	d := addDelay(t, e, tr)
	d.SetBalance(-1)
	tr.AddAutomation(effects.DelayBalanceParam.New(e.Clock(), 100, 1))

	var got []automation.Notification
	e.Dispatcher().Subscribe(func(n automation.Notification) { got = append(got, n) })

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	out := [][]float64{make([]float64, 256)}
	if _, err := e.Render(out); err != nil {
		t.Fatal(err)
	}

	// The default delay is far longer than the block, so only the dry
	// signal is audible and switching to fully wet silences it.
	for i, v := range out[0] {
		want := 1.0
		if i >= 100 {
			want = 0
		}
		if v != want {
			t.Fatalf("out[%d] = %v, want %v", i, v, want)
		}
	}
	if d.Balance() != 1 {
		t.Fatalf("Balance() = %v, want 1", d.Balance())
	}

	if n := e.Dispatcher().Drain(); n != 1 {
		t.Fatalf("Drain() = %d, want 1", n)
	}
	if len(got) != 1 || got[0].Time != 100 || got[0].Value != 1 || got[0].Track != tr.ID() {
		t.Fatalf("notifications = %+v", got)
	}
}

func TestRenderEventsAcrossBlocks(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	d := addDelay(t, e, tr)
	tr.AddAutomation(effects.DelayFeedbackParam.New(e.Clock(), 40, 0.1))
	tr.AddAutomation(effects.DelayFeedbackParam.New(e.Clock(), 70, 0.2))

	var seen []float64
	e.Dispatcher().Subscribe(func(n automation.Notification) { seen = append(seen, n.Value) })

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	out := [][]float64{make([]float64, 32)}
	for range 3 {
		if _, err := e.Render(out); err != nil {
			t.Fatal(err)
		}
	}
	e.Dispatcher().Drain()

	if len(seen) != 2 || seen[0] != 0.1 || seen[1] != 0.2 {
		t.Fatalf("fired values = %v, want [0.1 0.2]", seen)
	}
	if d.Feedback() != 0.2 {
		t.Fatalf("Feedback() = %v, want 0.2", d.Feedback())
	}
}

func TestRenderSkipsTrackedVariant(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	d := addDelay(t, e, tr)
	tr.AddAutomation(effects.DelayFeedbackParam.New(e.Clock(), 0, 0.9))
	e.Registry().Handler(effects.KindDelayFeedback).SetTracking(tr.ID(), true)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Render([][]float64{make([]float64, 8)}); err != nil {
		t.Fatal(err)
	}
	if d.Feedback() != 0.5 {
		t.Fatalf("Feedback() = %v, want untouched 0.5", d.Feedback())
	}
}

func TestSeekChasesAutomation(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	d := addDelay(t, e, tr)
	tr.AddAutomation(effects.DelayBalanceParam.New(e.Clock(), 1000, 0.25))
	tr.AddAutomation(effects.DelayBalanceParam.New(e.Clock(), 2000, -0.75))
	tr.AddAutomation(effects.DelayFeedbackParam.New(e.Clock(), 1500, 0.1))

	e.Seek(1200)
	if d.Balance() != 0.25 || d.Feedback() != 0.5 {
		t.Fatalf("after Seek(1200) balance=%v feedback=%v", d.Balance(), d.Feedback())
	}

	e.Seek(2500)
	if d.Balance() != -0.75 || d.Feedback() != 0.1 {
		t.Fatalf("after Seek(2500) balance=%v feedback=%v", d.Balance(), d.Feedback())
	}
	if e.Clock().Position() != 2500 {
		t.Fatalf("Position() = %d, want 2500", e.Clock().Position())
	}
}

func TestStartChasesAndStopDeactivates(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")
	d := addDelay(t, e, tr)
	tr.AddAutomation(effects.DelayTimeParam.New(e.Clock(), 10, 0.5))
	e.Seek(20)
	d.SetDelayTimeBeats(0.125)

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if !d.Active() || d.DelayTimeBeats() != 0.5 {
		t.Fatalf("after Start active=%v beats=%v", d.Active(), d.DelayTimeBeats())
	}

	late, err := e.AddEffect(tr, effects.DelayKind)
	if err != nil {
		t.Fatal(err)
	}
	if !late.(*effects.Delay).Active() {
		t.Fatal("effect added while running is not active")
	}

	e.Stop()
	if d.Active() || late.(*effects.Delay).Active() || e.Running() {
		t.Fatal("Stop left effects active")
	}
}

func TestTrackGainIgnoresInvalid(t *testing.T) {
	e := newTestEngine(t)
	tr := e.AddTrack("t")

	for _, g := range []float64{-1, math.NaN(), math.Inf(1)} {
		tr.SetGain(g)
	}
	if tr.Gain() != 1 {
		t.Fatalf("Gain() = %v, want 1", tr.Gain())
	}
}

func TestRenderFlangerWithAutomatedRate(t *testing.T) {
	e := newTestEngine(t, WithProcessor(core.WithChannels(2)))
	tr := e.AddTrack("t")
	tr.SetSource(NewClip(0, testutil.Planar(2, testutil.DeterministicNoise(3, 0.5, 4096))))
	p, err := e.AddEffect(tr, modulation.FlangerKind)
	if err != nil {
		t.Fatal(err)
	}
	f := p.(*modulation.Flanger)
	tr.AddAutomation(modulation.FlangerFrequencyParam.New(e.Clock(), 1000, 4))

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	out := [][]float64{make([]float64, 512), make([]float64, 512)}
	for range 4 {
		if _, err := e.Render(out); err != nil {
			t.Fatal(err)
		}
		for _, ch := range out {
			testutil.RequireFinite(t, ch)
		}
	}

	if f.Frequency() != 4 {
		t.Fatalf("Frequency() = %v, want 4", f.Frequency())
	}
	if len(testutil.NonZero(out[0], 0)) == 0 {
		t.Fatal("flanger rendered silence")
	}
}
